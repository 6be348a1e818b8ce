package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/prophecy/internal/blob/s3"
	cachemem "github.com/alanyoungcy/prophecy/internal/cache/memory"
	cacheredis "github.com/alanyoungcy/prophecy/internal/cache/redis"
	"github.com/alanyoungcy/prophecy/internal/chain"
	"github.com/alanyoungcy/prophecy/internal/config"
	"github.com/alanyoungcy/prophecy/internal/derivative"
	"github.com/alanyoungcy/prophecy/internal/domain"
	"github.com/alanyoungcy/prophecy/internal/notify"
	"github.com/alanyoungcy/prophecy/internal/oracle"
	"github.com/alanyoungcy/prophecy/internal/service"
	storemem "github.com/alanyoungcy/prophecy/internal/store/memory"
	"github.com/alanyoungcy/prophecy/internal/store/postgres"
)

// memoryCacheTTL is the market cache TTL when running without Redis.
const memoryCacheTTL = 30 * time.Second

// Dependencies holds every wired component of the engine. Optional pieces
// (Oracle, Archiver, Limiter, Relay, Prophet) are nil when their backing
// config section is disabled.
type Dependencies struct {
	UoW     domain.UnitOfWork
	Locks   domain.LockManager
	Cache   domain.MarketCache
	Bus     domain.SignalBus
	Limiter domain.RateLimiter

	Oracle   domain.Oracle
	Archiver domain.Archiver
	Relay    *notify.Relay

	Chains      *chain.Service
	Derivatives *derivative.Monitor

	Rooms       *service.RoomService
	Markets     *service.MarketService
	Trading     *service.TradingService
	Votes       *service.VoteService
	Resolutions *service.ResolutionService
	Prophet     *service.ProphetService
}

// Wire constructs the full dependency graph from config. The returned cleanup
// function closes external connections in reverse construction order and is
// safe to call even when Wire fails partway.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("cleanup error", slog.String("error", err.Error()))
			}
		}
	}

	deps := &Dependencies{}

	// Storage.
	switch strings.ToLower(cfg.Storage) {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: connect postgres: %w", err)
		}
		closers = append(closers, func() error { pg.Close(); return nil })

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("app: run migrations: %w", err)
			}
		}
		deps.UoW = postgres.NewUnitOfWork(pg)
		logger.Info("storage ready", slog.String("backend", "postgres"))

	default:
		deps.UoW = storemem.New()
		logger.Info("storage ready", slog.String("backend", "memory"))
	}

	// Cache, locks, bus, rate limiter.
	if cfg.Redis.Enabled {
		rc, err := cacheredis.New(ctx, cacheredis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: connect redis: %w", err)
		}
		closers = append(closers, rc.Close)

		deps.Locks = cacheredis.NewLockManager(rc)
		deps.Cache = cacheredis.NewMarketCache(rc)
		deps.Bus = cacheredis.NewSignalBus(rc)
		deps.Limiter = cacheredis.NewRateLimiter(rc)
		logger.Info("cache ready", slog.String("backend", "redis"))
	} else {
		deps.Locks = cachemem.NewLockManager()
		deps.Cache = cachemem.NewMarketCache(memoryCacheTTL)
		deps.Bus = cachemem.NewSignalBus()
		logger.Info("cache ready", slog.String("backend", "memory"))
	}

	// Resolution archive.
	if cfg.S3.Enabled {
		blob, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: connect s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(blob))
		logger.Info("archive ready", slog.String("bucket", cfg.S3.Bucket))
	}

	// Oracle.
	if cfg.Oracle.Enabled {
		prophet, err := oracle.New(oracle.Config{
			APIKey:      cfg.Oracle.APIKey,
			BaseURL:     cfg.Oracle.BaseURL,
			Model:       cfg.Oracle.Model,
			Temperature: cfg.Oracle.Temperature,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: create oracle: %w", err)
		}
		deps.Oracle = prophet
		logger.Info("oracle ready", slog.String("model", cfg.Oracle.Model))
	}

	// Notifications.
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)
		deps.Relay = notify.NewRelay(deps.Bus, notifier, logger)
		logger.Info("notifications ready", slog.Int("senders", len(senders)))
	}

	// Services, in dependency order.
	deps.Chains = chain.New(deps.UoW, logger)
	deps.Resolutions = service.NewResolutionService(
		deps.UoW, deps.Locks, deps.Cache, deps.Bus,
		deps.Oracle, deps.Archiver,
		cfg.Market.ChainActivationWindow.Duration, logger,
	)
	deps.Derivatives = derivative.NewMonitor(deps.UoW, deps.Resolutions, logger)
	deps.Markets = service.NewMarketService(
		deps.UoW, deps.Locks, deps.Cache, deps.Chains, deps.Derivatives,
		cfg.Market.VotingWindow.Duration, logger,
	)
	deps.Trading = service.NewTradingService(deps.UoW, deps.Locks, deps.Cache, deps.Bus, deps.Oracle, logger)
	deps.Votes = service.NewVoteService(
		deps.UoW, deps.Locks, deps.Bus, deps.Resolutions,
		domain.VotePolicy(strings.ToLower(cfg.Market.VotePolicy)), logger,
	)
	deps.Rooms = service.NewRoomService(deps.UoW, logger)

	if deps.Oracle != nil {
		deps.Prophet = service.NewProphetService(
			deps.UoW, deps.Oracle, deps.Markets, deps.Trading,
			cfg.Oracle.AutoBet, logger,
		)
	}

	return deps, cleanup, nil
}
