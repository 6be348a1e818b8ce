// Package sweep runs the background deadline loops: expiring active markets
// into voting, tallying markets whose voting deadline passed, escalating
// disputes to the oracle, and scanning derivative conditions.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/prophecy/internal/derivative"
	"github.com/alanyoungcy/prophecy/internal/domain"
	"github.com/alanyoungcy/prophecy/internal/service"
)

const (
	defaultExpiryInterval     = time.Minute
	defaultVotingInterval     = time.Minute
	defaultDerivativeInterval = 2 * time.Minute
)

// Config carries the loop intervals. Zero values fall back to defaults.
type Config struct {
	ExpiryInterval     time.Duration
	VotingInterval     time.Duration
	DerivativeInterval time.Duration
}

// Sweeper drives the market lifecycle forward on a schedule. Every pass is
// idempotent; a market already advanced by a concurrent request is skipped.
type Sweeper struct {
	uow         domain.UnitOfWork
	markets     *service.MarketService
	resolutions *service.ResolutionService
	derivatives *derivative.Monitor
	cfg         Config
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a Sweeper. derivatives may be nil, in which case the derivative
// loop is not started.
func New(
	uow domain.UnitOfWork,
	markets *service.MarketService,
	resolutions *service.ResolutionService,
	derivatives *derivative.Monitor,
	cfg Config,
	logger *slog.Logger,
) *Sweeper {
	if cfg.ExpiryInterval <= 0 {
		cfg.ExpiryInterval = defaultExpiryInterval
	}
	if cfg.VotingInterval <= 0 {
		cfg.VotingInterval = defaultVotingInterval
	}
	if cfg.DerivativeInterval <= 0 {
		cfg.DerivativeInterval = defaultDerivativeInterval
	}
	return &Sweeper{
		uow:         uow,
		markets:     markets,
		resolutions: resolutions,
		derivatives: derivatives,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "sweep")),
		now:         time.Now,
	}
}

// Run starts the sweep loops and blocks until ctx is cancelled. Individual
// sweep failures are logged and retried on the next tick; only context
// cancellation stops a loop.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper starting",
		slog.Duration("expiry_interval", s.cfg.ExpiryInterval),
		slog.Duration("voting_interval", s.cfg.VotingInterval),
		slog.Duration("derivative_interval", s.cfg.DerivativeInterval),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.loop(ctx, s.cfg.ExpiryInterval, "expiry", s.sweepExpired)
	})
	g.Go(func() error {
		return s.loop(ctx, s.cfg.VotingInterval, "voting", s.sweepVoting)
	})
	if s.derivatives != nil {
		g.Go(func() error {
			return s.loop(ctx, s.cfg.DerivativeInterval, "derivative", s.sweepDerivatives)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("sweeper stopped with error", slog.String("error", err.Error()))
		return err
	}

	s.logger.Info("sweeper stopped cleanly")
	return nil
}

// loop runs pass immediately, then on every tick until ctx is done.
func (s *Sweeper) loop(ctx context.Context, interval time.Duration, name string, pass func(context.Context) error) error {
	if err := pass(ctx); err != nil {
		s.logger.Error("sweep pass failed", slog.String("loop", name), slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := pass(ctx); err != nil {
				s.logger.Error("sweep pass failed", slog.String("loop", name), slog.String("error", err.Error()))
			}
		}
	}
}

// sweepExpired moves active markets past their trading window into voting.
func (s *Sweeper) sweepExpired(ctx context.Context) error {
	var expired []domain.Market
	err := s.uow.Do(ctx, func(st domain.Stores) error {
		var err error
		expired, err = st.Markets.ListExpired(ctx, s.now().UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("sweep: list expired markets: %w", err)
	}

	for _, m := range expired {
		if _, err := s.markets.ExpireMarket(ctx, m.ID); err != nil {
			if errors.Is(err, domain.ErrStateConflict) {
				continue // already advanced
			}
			s.logger.Error("expire market failed",
				slog.String("market_id", m.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		s.logger.Info("market moved to voting", slog.String("market_id", m.ID.String()))
	}
	return nil
}

// sweepVoting tallies markets whose voting deadline passed, then escalates
// any disputed markets to the oracle.
func (s *Sweeper) sweepVoting(ctx context.Context) error {
	var due []domain.Market
	err := s.uow.Do(ctx, func(st domain.Stores) error {
		var err error
		due, err = st.Markets.ListVotingExpired(ctx, s.now().UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("sweep: list voting-expired markets: %w", err)
	}

	for _, m := range due {
		summary, err := s.resolutions.ProcessVotingDeadline(ctx, m.ID)
		if err != nil {
			if errors.Is(err, domain.ErrStateConflict) {
				continue
			}
			s.logger.Error("voting deadline processing failed",
				slog.String("market_id", m.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if summary.Result != "" {
			s.logger.Info("market resolved by supermajority",
				slog.String("market_id", m.ID.String()),
				slog.String("result", string(summary.Result)))
		}
	}

	return s.sweepDisputes(ctx)
}

// sweepDisputes sends every disputed market to the oracle for a ruling.
func (s *Sweeper) sweepDisputes(ctx context.Context) error {
	var disputed []domain.Market
	err := s.uow.Do(ctx, func(st domain.Stores) error {
		var err error
		disputed, err = st.Markets.ListByStatus(ctx, domain.MarketStatusDisputed, domain.ListOpts{})
		return err
	})
	if err != nil {
		return fmt.Errorf("sweep: list disputed markets: %w", err)
	}

	for _, m := range disputed {
		summary, err := s.resolutions.ResolveDispute(ctx, m.ID)
		if err != nil {
			if errors.Is(err, domain.ErrStateConflict) {
				continue
			}
			s.logger.Error("dispute resolution failed",
				slog.String("market_id", m.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		s.logger.Info("dispute resolved",
			slog.String("market_id", m.ID.String()),
			slog.String("result", string(summary.Result)),
			slog.Bool("oracle_fallback", summary.OracleFallback))
	}
	return nil
}

// sweepDerivatives runs one derivative condition scan.
func (s *Sweeper) sweepDerivatives(ctx context.Context) error {
	resolved, err := s.derivatives.ScanActive(ctx)
	if err != nil {
		return fmt.Errorf("sweep: derivative scan: %w", err)
	}
	if resolved > 0 {
		s.logger.Info("derivative markets auto-resolved", slog.Int("count", resolved))
	}
	return nil
}
