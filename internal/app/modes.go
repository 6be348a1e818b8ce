package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/prophecy/internal/server"
	"github.com/alanyoungcy/prophecy/internal/server/handler"
	"github.com/alanyoungcy/prophecy/internal/server/ws"
	"github.com/alanyoungcy/prophecy/internal/sweep"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 15 * time.Second

// runServe runs the HTTP + WebSocket API until ctx is cancelled.
func (a *App) runServe(ctx context.Context) error {
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.logger),
		Rooms:   handler.NewRoomHandler(a.deps.Rooms, a.logger),
		Markets: handler.NewMarketHandler(a.deps.Markets, a.logger),
		Trades:  handler.NewTradeHandler(a.deps.Trading, a.logger),
		Votes:   handler.NewVoteHandler(a.deps.Votes, a.deps.Resolutions, a.logger),
		Resolutions: handler.NewResolutionHandler(
			a.deps.Resolutions, a.deps.Markets, a.deps.Rooms, a.logger,
		),
		Audit: handler.NewAuditHandler(a.deps.UoW, a.logger),
	}
	if a.deps.Prophet != nil {
		handlers.Prophet = handler.NewProphetHandler(a.deps.Prophet, a.logger)
	}

	hub := ws.NewHub(a.deps.Bus, a.logger)
	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, a.deps.Limiter, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hub.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if a.deps.Relay != nil {
		g.Go(func() error {
			if err := a.deps.Relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(srv.Start)

	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runSweep runs the background deadline sweeps until ctx is cancelled.
func (a *App) runSweep(ctx context.Context) error {
	sweeper := sweep.New(
		a.deps.UoW, a.deps.Markets, a.deps.Resolutions, a.deps.Derivatives,
		sweep.Config{
			ExpiryInterval:     a.cfg.Sweep.ExpiryInterval.Duration,
			VotingInterval:     a.cfg.Sweep.VotingInterval.Duration,
			DerivativeInterval: a.cfg.Sweep.DerivativeInterval.Duration,
		},
		a.logger,
	)
	return sweeper.Run(ctx)
}

// runFull runs the API server and the sweeps together.
func (a *App) runFull(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		g.Go(func() error { return a.runServe(gctx) })
	} else {
		a.logger.Warn("full mode with server disabled, running sweeps only")
	}
	if a.cfg.Sweep.Enabled {
		g.Go(func() error { return a.runSweep(gctx) })
	}

	return g.Wait()
}
