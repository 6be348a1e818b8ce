// Package server assembles the HTTP + WebSocket API: routing, middleware,
// and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/prophecy/internal/domain"
	"github.com/alanyoungcy/prophecy/internal/server/handler"
	"github.com/alanyoungcy/prophecy/internal/server/middleware"
	"github.com/alanyoungcy/prophecy/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateLimitWindow. Zero
	// disables rate limiting.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health      *handler.HealthHandler
	Rooms       *handler.RoomHandler
	Markets     *handler.MarketHandler
	Trades      *handler.TradeHandler
	Votes       *handler.VoteHandler
	Resolutions *handler.ResolutionHandler
	Audit       *handler.AuditHandler

	// Prophet is nil when the oracle is disabled; its routes are then not
	// registered.
	Prophet *handler.ProphetHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. limiter may be nil
// to disable rate limiting regardless of config.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Rooms and accounts.
	mux.HandleFunc("POST /api/rooms", handlers.Rooms.CreateRoom)
	mux.HandleFunc("POST /api/rooms/join", handlers.Rooms.JoinRoom)
	mux.HandleFunc("GET /api/rooms/{id}", handlers.Rooms.GetRoom)
	mux.HandleFunc("GET /api/rooms/{id}/markets", handlers.Markets.ListRoomMarkets)
	mux.HandleFunc("GET /api/rooms/{id}/leaderboard", handlers.Rooms.Leaderboard)
	mux.HandleFunc("GET /api/accounts/{id}", handlers.Rooms.GetAccount)
	mux.HandleFunc("GET /api/accounts/{id}/trades", handlers.Trades.ListAccountTrades)

	// Market lifecycle.
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/chain", handlers.Markets.ChainTree)
	mux.HandleFunc("GET /api/markets/{id}/quote", handlers.Markets.Quote)
	mux.HandleFunc("POST /api/markets/{id}/close", handlers.Markets.CloseMarket)
	mux.HandleFunc("POST /api/markets/{id}/cancel", handlers.Markets.CancelMarket)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Resolutions.ResolveMarket)

	// Trading.
	mux.HandleFunc("POST /api/markets/{id}/trades", handlers.Trades.PlaceTrade)
	mux.HandleFunc("GET /api/markets/{id}/trades", handlers.Trades.ListMarketTrades)

	// Voting.
	mux.HandleFunc("POST /api/markets/{id}/votes", handlers.Votes.CastVote)
	mux.HandleFunc("GET /api/markets/{id}/votes/{account_id}", handlers.Votes.GetBallot)
	mux.HandleFunc("GET /api/markets/{id}/tally", handlers.Votes.Tally)

	// Audit log.
	mux.HandleFunc("GET /api/audit", handlers.Audit.List)

	// Prophet market generation.
	if handlers.Prophet != nil {
		mux.HandleFunc("POST /api/rooms/{id}/prophet/markets", handlers.Prophet.GenerateMarkets)
	}

	// WebSocket feed.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware returns middleware that sets CORS headers for the allowed
// origins. If no origins are specified, all origins are allowed.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
