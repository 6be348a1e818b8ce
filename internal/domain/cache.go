package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MarketCache provides fast market snapshot lookups.
type MarketCache interface {
	Set(ctx context.Context, m Market) error
	Get(ctx context.Context, id uuid.UUID) (Market, error)
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// LockManager provides the per-market mutual exclusion scope. Every path
// that mutates one market (trades, votes, resolution, sweeps) must serialize
// through the same lock key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// MarketLockKey is the canonical lock key for one market.
func MarketLockKey(id uuid.UUID) string {
	return "market:" + id.String()
}

// RateLimiter provides distributed request rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus publishes trade/resolution events to interested subscribers
// (websocket hub, notifiers).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
