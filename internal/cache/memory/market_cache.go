package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// MarketCache is an in-process market snapshot cache with per-entry expiry.
type MarketCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[uuid.UUID]cacheEntry
}

type cacheEntry struct {
	market  domain.Market
	expires time.Time
}

var _ domain.MarketCache = (*MarketCache)(nil)

// NewMarketCache creates a MarketCache. A non-positive ttl defaults to 30s.
func NewMarketCache(ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &MarketCache{ttl: ttl, entries: make(map[uuid.UUID]cacheEntry)}
}

func (c *MarketCache) Set(_ context.Context, m domain.Market) error {
	c.mu.Lock()
	c.entries[m.ID] = cacheEntry{market: m, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MarketCache) Get(_ context.Context, id uuid.UUID) (domain.Market, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expires) {
		return domain.Market{}, domain.ErrNotFound
	}
	return e.market, nil
}

func (c *MarketCache) Invalidate(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
	return nil
}
