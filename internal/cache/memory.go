package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/trogers1052/stocks-daily/internal/models"
)

type memoryEntry struct {
	history   *models.PriceHistory
	expiresAt time.Time
}

// MemoryCache is a process-wide LRU of histories with a per-entry expiry time.
type MemoryCache struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// MemoryOption configures a MemoryCache
type MemoryOption func(*MemoryCache)

// WithClock overrides the clock entries expire against
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) { c.now = now }
}

// NewMemoryCache creates a cache holding at most capacity symbols
func NewMemoryCache(capacity int, opts ...MemoryOption) (*MemoryCache, error) {
	entries, err := lru.New[string, memoryEntry](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	c := &MemoryCache{entries: entries, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *MemoryCache) Get(_ context.Context, symbol string) (*models.PriceHistory, bool, error) {
	e, ok := c.entries.Get(symbol)
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.entries.Remove(symbol)
		return nil, false, nil
	}
	return e.history, true, nil
}

func (c *MemoryCache) Set(_ context.Context, history *models.PriceHistory, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.entries.Add(history.Symbol, memoryEntry{history: history, expiresAt: c.now().Add(ttl)})
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, symbol string) error {
	c.entries.Remove(symbol)
	return nil
}

func (c *MemoryCache) Purge(_ context.Context) error {
	c.entries.Purge()
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}
