package memory

import (
	"context"
	"sync"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

type cacheEntry struct {
	series    *domain.PriceSeries
	expiresAt time.Time // zero = never
}

// PriceCache is an in-memory implementation of storage.PriceCache.
// Expired entries are dropped lazily on Get.
type PriceCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	symbols map[string]map[string]struct{} // symbol -> keys
	now     func() time.Time
}

// NewPriceCache creates an empty cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{
		entries: make(map[string]cacheEntry),
		symbols: make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

// Get returns a copy of the cached series or storage.ErrCacheMiss.
func (c *PriceCache) Get(_ context.Context, key string) (*domain.PriceSeries, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, storage.ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.remove(key, e.series.Symbol)
		return nil, storage.ErrCacheMiss
	}
	return e.series.Clone(), nil
}

// Set stores a copy of series under key.
func (c *PriceCache) Set(_ context.Context, key string, series *domain.PriceSeries, ttl time.Duration) error {
	if key == "" || series == nil {
		return storage.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.remove(key, old.series.Symbol)
	}

	e := cacheEntry{series: series.Clone()}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e

	keys := c.symbols[series.Symbol]
	if keys == nil {
		keys = make(map[string]struct{})
		c.symbols[series.Symbol] = keys
	}
	keys[key] = struct{}{}
	return nil
}

// InvalidateSymbol drops every cached range of symbol.
func (c *PriceCache) InvalidateSymbol(_ context.Context, symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.symbols[symbol] {
		delete(c.entries, key)
	}
	delete(c.symbols, symbol)
	return nil
}

// InvalidateAll drops every entry.
func (c *PriceCache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
	c.symbols = make(map[string]map[string]struct{})
	return nil
}

// Len returns the number of entries, expired ones included.
func (c *PriceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *PriceCache) remove(key, symbol string) {
	delete(c.entries, key)
	if keys, ok := c.symbols[symbol]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.symbols, symbol)
		}
	}
}

var _ storage.PriceCache = (*PriceCache)(nil)
