package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/observability"
	"strategy-lab/internal/storage"
)

var _ Source = (*CachedSource)(nil)

// CachedSource serves bars from a storage.PriceCache and falls back to an
// upstream Source on a miss. Cache failures degrade to upstream reads.
type CachedSource struct {
	upstream Source
	cache    storage.PriceCache
	ttl      time.Duration
	log      zerolog.Logger
}

// NewCachedSource wraps upstream. ttl 0 means entries never expire.
func NewCachedSource(upstream Source, cache storage.PriceCache, ttl time.Duration, log zerolog.Logger) *CachedSource {
	return &CachedSource{
		upstream: upstream,
		cache:    cache,
		ttl:      ttl,
		log:      log.With().Str("component", "price_cache").Logger(),
	}
}

// CacheKey returns the cache key of a symbol and date range.
func CacheKey(symbol string, start, end time.Time) string {
	return strings.ToUpper(symbol) + "|" + formatBound(start) + "|" + formatBound(end)
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "*"
	}
	return t.UTC().Format("2006-01-02")
}

// Bars returns the cached series for the range, loading it on a miss.
func (s *CachedSource) Bars(ctx context.Context, symbol string, start, end time.Time) (*domain.PriceSeries, error) {
	key := CacheKey(symbol, start, end)

	series, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		observability.RecordCacheHit()
		return series, nil
	case errors.Is(err, storage.ErrCacheMiss):
		observability.RecordCacheMiss()
	default:
		observability.RecordCacheError()
		s.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	started := time.Now()
	series, err = s.upstream.Bars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	s.log.Debug().
		Str("symbol", series.Symbol).
		Int("bars", series.Len()).
		Int64("duration_ms", time.Since(started).Milliseconds()).
		Msg("loaded from upstream")

	if err := s.cache.Set(ctx, key, series, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return series, nil
}

// Invalidate drops every cached range of symbol.
func (s *CachedSource) Invalidate(ctx context.Context, symbol string) error {
	if err := s.cache.InvalidateSymbol(ctx, strings.ToUpper(symbol)); err != nil {
		return fmt.Errorf("invalidate %s: %w", symbol, err)
	}
	observability.RecordCacheInvalidation()
	return nil
}

// InvalidateAll drops every cached entry.
func (s *CachedSource) InvalidateAll(ctx context.Context) error {
	if err := s.cache.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("invalidate all: %w", err)
	}
	observability.RecordCacheInvalidation()
	return nil
}
