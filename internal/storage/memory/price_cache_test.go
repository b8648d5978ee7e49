package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"strategy-lab/internal/storage"
)

func TestPriceCache_GetSet(t *testing.T) {
	cache := NewPriceCache()
	ctx := context.Background()

	if _, err := cache.Get(ctx, "AAPL|a|b"); !errors.Is(err, storage.ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}

	s := makeSeries("AAPL", 0, 3)
	if err := cache.Set(ctx, "AAPL|a|b", s, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.Bars[0].Close = -1

	got, err := cache.Get(ctx, "AAPL|a|b")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Bars[0].Close != 100 {
		t.Error("cache shares bars with the caller")
	}
	got.Bars[1].Close = -1
	again, _ := cache.Get(ctx, "AAPL|a|b")
	if again.Bars[1].Close != 101 {
		t.Error("cache returned its own bars")
	}
}

func TestPriceCache_TTL(t *testing.T) {
	cache := NewPriceCache()
	ctx := context.Background()
	now := t0
	cache.now = func() time.Time { return now }

	if err := cache.Set(ctx, "k", makeSeries("AAPL", 0, 2), time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	now = now.Add(59 * time.Minute)
	if _, err := cache.Get(ctx, "k"); err != nil {
		t.Errorf("expected hit before expiry, got %v", err)
	}

	now = now.Add(time.Minute)
	if _, err := cache.Get(ctx, "k"); !errors.Is(err, storage.ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss after expiry, got %v", err)
	}
	if cache.Len() != 0 {
		t.Errorf("expired entry not removed")
	}
}

func TestPriceCache_Invalidate(t *testing.T) {
	cache := NewPriceCache()
	ctx := context.Background()

	_ = cache.Set(ctx, "AAPL|1", makeSeries("AAPL", 0, 2), 0)
	_ = cache.Set(ctx, "AAPL|2", makeSeries("AAPL", 0, 3), 0)
	_ = cache.Set(ctx, "MSFT|1", makeSeries("MSFT", 0, 2), 0)

	if err := cache.InvalidateSymbol(ctx, "AAPL"); err != nil {
		t.Fatalf("InvalidateSymbol failed: %v", err)
	}
	for _, k := range []string{"AAPL|1", "AAPL|2"} {
		if _, err := cache.Get(ctx, k); !errors.Is(err, storage.ErrCacheMiss) {
			t.Errorf("%s: expected ErrCacheMiss after invalidation, got %v", k, err)
		}
	}
	if _, err := cache.Get(ctx, "MSFT|1"); err != nil {
		t.Errorf("other symbols must survive, got %v", err)
	}

	if err := cache.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll failed: %v", err)
	}
	if cache.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", cache.Len())
	}
}
