package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

func makeSeries(symbol string, from, n int) *domain.PriceSeries {
	bars := make([]domain.Bar, n)
	for i := range bars {
		c := 100 + float64(from+i)
		bars[i] = domain.Bar{Timestamp: t0.AddDate(0, 0, from+i), Open: c, High: c, Low: c, Close: c, Volume: 10}
	}
	return domain.NewPriceSeries(symbol, bars)
}

func TestBarStore(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, makeSeries("msft", 5, 5)); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if err := store.InsertBulk(ctx, makeSeries("MSFT", 0, 5)); err != nil {
		t.Fatalf("InsertBulk of earlier bars failed: %v", err)
	}
	if err := store.InsertBulk(ctx, makeSeries("AAPL", 0, 3)); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	if err := store.InsertBulk(ctx, makeSeries("MSFT", 9, 2)); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	all, err := store.GetByTimeRange(ctx, "msft", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if all.Len() != 10 || all.Symbol != "MSFT" {
		t.Fatalf("expected 10 MSFT bars, got %d %s", all.Len(), all.Symbol)
	}
	if err := all.Validate(); err != nil {
		t.Errorf("stored series should be ordered and valid: %v", err)
	}

	window, err := store.GetByTimeRange(ctx, "MSFT", t0.AddDate(0, 0, 2), t0.AddDate(0, 0, 6))
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if window.Len() != 5 || !window.Start().Equal(t0.AddDate(0, 0, 2)) {
		t.Errorf("expected inclusive range of 5 bars, got %d from %v", window.Len(), window.Start())
	}

	if _, err := store.GetByTimeRange(ctx, "GOOG", time.Time{}, time.Time{}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	syms, _ := store.Symbols(ctx)
	if len(syms) != 2 || syms[0] != "AAPL" || syms[1] != "MSFT" {
		t.Errorf("unexpected symbols %v", syms)
	}
}

func TestEquityCurveStore(t *testing.T) {
	store := NewEquityCurveStore()
	ctx := context.Background()

	curve := []domain.EquityPoint{
		{Time: t0, Cash: 100, Equity: 100},
		{Time: t0.AddDate(0, 0, 1), Cash: 0, Equity: 101},
	}
	if err := store.InsertBulk(ctx, "run1", curve); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if err := store.InsertBulk(ctx, "run1", curve); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	curve[1].Equity = 5
	got, err := store.GetByRunID(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if len(got) != 2 || got[1].Equity != 101 {
		t.Errorf("stored curve changed with caller slice: %v", got)
	}

	if _, err := store.GetByRunID(ctx, "run2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
