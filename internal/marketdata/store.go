package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

var _ Source = (*StoreSource)(nil)

// StoreSource reads bars from a storage.BarStore.
type StoreSource struct {
	store storage.BarStore
}

// NewStoreSource creates a StoreSource.
func NewStoreSource(store storage.BarStore) *StoreSource {
	return &StoreSource{store: store}
}

// Bars loads the symbol's bars in [start, end].
func (s *StoreSource) Bars(ctx context.Context, symbol string, start, end time.Time) (*domain.PriceSeries, error) {
	symbol = strings.ToUpper(symbol)
	series, err := s.store.GetByTimeRange(ctx, symbol, start, end)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
		}
		return nil, fmt.Errorf("get bars %s: %w", symbol, err)
	}
	return finalize(symbol, series.Bars, start, end)
}

// Import copies [start, end] of symbol from src into store, skipping bars
// whose timestamps are already stored. Returns the number of bars inserted.
func Import(ctx context.Context, src Source, store storage.BarStore, symbol string, start, end time.Time) (int, error) {
	series, err := src.Bars(ctx, symbol, start, end)
	if err != nil {
		return 0, err
	}

	stored, err := store.GetByTimeRange(ctx, series.Symbol, series.Start(), series.End())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("get bars %s: %w", series.Symbol, err)
	}
	have := make(map[int64]struct{}, stored.Len())
	if stored != nil {
		for _, b := range stored.Bars {
			have[b.Timestamp.UnixNano()] = struct{}{}
		}
	}

	fresh := domain.NewPriceSeries(series.Symbol, nil)
	for _, b := range series.Bars {
		if _, ok := have[b.Timestamp.UnixNano()]; !ok {
			fresh.Bars = append(fresh.Bars, b)
		}
	}
	if fresh.Len() == 0 {
		return 0, nil
	}
	if err := store.InsertBulk(ctx, fresh); err != nil {
		return 0, fmt.Errorf("insert bars %s: %w", series.Symbol, err)
	}
	return fresh.Len(), nil
}
