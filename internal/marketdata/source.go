// Package marketdata loads validated price series from external sources.
//
// Every source returns a *domain.PriceSeries that has passed Validate, with an
// upper-cased symbol. Bounds are inclusive; a zero bound is open.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"strategy-lab/internal/domain"
)

// ErrNoData is returned when a source has no bars for the requested range.
var ErrNoData = errors.New("no market data")

// Source loads the bar history of one symbol.
type Source interface {
	Bars(ctx context.Context, symbol string, start, end time.Time) (*domain.PriceSeries, error)
}

// finalize sorts bars, drops exact timestamp duplicates (last wins), clips
// to the range and validates the result.
func finalize(symbol string, bars []domain.Bar, start, end time.Time) (*domain.PriceSeries, error) {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})

	deduped := bars[:0]
	for _, b := range bars {
		if n := len(deduped); n > 0 && deduped[n-1].Timestamp.Equal(b.Timestamp) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}

	series := domain.NewPriceSeries(symbol, deduped).Between(start, end)
	if series.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", series.Symbol, ErrNoData)
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}
	return series, nil
}

// LoadAll loads every symbol from src. The first error aborts.
func LoadAll(ctx context.Context, src Source, symbols []string, start, end time.Time) (map[string]*domain.PriceSeries, error) {
	out := make(map[string]*domain.PriceSeries, len(symbols))
	for _, sym := range symbols {
		series, err := src.Bars(ctx, sym, start, end)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", sym, err)
		}
		out[series.Symbol] = series
	}
	return out, nil
}
