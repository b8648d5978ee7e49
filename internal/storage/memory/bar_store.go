package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	data map[string]map[int64]domain.Bar // symbol -> unix nano -> bar
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		data: make(map[string]map[int64]domain.Bar),
	}
}

// InsertBulk adds the bars of a series. Fails entire batch on duplicate.
func (s *BarStore) InsertBulk(_ context.Context, series *domain.PriceSeries) error {
	if series == nil || series.Symbol == "" {
		return storage.ErrInvalidInput
	}
	if series.Len() == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.data[series.Symbol]

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[int64]struct{}, series.Len())
	for _, b := range series.Bars {
		key := b.Timestamp.UnixNano()
		if _, exists := existing[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	if existing == nil {
		existing = make(map[int64]domain.Bar, series.Len())
		s.data[series.Symbol] = existing
	}
	for _, b := range series.Bars {
		existing[b.Timestamp.UnixNano()] = b
	}

	return nil
}

// GetByTimeRange retrieves bars within [start, end] ordered by timestamp ASC.
func (s *BarStore) GetByTimeRange(_ context.Context, symbol string, start, end time.Time) (*domain.PriceSeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := domain.NewPriceSeries(symbol, nil)
	for _, b := range s.data[out.Symbol] {
		if !start.IsZero() && b.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && b.Timestamp.After(end) {
			continue
		}
		out.Bars = append(out.Bars, b)
	}
	if len(out.Bars) == 0 {
		return nil, storage.ErrNotFound
	}

	sort.Slice(out.Bars, func(i, j int) bool {
		return out.Bars[i].Timestamp.Before(out.Bars[j].Timestamp)
	})
	return out, nil
}

// Symbols lists stored symbols in ascending order.
func (s *BarStore) Symbols(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.data))
	for sym := range s.data {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}

var _ storage.BarStore = (*BarStore)(nil)
