package memory

import (
	"context"
	"sync"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// EquityCurveStore is an in-memory implementation of storage.EquityCurveStore.
type EquityCurveStore struct {
	mu   sync.RWMutex
	data map[string][]domain.EquityPoint // keyed by run_id
}

// NewEquityCurveStore creates a new in-memory equity curve store.
func NewEquityCurveStore() *EquityCurveStore {
	return &EquityCurveStore{
		data: make(map[string][]domain.EquityPoint),
	}
}

// InsertBulk stores the curve of a run. Returns ErrDuplicateKey if the run already has one.
func (s *EquityCurveStore) InsertBulk(_ context.Context, runID string, points []domain.EquityPoint) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[runID]; exists {
		return storage.ErrDuplicateKey
	}

	curve := make([]domain.EquityPoint, len(points))
	copy(curve, points)
	s.data[runID] = curve
	return nil
}

// GetByRunID retrieves a curve. Returns ErrNotFound if the run has none.
func (s *EquityCurveStore) GetByRunID(_ context.Context, runID string) ([]domain.EquityPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	curve, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	out := make([]domain.EquityPoint, len(curve))
	copy(out, curve)
	return out, nil
}

var _ storage.EquityCurveStore = (*EquityCurveStore)(nil)
