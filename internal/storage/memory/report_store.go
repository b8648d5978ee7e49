package memory

import (
	"context"
	"sort"
	"sync"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// ReportStore is an in-memory implementation of storage.ReportStore.
type ReportStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PerformanceReport // keyed by run_id
}

// NewReportStore creates a new in-memory report store.
func NewReportStore() *ReportStore {
	return &ReportStore{
		data: make(map[string]*domain.PerformanceReport),
	}
}

// Insert adds a report. Returns ErrDuplicateKey if run_id exists.
func (s *ReportStore) Insert(_ context.Context, r *domain.PerformanceReport) error {
	if r == nil || r.RunID == "" || r.StrategyID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	reportCopy := *r
	s.data[r.RunID] = &reportCopy
	return nil
}

// GetByRunID retrieves a report. Returns ErrNotFound if not exists.
func (s *ReportStore) GetByRunID(_ context.Context, runID string) (*domain.PerformanceReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	reportCopy := *r
	return &reportCopy, nil
}

// GetByStrategy retrieves all reports of a strategy, ordered by symbol.
func (s *ReportStore) GetByStrategy(_ context.Context, strategyID string) ([]*domain.PerformanceReport, error) {
	return s.filter(func(r *domain.PerformanceReport) bool { return r.StrategyID == strategyID }), nil
}

// GetAll retrieves all reports ordered by strategy, symbol.
func (s *ReportStore) GetAll(_ context.Context) ([]*domain.PerformanceReport, error) {
	return s.filter(func(*domain.PerformanceReport) bool { return true }), nil
}

func (s *ReportStore) filter(keep func(*domain.PerformanceReport) bool) []*domain.PerformanceReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PerformanceReport
	for _, r := range s.data {
		if keep(r) {
			reportCopy := *r
			result = append(result, &reportCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.StrategyID != b.StrategyID {
			return a.StrategyID < b.StrategyID
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.RunID < b.RunID
	})

	return result
}

var _ storage.ReportStore = (*ReportStore)(nil)
