package storage

import (
	"context"
	"time"

	"strategy-lab/internal/domain"
)

// PriceCache is a keyed cache of price series.
type PriceCache interface {
	// Get returns the cached series for key. Returns ErrCacheMiss if absent or expired.
	Get(ctx context.Context, key string) (*domain.PriceSeries, error)

	// Set stores series under key for ttl (0 = no expiry). The key is indexed
	// under series.Symbol for InvalidateSymbol.
	Set(ctx context.Context, key string, series *domain.PriceSeries, ttl time.Duration) error

	// InvalidateSymbol drops every cached range of symbol.
	InvalidateSymbol(ctx context.Context, symbol string) error

	// InvalidateAll drops every entry.
	InvalidateAll(ctx context.Context) error
}

// TradeStore provides access to backtest_trades storage.
type TradeStore interface {
	// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate trade_id.
	InsertBulk(ctx context.Context, trades []*domain.Trade) error

	// GetByRunID retrieves all trades of a run, ordered by entry index, leg.
	GetByRunID(ctx context.Context, runID string) ([]*domain.Trade, error)

	// GetByStrategy retrieves all trades of a strategy, ordered by entry time.
	GetByStrategy(ctx context.Context, strategyID string) ([]*domain.Trade, error)
}

// ReportStore provides access to performance_reports storage.
type ReportStore interface {
	// Insert adds a report. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.PerformanceReport) error

	// GetByRunID retrieves a report. Returns ErrNotFound if not exists.
	GetByRunID(ctx context.Context, runID string) (*domain.PerformanceReport, error)

	// GetByStrategy retrieves all reports of a strategy, ordered by symbol.
	GetByStrategy(ctx context.Context, strategyID string) ([]*domain.PerformanceReport, error)

	// GetAll retrieves all reports ordered by strategy, symbol.
	GetAll(ctx context.Context) ([]*domain.PerformanceReport, error)
}

// EquityCurveStore provides access to equity_curves storage.
type EquityCurveStore interface {
	// InsertBulk stores the curve of a run. Returns ErrDuplicateKey if the run already has a curve.
	InsertBulk(ctx context.Context, runID string, points []domain.EquityPoint) error

	// GetByRunID retrieves a curve ordered by time. Returns ErrNotFound if the run has none.
	GetByRunID(ctx context.Context, runID string) ([]domain.EquityPoint, error)
}

// BarStore provides access to daily_bars storage.
type BarStore interface {
	// InsertBulk adds the bars of a series. Fails entire batch on duplicate (symbol, timestamp).
	InsertBulk(ctx context.Context, series *domain.PriceSeries) error

	// GetByTimeRange retrieves bars of symbol within [start, end] (inclusive, zero = open),
	// ordered by timestamp ASC. Returns ErrNotFound if there are none.
	GetByTimeRange(ctx context.Context, symbol string, start, end time.Time) (*domain.PriceSeries, error)

	// Symbols lists stored symbols in ascending order.
	Symbols(ctx context.Context) ([]string, error)
}
