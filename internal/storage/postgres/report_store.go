package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// ReportStore implements storage.ReportStore using PostgreSQL.
type ReportStore struct {
	pool *Pool
}

// NewReportStore creates a new ReportStore.
func NewReportStore(pool *Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReportStore = (*ReportStore)(nil)

const reportColumns = `
	run_id, strategy_id, symbol, bars,
	initial_capital, final_equity,
	cumulative_return, annualized_return, volatility, max_drawdown,
	var_confidence, value_at_risk, cond_value_at_risk,
	sharpe, sortino, calmar, information_ratio, beta,
	total_trades, win_rate, profit_factor, avg_holding_bars, avg_trade_duration_ms,
	total_costs, exposure, best_symbol`

// Insert adds a report. Returns ErrDuplicateKey if run_id exists.
func (s *ReportStore) Insert(ctx context.Context, r *domain.PerformanceReport) (err error) {
	defer observe("report_insert", time.Now(), &err)
	if r == nil || r.RunID == "" || r.StrategyID == "" {
		return storage.ErrInvalidInput
	}

	query := `INSERT INTO performance_reports (` + reportColumns + `) VALUES (
		$1, $2, $3, $4,
		$5, $6,
		$7, $8, $9, $10,
		$11, $12, $13,
		$14, $15, $16, $17, $18,
		$19, $20, $21, $22, $23,
		$24, $25, $26
	)`

	var durationMs *int64
	if r.AvgTradeDuration != nil {
		ms := r.AvgTradeDuration.Milliseconds()
		durationMs = &ms
	}

	_, err = s.pool.Exec(ctx, query,
		r.RunID, r.StrategyID, r.Symbol, r.Bars,
		r.InitialCapital, r.FinalEquity,
		r.CumulativeReturn, r.AnnualizedReturn, r.Volatility, r.MaxDrawdown,
		r.VaRConfidence, r.VaR, r.CVaR,
		r.Sharpe, r.Sortino, r.Calmar, r.InformationRatio, r.Beta,
		r.TotalTrades, r.WinRate, r.ProfitFactor, r.AvgHoldingBars, durationMs,
		r.TotalCosts, r.Exposure, r.BestSymbol,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert performance report: %w", err)
	}
	return nil
}

// GetByRunID retrieves a report. Returns ErrNotFound if not exists.
func (s *ReportStore) GetByRunID(ctx context.Context, runID string) (_ *domain.PerformanceReport, err error) {
	defer observe("report_get", time.Now(), &err)
	query := `SELECT ` + reportColumns + ` FROM performance_reports WHERE run_id = $1`

	r, err := scanReport(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get performance report by run id: %w", err)
	}
	return r, nil
}

// GetByStrategy retrieves all reports of a strategy, ordered by symbol.
func (s *ReportStore) GetByStrategy(ctx context.Context, strategyID string) (_ []*domain.PerformanceReport, err error) {
	defer observe("report_get_by_strategy", time.Now(), &err)
	query := `SELECT ` + reportColumns + `
		FROM performance_reports
		WHERE strategy_id = $1
		ORDER BY symbol ASC, run_id ASC
	`

	rows, err := s.pool.Query(ctx, query, strategyID)
	if err != nil {
		return nil, fmt.Errorf("get performance reports by strategy: %w", err)
	}
	defer rows.Close()

	return scanReports(rows)
}

// GetAll retrieves all reports ordered by strategy, symbol.
func (s *ReportStore) GetAll(ctx context.Context) (_ []*domain.PerformanceReport, err error) {
	defer observe("report_get_all", time.Now(), &err)
	query := `SELECT ` + reportColumns + `
		FROM performance_reports
		ORDER BY strategy_id ASC, symbol ASC, run_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all performance reports: %w", err)
	}
	defer rows.Close()

	return scanReports(rows)
}

// scanReport scans a single row into a PerformanceReport.
func scanReport(row pgx.Row) (*domain.PerformanceReport, error) {
	var r domain.PerformanceReport
	var durationMs *int64

	err := row.Scan(
		&r.RunID, &r.StrategyID, &r.Symbol, &r.Bars,
		&r.InitialCapital, &r.FinalEquity,
		&r.CumulativeReturn, &r.AnnualizedReturn, &r.Volatility, &r.MaxDrawdown,
		&r.VaRConfidence, &r.VaR, &r.CVaR,
		&r.Sharpe, &r.Sortino, &r.Calmar, &r.InformationRatio, &r.Beta,
		&r.TotalTrades, &r.WinRate, &r.ProfitFactor, &r.AvgHoldingBars, &durationMs,
		&r.TotalCosts, &r.Exposure, &r.BestSymbol,
	)
	if err != nil {
		return nil, err
	}

	if durationMs != nil {
		d := time.Duration(*durationMs) * time.Millisecond
		r.AvgTradeDuration = &d
	}
	return &r, nil
}

// scanReports scans multiple rows into a slice of PerformanceReport.
func scanReports(rows pgx.Rows) ([]*domain.PerformanceReport, error) {
	var reports []*domain.PerformanceReport

	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan performance report row: %w", err)
		}
		reports = append(reports, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate performance report rows: %w", err)
	}

	return reports, nil
}
