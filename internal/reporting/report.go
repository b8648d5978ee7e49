package reporting

import (
	"time"

	"strategy-lab/internal/domain"
)

// Summary is the cross-strategy, cross-symbol view of a batch.
type Summary struct {
	// Metadata
	GeneratedAt time.Time `json:"generated_at"`
	Runs        int       `json:"runs"`
	FailedRuns  int       `json:"failed_runs"`

	// Per strategy, sorted by strategy_id
	Strategies []StrategySummary `json:"strategies"`

	Overall  OverallSummary `json:"overall"`
	Failures []FailureRow   `json:"failures,omitempty"`
	Insights []string       `json:"insights,omitempty"`
}

// StrategySummary aggregates one strategy across the symbols it ran on.
type StrategySummary struct {
	StrategyID string `json:"strategy_id"`
	Kind       string `json:"kind"`
	NumSymbols int    `json:"num_symbols"`
	Failures   int    `json:"failures"`

	// Averages across symbols; ratio fields average only defined values.
	Average *domain.PerformanceReport `json:"average"`

	BestSymbol    string      `json:"best_symbol"`
	WorstSymbol   string      `json:"worst_symbol"`
	TopPerformers []Performer `json:"top_performers"`

	// Per-symbol reports, best first
	Reports []*domain.PerformanceReport `json:"reports"`
}

// Performer is one entry of a top-performers list.
type Performer struct {
	Symbol           string   `json:"symbol"`
	Sharpe           *float64 `json:"sharpe"`
	AnnualizedReturn float64  `json:"annualized_return"`
	CumulativeReturn float64  `json:"cumulative_return"`
}

// OverallSummary compares strategies.
type OverallSummary struct {
	BestStrategy  string   `json:"best_strategy"`  // highest average Sharpe
	HighestReturn *float64 `json:"highest_return"` // highest average annualized return
	HighestSharpe *float64 `json:"highest_sharpe"` // highest average Sharpe
	SymbolsTested int      `json:"symbols_tested"` // sum of per-strategy symbol counts
}

// FailureRow describes one failed run.
type FailureRow struct {
	StrategyID string `json:"strategy_id"`
	Symbol     string `json:"symbol"`
	ErrorKind  string `json:"error_kind"`
	Error      string `json:"error"`
}

// topN is the length of top-performer lists.
const topN = 3
