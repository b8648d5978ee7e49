package domain

import (
	"strings"
	"time"
)

// EquityPoint is the marked-to-market portfolio value at one bar.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Cash   float64   `json:"cash"`
	Equity float64   `json:"equity"`
}

// PerformanceReport holds the standardized statistics of one run.
// Nil ratio fields are undefined (zero denominator or no trades).
type PerformanceReport struct {
	RunID      string `json:"run_id,omitempty"`
	StrategyID string `json:"strategy_id"`
	Symbol     string `json:"symbol"`
	Bars       int    `json:"bars"`

	InitialCapital float64 `json:"initial_capital"`
	FinalEquity    float64 `json:"final_equity"`

	// Return and risk
	CumulativeReturn float64  `json:"cumulative_return"`
	AnnualizedReturn float64  `json:"annualized_return"`
	Volatility       float64  `json:"volatility"` // annualized
	MaxDrawdown      float64  `json:"max_drawdown"`
	VaRConfidence    float64  `json:"var_confidence"`
	VaR              *float64 `json:"var"`
	CVaR             *float64 `json:"cvar"`

	// Ratios
	Sharpe           *float64 `json:"sharpe"`
	Sortino          *float64 `json:"sortino"`
	Calmar           *float64 `json:"calmar"`
	InformationRatio *float64 `json:"information_ratio"`
	Beta             *float64 `json:"beta"`

	// Trades
	TotalTrades      int            `json:"total_trades"`
	WinRate          *float64       `json:"win_rate"`
	ProfitFactor     *float64       `json:"profit_factor"`
	AvgHoldingBars   *float64       `json:"avg_holding_bars"`
	AvgTradeDuration *time.Duration `json:"avg_trade_duration"`
	TotalCosts       float64        `json:"total_costs"`
	Exposure         float64        `json:"exposure"`

	// BestSymbol is set on aggregated reports: the symbol with the highest Sharpe.
	BestSymbol string `json:"best_symbol,omitempty"`
}

// RunResult is the outcome of one (strategy, symbol) or (strategy, pair) backtest.
// Err is set when the run failed; the other fields may then be empty.
type RunResult struct {
	RunID      string             `json:"run_id"`
	StrategyID string             `json:"strategy_id"`
	Kind       string             `json:"kind"`
	Symbols    []string           `json:"symbols"`
	Equity     []EquityPoint      `json:"equity,omitempty"`
	Trades     []Trade            `json:"trades,omitempty"`
	Report     *PerformanceReport `json:"report,omitempty"`
	Windows    []FormationWindow  `json:"windows,omitempty"`
	Err        error              `json:"-"`
	Duration   time.Duration      `json:"duration"`
}

// Label joins the run's symbols, e.g. "KO/PEP".
func (r *RunResult) Label() string {
	return strings.Join(r.Symbols, "/")
}

// Failed reports whether the run produced an error.
func (r *RunResult) Failed() bool {
	return r.Err != nil
}

// ErrorString returns the error message or "".
func (r *RunResult) ErrorString() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
