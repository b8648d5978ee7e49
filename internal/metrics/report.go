package metrics

import (
	"strategy-lab/internal/domain"
)

// Input is everything the report needs from one backtest.
type Input struct {
	StrategyID     string
	Symbol         string
	InitialCapital float64
	Equity         []domain.EquityPoint
	Trades         []domain.Trade
	TotalCosts     float64
	Exposure       float64

	// Benchmark prices aligned with Equity, usually the first leg's closes.
	// Nil leaves InformationRatio and Beta undefined.
	Benchmark []float64
}

// Compute builds the performance report of one run. It fails only on
// invalid configuration or a curve shorter than two bars; undefined
// statistics are left nil.
func Compute(in Input, cfg Config) (*domain.PerformanceReport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(in.Equity) < 2 {
		return nil, &domain.InsufficientDataError{What: "equity curve", Need: 2, Have: len(in.Equity)}
	}

	equity := make([]float64, len(in.Equity))
	for i, p := range in.Equity {
		equity[i] = p.Equity
	}
	rets := Returns(equity)

	initial := in.InitialCapital
	if initial <= 0 {
		initial = equity[0]
	}
	final := equity[len(equity)-1]
	cum := 0.0
	if initial > 0 {
		cum = final/initial - 1
	}

	r := &domain.PerformanceReport{
		StrategyID:       in.StrategyID,
		Symbol:           in.Symbol,
		Bars:             len(equity),
		InitialCapital:   initial,
		FinalEquity:      final,
		CumulativeReturn: cum,
		AnnualizedReturn: AnnualizedReturn(cum, len(rets), cfg.PeriodsPerYear),
		Volatility:       Volatility(rets, cfg.PeriodsPerYear),
		MaxDrawdown:      MaxDrawdown(equity),
		VaRConfidence:    cfg.VaRConfidence,
		TotalCosts:       in.TotalCosts,
		Exposure:         in.Exposure,
	}

	varFn := HistoricalVaR
	if cfg.VaRMethod == VaRParametric {
		varFn = ParametricVaR
	}
	if v, cv, ok := varFn(rets, cfg.VaRConfidence); ok {
		r.VaR = ptr(v)
		r.CVaR = ptr(cv)
	}

	r.Sharpe = optional(Sharpe(rets, cfg.RiskFreeRate, cfg.PeriodsPerYear))
	r.Sortino = optional(Sortino(rets, 0, cfg.PeriodsPerYear))
	r.Calmar = optional(Calmar(r.AnnualizedReturn, r.MaxDrawdown))

	if len(in.Benchmark) == len(equity) {
		bench := Returns(in.Benchmark)
		r.InformationRatio = optional(InformationRatio(rets, bench, cfg.PeriodsPerYear))
		r.Beta = optional(Beta(rets, bench))
	}

	ts := ComputeTradeStats(in.Trades)
	r.TotalTrades = ts.Total
	r.WinRate = ts.WinRate
	r.ProfitFactor = ts.ProfitFactor
	r.AvgHoldingBars = ts.AvgHolding
	r.AvgTradeDuration = ts.AvgDuration
	return r, nil
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
