package metrics

import (
	"errors"
	"sort"
	"time"

	"strategy-lab/internal/domain"
)

// ErrNoReports is returned when there is nothing to aggregate.
var ErrNoReports = errors.New("no reports available for aggregation")

// Aggregate averages the reports of one strategy across symbols.
// Ratio fields average only the reports where they are defined and stay nil
// when none is. BestSymbol is the symbol with the highest Sharpe, ties and
// undefined Sharpe falling back to cumulative return.
func Aggregate(strategyID string, reports []*domain.PerformanceReport) (*domain.PerformanceReport, error) {
	var rs []*domain.PerformanceReport
	for _, r := range reports {
		if r != nil {
			rs = append(rs, r)
		}
	}
	if len(rs) == 0 {
		return nil, ErrNoReports
	}

	n := float64(len(rs))
	agg := &domain.PerformanceReport{StrategyID: strategyID, Symbol: "*"}
	for _, r := range rs {
		agg.Bars += r.Bars
		agg.InitialCapital += r.InitialCapital / n
		agg.FinalEquity += r.FinalEquity / n
		agg.CumulativeReturn += r.CumulativeReturn / n
		agg.AnnualizedReturn += r.AnnualizedReturn / n
		agg.Volatility += r.Volatility / n
		agg.MaxDrawdown += r.MaxDrawdown / n
		agg.TotalTrades += r.TotalTrades
		agg.TotalCosts += r.TotalCosts
		agg.Exposure += r.Exposure / n
		agg.VaRConfidence = r.VaRConfidence
	}

	field := func(get func(*domain.PerformanceReport) *float64) *float64 {
		sum, k := 0.0, 0
		for _, r := range rs {
			if v := get(r); v != nil {
				sum += *v
				k++
			}
		}
		if k == 0 {
			return nil
		}
		return ptr(sum / float64(k))
	}
	agg.VaR = field(func(r *domain.PerformanceReport) *float64 { return r.VaR })
	agg.CVaR = field(func(r *domain.PerformanceReport) *float64 { return r.CVaR })
	agg.Sharpe = field(func(r *domain.PerformanceReport) *float64 { return r.Sharpe })
	agg.Sortino = field(func(r *domain.PerformanceReport) *float64 { return r.Sortino })
	agg.Calmar = field(func(r *domain.PerformanceReport) *float64 { return r.Calmar })
	agg.InformationRatio = field(func(r *domain.PerformanceReport) *float64 { return r.InformationRatio })
	agg.Beta = field(func(r *domain.PerformanceReport) *float64 { return r.Beta })
	agg.WinRate = field(func(r *domain.PerformanceReport) *float64 { return r.WinRate })
	agg.ProfitFactor = field(func(r *domain.PerformanceReport) *float64 { return r.ProfitFactor })
	agg.AvgHoldingBars = field(func(r *domain.PerformanceReport) *float64 { return r.AvgHoldingBars })

	var dur, k int64
	for _, r := range rs {
		if r.AvgTradeDuration != nil {
			dur += int64(*r.AvgTradeDuration)
			k++
		}
	}
	if k > 0 {
		d := time.Duration(dur / k)
		agg.AvgTradeDuration = &d
	}

	agg.BestSymbol = Rank(rs)[0].Symbol
	return agg, nil
}

// Rank returns reports sorted best first: defined Sharpe descending, then
// undefined Sharpe, ties broken by cumulative return then symbol.
func Rank(reports []*domain.PerformanceReport) []*domain.PerformanceReport {
	out := make([]*domain.PerformanceReport, len(reports))
	copy(out, reports)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Sharpe != nil) != (b.Sharpe != nil) {
			return a.Sharpe != nil
		}
		if a.Sharpe != nil && *a.Sharpe != *b.Sharpe {
			return *a.Sharpe > *b.Sharpe
		}
		if a.CumulativeReturn != b.CumulativeReturn {
			return a.CumulativeReturn > b.CumulativeReturn
		}
		return a.Symbol < b.Symbol
	})
	return out
}
