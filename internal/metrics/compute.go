package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"strategy-lab/internal/domain"
)

// VaR estimation methods.
const (
	VaRHistorical = "historical"
	VaRParametric = "parametric"
)

// Config holds the options of the statistics report.
type Config struct {
	PeriodsPerYear float64 // trading periods per year, 252 for daily bars
	RiskFreeRate   float64 // annual, subtracted per period in Sharpe
	VaRConfidence  float64 // e.g. 0.95
	VaRMethod      string  // VaRHistorical or VaRParametric
}

// DefaultConfig returns daily-bar defaults.
func DefaultConfig() Config {
	return Config{
		PeriodsPerYear: 252,
		RiskFreeRate:   0,
		VaRConfidence:  0.95,
		VaRMethod:      VaRHistorical,
	}
}

// Validate checks option ranges.
func (c Config) Validate() error {
	if !(c.PeriodsPerYear > 0) {
		return &domain.ConfigurationError{Field: "trading_periods_per_year", Reason: "must be positive"}
	}
	if !(c.VaRConfidence > 0 && c.VaRConfidence < 1) {
		return &domain.ConfigurationError{Field: "var_confidence", Reason: "must be in (0, 1)"}
	}
	if math.IsNaN(c.RiskFreeRate) || math.IsInf(c.RiskFreeRate, 0) {
		return &domain.ConfigurationError{Field: "risk_free_rate", Reason: "must be finite"}
	}
	switch c.VaRMethod {
	case VaRHistorical, VaRParametric:
	default:
		return &domain.ConfigurationError{Field: "var_method", Reason: "must be historical or parametric"}
	}
	return nil
}

// Returns computes per-bar simple returns of an equity curve.
// A bar following non-positive equity has return 0.
func Returns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] > 0 {
			out[i-1] = equity[i]/equity[i-1] - 1
		}
	}
	return out
}

// CumulativeReturn is last/first - 1.
func CumulativeReturn(equity []float64) float64 {
	if len(equity) == 0 || !(equity[0] > 0) {
		return 0
	}
	return equity[len(equity)-1]/equity[0] - 1
}

// AnnualizedReturn compounds cumulative return over periods bars to a yearly rate.
func AnnualizedReturn(cumulative float64, periods int, periodsPerYear float64) float64 {
	if periods <= 0 {
		return 0
	}
	growth := 1 + cumulative
	if growth <= 0 {
		return -1
	}
	return math.Pow(growth, periodsPerYear/float64(periods)) - 1
}

// Volatility is the annualized sample standard deviation of returns.
func Volatility(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 || isConstant(returns) {
		return 0
	}
	return stat.StdDev(returns, nil) * math.Sqrt(periodsPerYear)
}

// MaxDrawdown returns min(equity/running peak - 1); 0 for a curve that never falls.
func MaxDrawdown(equity []float64) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			if dd := e/peak - 1; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// HistoricalVaR returns the (1-confidence) quantile of returns and the mean
// of returns at or below it.
func HistoricalVaR(returns []float64, confidence float64) (float64, float64, bool) {
	if len(returns) == 0 {
		return 0, 0, false
	}
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	v := computePercentile(sorted, 1-confidence)
	return v, tailMean(sorted, v), true
}

// ParametricVaR assumes normally distributed returns.
func ParametricVaR(returns []float64, confidence float64) (float64, float64, bool) {
	if len(returns) < 2 {
		return 0, 0, false
	}
	mean, std := stat.MeanStdDev(returns, nil)
	v := mean + std*distuv.UnitNormal.Quantile(1-confidence)

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)
	cvar := tailMean(sorted, v)
	if math.IsNaN(cvar) {
		// no observation in the tail: use the normal expected shortfall
		z := distuv.UnitNormal.Quantile(1 - confidence)
		cvar = mean - std*distuv.UnitNormal.Prob(z)/(1-confidence)
	}
	return v, cvar, true
}

// tailMean averages sorted values <= v; NaN when none.
func tailMean(sorted []float64, v float64) float64 {
	sum, n := 0.0, 0
	for _, r := range sorted {
		if r > v {
			break
		}
		sum += r
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Sharpe is the annualized mean excess return over the return standard deviation.
// Undefined for fewer than two returns or zero variance.
func Sharpe(returns []float64, riskFreeRate, periodsPerYear float64) (float64, bool) {
	if len(returns) < 2 || isConstant(returns) {
		return 0, false
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if !(std > 0) {
		return 0, false
	}
	return (mean - riskFreeRate/periodsPerYear) / std * math.Sqrt(periodsPerYear), true
}

// Sortino uses the root mean square of the returns below target as denominator.
// Undefined when no return falls below target.
func Sortino(returns []float64, target, periodsPerYear float64) (float64, bool) {
	if len(returns) == 0 {
		return 0, false
	}
	sumSq, n := 0.0, 0
	for _, r := range returns {
		if d := r - target; d < 0 {
			sumSq += d * d
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	downside := math.Sqrt(sumSq / float64(n))
	if !(downside > 0) {
		return 0, false
	}
	return (stat.Mean(returns, nil) - target) / downside * math.Sqrt(periodsPerYear), true
}

// Calmar is annualized return over |max drawdown|; undefined with no drawdown.
func Calmar(annualized, maxDrawdown float64) (float64, bool) {
	if maxDrawdown == 0 {
		return 0, false
	}
	return annualized / math.Abs(maxDrawdown), true
}

// InformationRatio is the annualized mean active return over its standard
// deviation (tracking error). Undefined when lengths differ or tracking error is 0.
func InformationRatio(returns, benchmark []float64, periodsPerYear float64) (float64, bool) {
	if len(returns) != len(benchmark) || len(returns) < 2 {
		return 0, false
	}
	active := make([]float64, len(returns))
	for i := range returns {
		active[i] = returns[i] - benchmark[i]
	}
	if isConstant(active) {
		return 0, false
	}
	mean, te := stat.MeanStdDev(active, nil)
	if !(te > 0) {
		return 0, false
	}
	return mean / te * math.Sqrt(periodsPerYear), true
}

// Beta is cov(returns, benchmark) / var(benchmark).
func Beta(returns, benchmark []float64) (float64, bool) {
	if len(returns) != len(benchmark) || len(returns) < 2 || isConstant(benchmark) {
		return 0, false
	}
	v := stat.Variance(benchmark, nil)
	if !(v > 0) {
		return 0, false
	}
	return stat.Covariance(returns, benchmark, nil) / v, true
}

// isConstant reports whether every value equals the first. Summation drift
// would otherwise give a tiny nonzero deviation for a constant series.
func isConstant(x []float64) bool {
	for _, v := range x[1:] {
		if v != x[0] {
			return false
		}
	}
	return true
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
