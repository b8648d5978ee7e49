// Package indicators provides pure rolling-window indicators over price slices.
//
// Every function returns a slice aligned to its input, with NaN for bars
// before the window is filled. Inputs are never modified.
package indicators

import (
	"math"

	"strategy-lab/internal/domain"
)

// checkWindow validates a window against the input length.
func checkWindow(name string, n, window, need int) error {
	if window <= 0 {
		return &domain.ConfigurationError{Field: name + " window", Reason: "must be positive"}
	}
	if n < need {
		return &domain.InsufficientDataError{What: name, Need: need, Have: n}
	}
	return nil
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA returns the simple moving average over window bars.
func SMA(x []float64, window int) ([]float64, error) {
	if err := checkWindow("sma", len(x), window, window); err != nil {
		return nil, err
	}
	out := nanSlice(len(x))
	for i := window - 1; i < len(x); i++ {
		out[i] = mean(x[i-window+1 : i+1])
	}
	return out, nil
}

// EMA returns the exponential moving average with smoothing 2/(window+1),
// seeded with the SMA of the first window bars.
func EMA(x []float64, window int) ([]float64, error) {
	if err := checkWindow("ema", len(x), window, window); err != nil {
		return nil, err
	}
	return ema(x, window), nil
}

// ema assumes len(x) >= window and leading values are finite.
func ema(x []float64, window int) []float64 {
	out := nanSlice(len(x))
	k := 2.0 / float64(window+1)
	out[window-1] = mean(x[:window])
	for i := window; i < len(x); i++ {
		out[i] = (x[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// RollingMeanStd returns the rolling mean and sample standard deviation (n-1).
// A constant window yields exactly zero.
func RollingMeanStd(x []float64, window int) (means, stds []float64, err error) {
	if window == 1 {
		return nil, nil, &domain.ConfigurationError{Field: "rolling std window", Reason: "must be at least 2"}
	}
	if err := checkWindow("rolling std", len(x), window, window); err != nil {
		return nil, nil, err
	}
	means = nanSlice(len(x))
	stds = nanSlice(len(x))
	for i := window - 1; i < len(x); i++ {
		w := x[i-window+1 : i+1]
		if isConstant(w) {
			means[i] = w[0]
			stds[i] = 0
			continue
		}
		m := mean(w)
		means[i] = m
		stds[i] = sampleStd(w, m)
	}
	return means, stds, nil
}

// ZScore returns (x - rolling mean) / rolling std. Bars with zero std are NaN.
func ZScore(x []float64, window int) ([]float64, error) {
	means, stds, err := RollingMeanStd(x, window)
	if err != nil {
		return nil, err
	}
	out := nanSlice(len(x))
	for i := range x {
		if math.IsNaN(stds[i]) || stds[i] == 0 {
			continue
		}
		out[i] = (x[i] - means[i]) / stds[i]
	}
	return out, nil
}

// RSI returns the relative strength index over window price changes, scaled 0-100.
// Average gain and loss are simple rolling means. When the average loss is zero
// the value is 50.
func RSI(x []float64, window int) ([]float64, error) {
	if err := checkWindow("rsi", len(x), window, window+1); err != nil {
		return nil, err
	}
	out := nanSlice(len(x))
	gains := make([]float64, len(x))
	losses := make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		d := x[i] - x[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	for i := window; i < len(x); i++ {
		avgGain := mean(gains[i-window+1 : i+1])
		avgLoss := mean(losses[i-window+1 : i+1])
		if avgLoss == 0 {
			out[i] = 50
			continue
		}
		rs := avgGain / avgLoss
		out[i] = 100 - 100/(1+rs)
	}
	return out, nil
}

// Bands holds Bollinger band series.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger returns the moving average plus/minus k sample standard deviations.
func Bollinger(x []float64, window int, k float64) (*Bands, error) {
	if k < 0 || math.IsNaN(k) {
		return nil, &domain.ConfigurationError{Field: "bollinger k", Reason: "must be non-negative"}
	}
	means, stds, err := RollingMeanStd(x, window)
	if err != nil {
		return nil, err
	}
	b := &Bands{
		Upper:  nanSlice(len(x)),
		Middle: means,
		Lower:  nanSlice(len(x)),
	}
	for i := range x {
		if math.IsNaN(means[i]) {
			continue
		}
		b.Upper[i] = means[i] + k*stds[i]
		b.Lower[i] = means[i] - k*stds[i]
	}
	return b, nil
}

// MACDResult holds the MACD line, its signal line and their difference.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD returns EMA(fast) - EMA(slow) and a signal-line EMA of that difference.
func MACD(x []float64, fast, slow, signal int) (*MACDResult, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return nil, &domain.ConfigurationError{Field: "macd windows", Reason: "must be positive"}
	}
	if fast >= slow {
		return nil, &domain.ConfigurationError{Field: "macd fast window", Reason: "must be shorter than slow window"}
	}
	need := slow + signal - 1
	if len(x) < need {
		return nil, &domain.InsufficientDataError{What: "macd", Need: need, Have: len(x)}
	}

	fastEMA := ema(x, fast)
	slowEMA := ema(x, slow)
	res := &MACDResult{
		MACD:      nanSlice(len(x)),
		Signal:    nanSlice(len(x)),
		Histogram: nanSlice(len(x)),
	}
	for i := slow - 1; i < len(x); i++ {
		res.MACD[i] = fastEMA[i] - slowEMA[i]
	}

	sig := ema(res.MACD[slow-1:], signal)
	for i, v := range sig {
		j := i + slow - 1
		res.Signal[j] = v
		if !math.IsNaN(v) {
			res.Histogram[j] = res.MACD[j] - v
		}
	}
	return res, nil
}

// Returns returns simple per-bar returns x[i]/x[i-1] - 1; the first value is NaN.
func Returns(x []float64) []float64 {
	out := nanSlice(len(x))
	for i := 1; i < len(x); i++ {
		if x[i-1] == 0 {
			continue
		}
		out[i] = x[i]/x[i-1] - 1
	}
	return out
}

// Momentum returns the return over lookback bars, x[i]/x[i-lookback] - 1.
func Momentum(x []float64, lookback int) ([]float64, error) {
	if err := checkWindow("momentum", len(x), lookback, lookback+1); err != nil {
		return nil, err
	}
	out := nanSlice(len(x))
	for i := lookback; i < len(x); i++ {
		if x[i-lookback] == 0 {
			continue
		}
		out[i] = x[i]/x[i-lookback] - 1
	}
	return out, nil
}

func mean(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

// isConstant reports whether all values are identical. Summing a repeated
// value that is not exactly representable drifts, so the mean would not
// match it bit for bit.
func isConstant(x []float64) bool {
	for _, v := range x[1:] {
		if v != x[0] {
			return false
		}
	}
	return true
}

// sampleStd uses the n-1 denominator.
func sampleStd(x []float64, m float64) float64 {
	if len(x) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range x {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(x)-1))
}
