package strategy

import (
	"fmt"
	"math"
	"sort"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/indicators"
)

// MomentumConfig parameterizes the volatility-adjusted momentum strategy.
type MomentumConfig struct {
	Lookback         int     // bars for the momentum return
	VolatilityWindow int     // bars for the rolling std of returns
	EntryThreshold   float64 // minimum |momentum / volatility| to take a position
	VolatilityFloor  float64 // lower bound for the volatility denominator

	// Scaled sizes positions by min(|vam|/ScaleDivisor, 1) instead of ±1.
	Scaled       bool
	ScaleDivisor float64

	// AdaptiveWindow > 0 raises the threshold to the AdaptiveQuantile of the
	// last AdaptiveWindow values of the adjusted momentum.
	AdaptiveWindow   int
	AdaptiveQuantile float64
}

// DefaultMomentumConfig returns lookback 20, volatility window 20, threshold 1.0.
func DefaultMomentumConfig() MomentumConfig {
	return MomentumConfig{
		Lookback:         20,
		VolatilityWindow: 20,
		EntryThreshold:   1.0,
		VolatilityFloor:  1e-8,
		ScaleDivisor:     2,
		AdaptiveQuantile: 0.8,
	}
}

// Validate checks parameter ranges.
func (c MomentumConfig) Validate() error {
	if c.Lookback <= 0 {
		return &domain.ConfigurationError{Field: "lookback_window", Reason: "must be positive"}
	}
	if c.VolatilityWindow < 2 {
		return &domain.ConfigurationError{Field: "volatility_window", Reason: "must be at least 2"}
	}
	if !(c.EntryThreshold >= 0) {
		return &domain.ConfigurationError{Field: "entry_threshold", Reason: "must be non-negative"}
	}
	if !(c.VolatilityFloor > 0) {
		return &domain.ConfigurationError{Field: "volatility_floor", Reason: "must be positive"}
	}
	if c.Scaled && !(c.ScaleDivisor > 0) {
		return &domain.ConfigurationError{Field: "scale_divisor", Reason: "must be positive"}
	}
	if c.AdaptiveWindow < 0 {
		return &domain.ConfigurationError{Field: "adaptive_window", Reason: "must be non-negative"}
	}
	if c.AdaptiveWindow > 0 && !(c.AdaptiveQuantile > 0 && c.AdaptiveQuantile < 1) {
		return &domain.ConfigurationError{Field: "adaptive_quantile", Reason: "must be in (0, 1)"}
	}
	return nil
}

// ID returns strategy identifier.
func (c MomentumConfig) ID() string {
	id := fmt.Sprintf("%s_%d_%d_%.2f", KindMomentum, c.Lookback, c.VolatilityWindow, c.EntryThreshold)
	if c.Scaled {
		id += "_SCALED"
	}
	if c.AdaptiveWindow > 0 {
		id += fmt.Sprintf("_Q%.2f_%d", c.AdaptiveQuantile, c.AdaptiveWindow)
	}
	return id
}

// Momentum goes long when lookback return divided by realized volatility is
// above the threshold and short when it is below minus the threshold.
func Momentum(series *domain.PriceSeries, cfg MomentumConfig) (*domain.Signal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}

	vam, err := adjustedMomentum(series.Closes(), cfg)
	if err != nil {
		return nil, err
	}

	weights := make([]float64, len(vam))
	for i, v := range vam {
		if math.IsNaN(v) {
			continue
		}
		threshold := cfg.EntryThreshold
		if cfg.AdaptiveWindow > 0 {
			if q, ok := trailingQuantile(vam, i, cfg.AdaptiveWindow, cfg.AdaptiveQuantile); ok && q > threshold {
				threshold = q
			}
		}

		var sign float64
		switch {
		case v > threshold:
			sign = 1
		case v < -threshold:
			sign = -1
		default:
			continue
		}
		if cfg.Scaled {
			weights[i] = sign * math.Min(math.Abs(v)/cfg.ScaleDivisor, 1)
		} else {
			weights[i] = sign
		}
	}
	return singleLeg(cfg.ID(), series, weights), nil
}

// adjustedMomentum returns momentum / max(volatility, floor); NaN during warm-up.
// A zero lookback return is exactly zero regardless of the floor.
func adjustedMomentum(closes []float64, cfg MomentumConfig) ([]float64, error) {
	need := cfg.Lookback + 1
	if v := cfg.VolatilityWindow + 1; v > need {
		need = v
	}
	if len(closes) < need {
		return nil, &domain.InsufficientDataError{What: "momentum", Need: need, Have: len(closes)}
	}

	mom, err := indicators.Momentum(closes, cfg.Lookback)
	if err != nil {
		return nil, fmt.Errorf("momentum return: %w", err)
	}
	rets := indicators.Returns(closes)
	_, vol, err := indicators.RollingMeanStd(rets[1:], cfg.VolatilityWindow)
	if err != nil {
		return nil, fmt.Errorf("momentum volatility: %w", err)
	}

	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
		if i == 0 || math.IsNaN(mom[i]) || math.IsNaN(vol[i-1]) {
			continue
		}
		out[i] = mom[i] / math.Max(vol[i-1], cfg.VolatilityFloor)
	}
	return out, nil
}

// trailingQuantile returns the q-quantile of x[i-window+1..i] when the whole
// window is defined.
func trailingQuantile(x []float64, i, window int, q float64) (float64, bool) {
	if i+1 < window {
		return 0, false
	}
	w := make([]float64, 0, window)
	for _, v := range x[i-window+1 : i+1] {
		if math.IsNaN(v) {
			return 0, false
		}
		w = append(w, v)
	}
	sort.Float64s(w)
	return quantile(w, q), true
}

// quantile uses linear interpolation on sorted values.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	idx := q * float64(n-1)
	lower := int(idx)
	if lower+1 >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}
