package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/indicators"
)

// PairsConfig parameterizes the walk-forward pairs strategy.
type PairsConfig struct {
	FormationWindow  int     // bars used to fit the hedge ratio and test the spread
	ZScoreWindow     int     // rolling window for the spread z-score
	EntryZ           float64 // enter when |z| exceeds this
	ExitZ            float64 // exit when z crosses back inside this band
	ADFLags          int     // lagged differences in the unit-root regression
	ADFCriticalValue float64 // spread is stationary when the ADF statistic is below this
}

// DefaultPairsConfig returns formation 60, z window 20, entry 2.0, exit 0.5,
// one ADF lag and the 5% Engle-Granger critical value for two series.
func DefaultPairsConfig() PairsConfig {
	return PairsConfig{
		FormationWindow:  60,
		ZScoreWindow:     20,
		EntryZ:           2.0,
		ExitZ:            0.5,
		ADFLags:          1,
		ADFCriticalValue: -3.34,
	}
}

// Validate checks parameter ranges.
func (c PairsConfig) Validate() error {
	if c.ADFLags < 0 {
		return &domain.ConfigurationError{Field: "adf_lags", Reason: "must be non-negative"}
	}
	if need := minADFBars(c.ADFLags); c.FormationWindow < need {
		return &domain.ConfigurationError{Field: "lookback_window", Reason: fmt.Sprintf("must be at least %d", need)}
	}
	if c.ZScoreWindow < 2 || c.ZScoreWindow > c.FormationWindow {
		return &domain.ConfigurationError{Field: "zscore_window", Reason: "must be in [2, lookback_window]"}
	}
	if math.IsNaN(c.ADFCriticalValue) || c.ADFCriticalValue >= 0 {
		return &domain.ConfigurationError{Field: "adf_critical_value", Reason: "must be negative"}
	}
	return validateBands(c.EntryZ, c.ExitZ)
}

// ID returns strategy identifier.
func (c PairsConfig) ID() string {
	return fmt.Sprintf("%s_%d_%d_%.2f_%.2f", KindPairs, c.FormationWindow, c.ZScoreWindow, c.EntryZ, c.ExitZ)
}

// Pairs trades the spread a - h·b. The series are split into consecutive
// blocks of FormationWindow bars; each block trades with the hedge ratio and
// stationarity verdict fitted on the block before it, so no bar uses later
// data. Blocks whose formation spread fails the ADF test are flat. Positions
// are closed at block boundaries.
//
// Leg weights are fixed at entry so that the position holds h units of b per
// unit of a; see legWeights.
func Pairs(a, b *domain.PriceSeries, cfg PairsConfig) (*domain.Signal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkAligned(a, b); err != nil {
		return nil, err
	}
	n := a.Len()
	if n <= cfg.FormationWindow {
		return nil, &domain.InsufficientDataError{What: "pairs formation", Need: cfg.FormationWindow + 1, Have: n}
	}

	pa, pb := a.Closes(), b.Closes()
	wa := make([]float64, n)
	wb := make([]float64, n)
	var windows []domain.FormationWindow

	for start := cfg.FormationWindow; start < n; start += cfg.FormationWindow {
		end := start + cfg.FormationWindow
		if end > n {
			end = n
		}
		fw := fitWindow(pa, pb, start-cfg.FormationWindow, start, cfg)
		fw.TradeStart, fw.TradeEnd = start, end
		windows = append(windows, fw)
		if !fw.Tradable {
			continue
		}

		// z-score history reaches back into the formation block
		from := start - cfg.ZScoreWindow + 1
		spread := make([]float64, end-from)
		for i := range spread {
			spread[i] = pa[from+i] - fw.HedgeRatio*pb[from+i]
		}
		z, err := indicators.ZScore(spread, cfg.ZScoreWindow)
		if err != nil {
			return nil, fmt.Errorf("pairs spread z-score: %w", err)
		}
		pos := zScorePositions(z[cfg.ZScoreWindow-1:], cfg.EntryZ, cfg.ExitZ)

		var held, heldA, heldB float64
		for i, s := range pos {
			t := start + i
			if s == 0 {
				held = 0
				continue
			}
			if s != held {
				held = s
				heldA, heldB = legWeights(s, fw.HedgeRatio, pa[t], pb[t])
			}
			wa[t], wb[t] = heldA, heldB
		}
	}

	return &domain.Signal{
		StrategyID: cfg.ID(),
		Times:      a.Times(),
		Legs: []domain.SignalLeg{
			{Symbol: a.Symbol, Weights: wa},
			{Symbol: b.Symbol, Weights: wb},
		},
		Windows: windows,
	}, nil
}

// legWeights returns the weights that buy one unit of a against h units of b
// at prices pa and pb, normalized to a gross exposure of 1:
//
//	wa = s·pa/(pa+|h|·pb)    wb = -s·h·pb/(pa+|h|·pb)
func legWeights(s, h, pa, pb float64) (float64, float64) {
	gross := pa + math.Abs(h)*pb
	return s * pa / gross, -s * h * pb / gross
}

// fitWindow estimates hedge ratio and stationarity on [from, to).
func fitWindow(pa, pb []float64, from, to int, cfg PairsConfig) domain.FormationWindow {
	fw := domain.FormationWindow{FormationStart: from}

	h, c, err := hedgeRatio(pa[from:to], pb[from:to])
	if err != nil {
		fw.Err = err
		return fw
	}
	fw.HedgeRatio, fw.Intercept = h, c

	spread := make([]float64, to-from)
	for i := range spread {
		spread[i] = pa[from+i] - h*pb[from+i]
	}
	adf, err := adfStatistic(spread, cfg.ADFLags)
	if err != nil {
		fw.Err = err
		return fw
	}
	fw.ADFStatistic = adf
	fw.HalfLife = halfLife(spread)
	if adf >= cfg.ADFCriticalValue {
		fw.Err = &domain.NonStationarySpreadError{Statistic: adf, CriticalValue: cfg.ADFCriticalValue, WindowStart: from}
		return fw
	}
	fw.Tradable = true
	return fw
}

// checkAligned requires both series valid, equally long and on the same timestamps.
func checkAligned(a, b *domain.PriceSeries) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	if a.Len() != b.Len() {
		return &domain.SeriesError{Symbol: b.Symbol, Index: min(a.Len(), b.Len()), Reason: "pair series differ in length"}
	}
	for i := range a.Bars {
		if !a.Bars[i].Timestamp.Equal(b.Bars[i].Timestamp) {
			return &domain.SeriesError{Symbol: b.Symbol, Index: i, Reason: "pair series timestamps not aligned"}
		}
	}
	return nil
}

// PairAnalysis is the full-sample cointegration verdict for two symbols.
type PairAnalysis struct {
	SymbolA      string  `json:"symbol_a"`
	SymbolB      string  `json:"symbol_b"`
	Bars         int     `json:"bars"`
	HedgeRatio   float64 `json:"hedge_ratio"`
	Intercept    float64 `json:"intercept"`
	ADFStatistic float64 `json:"adf_statistic"`
	HalfLife     float64 `json:"half_life"`
}

// AnalyzePair aligns a and b and runs the Engle-Granger test on the whole
// overlap. Returns *domain.NonStationarySpreadError when the spread fails.
func AnalyzePair(a, b *domain.PriceSeries, cfg PairsConfig) (*PairAnalysis, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	aa, bb, err := domain.AlignPair(a, b)
	if err != nil {
		return nil, err
	}
	n := aa.Len()
	if n < cfg.FormationWindow {
		return nil, &domain.InsufficientDataError{What: "pair analysis " + a.Symbol + "/" + b.Symbol, Need: cfg.FormationWindow, Have: n}
	}

	fw := fitWindow(aa.Closes(), bb.Closes(), 0, n, cfg)
	res := &PairAnalysis{
		SymbolA:      aa.Symbol,
		SymbolB:      bb.Symbol,
		Bars:         n,
		HedgeRatio:   fw.HedgeRatio,
		Intercept:    fw.Intercept,
		ADFStatistic: fw.ADFStatistic,
		HalfLife:     fw.HalfLife,
	}
	if fw.Err != nil {
		return res, fw.Err
	}
	return res, nil
}

// FindPairs tests every pair of series and returns the stationary ones,
// most negative ADF statistic first. Pairs that cannot be tested are skipped.
func FindPairs(series []*domain.PriceSeries, cfg PairsConfig) ([]PairAnalysis, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var out []PairAnalysis
	for i := 0; i < len(series); i++ {
		for j := i + 1; j < len(series); j++ {
			res, err := AnalyzePair(series[i], series[j], cfg)
			if err != nil {
				if errors.Is(err, domain.ErrConfiguration) {
					return nil, err
				}
				continue
			}
			out = append(out, *res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ADFStatistic != out[j].ADFStatistic {
			return out[i].ADFStatistic < out[j].ADFStatistic
		}
		if out[i].SymbolA != out[j].SymbolA {
			return out[i].SymbolA < out[j].SymbolA
		}
		return out[i].SymbolB < out[j].SymbolB
	})
	return out, nil
}
