package strategy

import (
	"errors"
	"strings"
)

// Factory errors
var (
	ErrMissingKind = errors.New("strategy kind is required")
)

// Params is the flat parameter set used by configuration files and CLIs.
// Nil fields keep the kind's default.
type Params struct {
	Kind           string
	LookbackWindow *int
	EntryThreshold *float64
	ExitThreshold  *float64

	// MOMENTUM
	VolatilityWindow *int
	VolatilityFloor  *float64
	Scaled           *bool
	ScaleDivisor     *float64
	AdaptiveWindow   *int
	AdaptiveQuantile *float64

	// PAIRS
	ZScoreWindow     *int
	ADFLags          *int
	ADFCriticalValue *float64
}

// FromConfig creates a validated Config from flat parameters.
// For PAIRS the lookback window is the formation window.
func FromConfig(p Params) (Config, error) {
	if p.Kind == "" {
		return Config{}, ErrMissingKind
	}

	var cfg Config
	switch Kind(strings.ToUpper(p.Kind)) {
	case KindMeanReversion:
		cfg = fromMeanReversionParams(p)
	case KindMomentum:
		cfg = fromMomentumParams(p)
	case KindPairs:
		cfg = fromPairsParams(p)
	default:
		return Config{}, ErrUnknownKind
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fromMeanReversionParams creates a mean reversion Config.
func fromMeanReversionParams(p Params) Config {
	c := DefaultMeanReversionConfig()
	setInt(&c.Lookback, p.LookbackWindow)
	setFloat(&c.EntryZ, p.EntryThreshold)
	setFloat(&c.ExitZ, p.ExitThreshold)
	return Config{Kind: KindMeanReversion, MeanReversion: &c}
}

// fromMomentumParams creates a momentum Config.
func fromMomentumParams(p Params) Config {
	c := DefaultMomentumConfig()
	setInt(&c.Lookback, p.LookbackWindow)
	setFloat(&c.EntryThreshold, p.EntryThreshold)
	setInt(&c.VolatilityWindow, p.VolatilityWindow)
	setFloat(&c.VolatilityFloor, p.VolatilityFloor)
	setFloat(&c.ScaleDivisor, p.ScaleDivisor)
	setInt(&c.AdaptiveWindow, p.AdaptiveWindow)
	setFloat(&c.AdaptiveQuantile, p.AdaptiveQuantile)
	if p.Scaled != nil {
		c.Scaled = *p.Scaled
	}
	return Config{Kind: KindMomentum, Momentum: &c}
}

// fromPairsParams creates a pairs Config.
func fromPairsParams(p Params) Config {
	c := DefaultPairsConfig()
	setInt(&c.FormationWindow, p.LookbackWindow)
	setInt(&c.ZScoreWindow, p.ZScoreWindow)
	setFloat(&c.EntryZ, p.EntryThreshold)
	setFloat(&c.ExitZ, p.ExitThreshold)
	setInt(&c.ADFLags, p.ADFLags)
	setFloat(&c.ADFCriticalValue, p.ADFCriticalValue)
	return Config{Kind: KindPairs, Pairs: &c}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
