// Package strategy turns price history into position signals.
//
// The set of strategies is closed: Generate dispatches on Kind with a switch,
// and each generator is a pure function of its inputs.
package strategy

import (
	"errors"
	"fmt"
	"math"

	"strategy-lab/internal/domain"
)

// Kind identifies a strategy variant.
type Kind string

// Strategy kinds.
const (
	KindMeanReversion Kind = "MEAN_REVERSION"
	KindMomentum      Kind = "MOMENTUM"
	KindPairs         Kind = "PAIRS"
)

// Kinds lists every strategy kind in report order.
var Kinds = []Kind{KindMeanReversion, KindMomentum, KindPairs}

// Strategy errors
var (
	ErrUnknownKind      = errors.New("unknown strategy kind")
	ErrMissingSecondary = errors.New("pairs strategy requires a secondary series")
)

// Config selects a strategy kind and carries its parameters.
// A nil parameter block means defaults for that kind.
type Config struct {
	Kind          Kind
	MeanReversion *MeanReversionConfig
	Momentum      *MomentumConfig
	Pairs         *PairsConfig
}

// NeedsPair reports whether the strategy trades two series.
func (c Config) NeedsPair() bool {
	return c.Kind == KindPairs
}

// resolved returns c with defaults filled for its kind.
func (c Config) resolved() Config {
	switch c.Kind {
	case KindMeanReversion:
		if c.MeanReversion == nil {
			d := DefaultMeanReversionConfig()
			c.MeanReversion = &d
		}
	case KindMomentum:
		if c.Momentum == nil {
			d := DefaultMomentumConfig()
			c.Momentum = &d
		}
	case KindPairs:
		if c.Pairs == nil {
			d := DefaultPairsConfig()
			c.Pairs = &d
		}
	}
	return c
}

// Validate checks the kind and its parameters.
func (c Config) Validate() error {
	c = c.resolved()
	switch c.Kind {
	case KindMeanReversion:
		return c.MeanReversion.Validate()
	case KindMomentum:
		return c.Momentum.Validate()
	case KindPairs:
		return c.Pairs.Validate()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
}

// ID returns the strategy identifier (includes parameters).
func (c Config) ID() string {
	c = c.resolved()
	switch c.Kind {
	case KindMeanReversion:
		return c.MeanReversion.ID()
	case KindMomentum:
		return c.Momentum.ID()
	case KindPairs:
		return c.Pairs.ID()
	default:
		return string(c.Kind)
	}
}

// Generate produces the signal for cfg. secondary is required for pairs and
// ignored otherwise. Inputs are not modified.
func Generate(cfg Config, primary, secondary *domain.PriceSeries) (*domain.Signal, error) {
	cfg = cfg.resolved()
	switch cfg.Kind {
	case KindMeanReversion:
		return MeanReversion(primary, *cfg.MeanReversion)
	case KindMomentum:
		return Momentum(primary, *cfg.Momentum)
	case KindPairs:
		if secondary == nil {
			return nil, ErrMissingSecondary
		}
		return Pairs(primary, secondary, *cfg.Pairs)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// singleLeg wraps weights of one series into a signal.
func singleLeg(id string, series *domain.PriceSeries, weights []float64) *domain.Signal {
	return &domain.Signal{
		StrategyID: id,
		Times:      series.Times(),
		Legs:       []domain.SignalLeg{{Symbol: series.Symbol, Weights: weights}},
	}
}

// zScorePositions applies the entry/exit band policy to a z-score series.
// NaN (undefined or zero-variance) forces flat. A z-score beyond the opposite
// entry threshold flips the position.
func zScorePositions(z []float64, entry, exit float64) []float64 {
	out := make([]float64, len(z))
	pos := 0.0
	for i, v := range z {
		if math.IsNaN(v) {
			pos = 0
			continue
		}
		switch {
		case v < -entry:
			pos = 1
		case v > entry:
			pos = -1
		case pos > 0 && v >= -exit:
			pos = 0
		case pos < 0 && v <= exit:
			pos = 0
		}
		out[i] = pos
	}
	return out
}
