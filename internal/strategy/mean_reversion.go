package strategy

import (
	"fmt"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/indicators"
)

// MeanReversionConfig parameterizes the z-score mean reversion strategy.
type MeanReversionConfig struct {
	Lookback int     // rolling window for mean and std
	EntryZ   float64 // enter when |z| exceeds this
	ExitZ    float64 // exit when z crosses back inside this band
}

// DefaultMeanReversionConfig returns lookback 20, entry 2.0, exit 0.5.
func DefaultMeanReversionConfig() MeanReversionConfig {
	return MeanReversionConfig{Lookback: 20, EntryZ: 2.0, ExitZ: 0.5}
}

// Validate checks parameter ranges.
func (c MeanReversionConfig) Validate() error {
	if c.Lookback < 2 {
		return &domain.ConfigurationError{Field: "lookback_window", Reason: "must be at least 2"}
	}
	return validateBands(c.EntryZ, c.ExitZ)
}

// ID returns strategy identifier.
func (c MeanReversionConfig) ID() string {
	return fmt.Sprintf("%s_%d_%.2f_%.2f", KindMeanReversion, c.Lookback, c.EntryZ, c.ExitZ)
}

// MeanReversion goes long below -EntryZ, short above EntryZ and back to flat
// once the z-score returns inside the exit band. Bars without a full window or
// with zero rolling variance are flat.
func MeanReversion(series *domain.PriceSeries, cfg MeanReversionConfig) (*domain.Signal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}

	z, err := indicators.ZScore(series.Closes(), cfg.Lookback)
	if err != nil {
		return nil, fmt.Errorf("mean reversion z-score: %w", err)
	}
	return singleLeg(cfg.ID(), series, zScorePositions(z, cfg.EntryZ, cfg.ExitZ)), nil
}

func validateBands(entry, exit float64) error {
	if !(entry > 0) {
		return &domain.ConfigurationError{Field: "entry_threshold", Reason: "must be positive"}
	}
	if !(exit >= 0) {
		return &domain.ConfigurationError{Field: "exit_threshold", Reason: "must be non-negative"}
	}
	if exit >= entry {
		return &domain.ConfigurationError{Field: "exit_threshold", Reason: "must be below entry_threshold"}
	}
	return nil
}
