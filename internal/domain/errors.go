package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below match these via errors.Is.
var (
	ErrInsufficientData    = errors.New("insufficient data")
	ErrDegenerateInput     = errors.New("degenerate input")
	ErrNonStationarySpread = errors.New("non-stationary spread")
	ErrConfiguration       = errors.New("invalid configuration")
	ErrInvalidSeries       = errors.New("invalid price series")
)

// InsufficientDataError is returned when history is shorter than a required lookback.
type InsufficientDataError struct {
	What string // consumer, e.g. "sma" or "pairs formation"
	Need int
	Have int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need %d bars, have %d", e.What, e.Need, e.Have)
}

// Is reports whether target is ErrInsufficientData.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// DegenerateInputError is returned when a computation needs variance the input does not have.
type DegenerateInputError struct {
	What string
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("degenerate input: %s", e.What)
}

// Is reports whether target is ErrDegenerateInput.
func (e *DegenerateInputError) Is(target error) bool {
	return target == ErrDegenerateInput
}

// NonStationarySpreadError is returned when a pair's spread fails the unit-root test.
type NonStationarySpreadError struct {
	Statistic     float64 // ADF t-statistic
	CriticalValue float64
	WindowStart   int // first bar index of the formation window
}

func (e *NonStationarySpreadError) Error() string {
	return fmt.Sprintf("spread not stationary in window starting at bar %d: adf %.4f >= critical %.4f",
		e.WindowStart, e.Statistic, e.CriticalValue)
}

// Is reports whether target is ErrNonStationarySpread.
func (e *NonStationarySpreadError) Is(target error) bool {
	return target == ErrNonStationarySpread
}

// ConfigurationError is returned for invalid parameters.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// SeriesError is returned when a price series violates its ordering or value invariants.
type SeriesError struct {
	Symbol string
	Index  int
	Reason string
}

func (e *SeriesError) Error() string {
	return fmt.Sprintf("invalid price series %s at bar %d: %s", e.Symbol, e.Index, e.Reason)
}

// Is reports whether target is ErrInvalidSeries.
func (e *SeriesError) Is(target error) bool {
	return target == ErrInvalidSeries
}

// ErrorKind returns a short label for a core error, used in reports and metrics labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrDegenerateInput):
		return "degenerate_input"
	case errors.Is(err, ErrNonStationarySpread):
		return "non_stationary_spread"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrInvalidSeries):
		return "invalid_series"
	default:
		return "other"
	}
}
