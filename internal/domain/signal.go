package domain

import (
	"fmt"
	"math"
	"time"
)

// SignalLeg holds the target exposure of one symbol for every bar.
// Weights lie in [-1, 1]; 0 means flat.
type SignalLeg struct {
	Symbol  string    `json:"symbol"`
	Weights []float64 `json:"weights"`
}

// FormationWindow describes one walk-forward block of a pairs signal.
type FormationWindow struct {
	FormationStart int     `json:"formation_start"`
	TradeStart     int     `json:"trade_start"`
	TradeEnd       int     `json:"trade_end"` // exclusive
	HedgeRatio     float64 `json:"hedge_ratio"`
	Intercept      float64 `json:"intercept"`
	ADFStatistic   float64 `json:"adf_statistic"`
	HalfLife       float64 `json:"half_life"` // bars; 0 when not mean reverting
	Tradable       bool    `json:"tradable"`
	Err            error   `json:"-"`
}

// Signal is a time-indexed target exposure aligned 1:1 with its price series.
type Signal struct {
	StrategyID string            `json:"strategy_id"`
	Times      []time.Time       `json:"times"`
	Legs       []SignalLeg       `json:"legs"`
	Windows    []FormationWindow `json:"windows,omitempty"`
}

// Len returns the number of bars covered by the signal.
func (s *Signal) Len() int {
	return len(s.Times)
}

// Symbols returns leg symbols in order.
func (s *Signal) Symbols() []string {
	out := make([]string, len(s.Legs))
	for i, l := range s.Legs {
		out[i] = l.Symbol
	}
	return out
}

// IsFlat reports whether every leg is flat on every bar.
func (s *Signal) IsFlat() bool {
	for _, l := range s.Legs {
		for _, w := range l.Weights {
			if w != 0 {
				return false
			}
		}
	}
	return true
}

// Validate checks leg lengths and the weight range.
func (s *Signal) Validate() error {
	if len(s.Legs) == 0 {
		return fmt.Errorf("signal %s has no legs", s.StrategyID)
	}
	for _, l := range s.Legs {
		if len(l.Weights) != len(s.Times) {
			return fmt.Errorf("signal leg %s: %d weights for %d bars", l.Symbol, len(l.Weights), len(s.Times))
		}
		for i, w := range l.Weights {
			if math.IsNaN(w) || w < -1 || w > 1 {
				return fmt.Errorf("signal leg %s: weight %v at bar %d outside [-1, 1]", l.Symbol, w, i)
			}
		}
	}
	return nil
}
