package domain

import (
	"math"
	"strings"
	"time"
)

// Bar is one OHLCV observation.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// PriceSeries is the ordered bar history of one symbol.
// Treated as immutable once validated; core components only read it.
type PriceSeries struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// NewPriceSeries creates a series with an upper-cased symbol.
func NewPriceSeries(symbol string, bars []Bar) *PriceSeries {
	return &PriceSeries{Symbol: strings.ToUpper(symbol), Bars: bars}
}

// Len returns the number of bars.
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Clone returns a deep copy.
func (s *PriceSeries) Clone() *PriceSeries {
	if s == nil {
		return nil
	}
	bars := make([]Bar, len(s.Bars))
	copy(bars, s.Bars)
	return &PriceSeries{Symbol: s.Symbol, Bars: bars}
}

// Closes returns a copy of the close prices.
func (s *PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Times returns a copy of the bar timestamps.
func (s *PriceSeries) Times() []time.Time {
	out := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Timestamp
	}
	return out
}

// Start returns the first timestamp, zero if empty.
func (s *PriceSeries) Start() time.Time {
	if s.Len() == 0 {
		return time.Time{}
	}
	return s.Bars[0].Timestamp
}

// End returns the last timestamp, zero if empty.
func (s *PriceSeries) End() time.Time {
	if s.Len() == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Timestamp
}

// Validate checks strictly increasing timestamps and finite positive closes.
func (s *PriceSeries) Validate() error {
	if s.Len() == 0 {
		return &InsufficientDataError{What: "price series", Need: 1, Have: 0}
	}
	for i, b := range s.Bars {
		if math.IsNaN(b.Close) || math.IsInf(b.Close, 0) {
			return &SeriesError{Symbol: s.Symbol, Index: i, Reason: "non-finite close"}
		}
		if b.Close <= 0 {
			return &SeriesError{Symbol: s.Symbol, Index: i, Reason: "non-positive close"}
		}
		if i == 0 {
			continue
		}
		prev := s.Bars[i-1].Timestamp
		if b.Timestamp.Equal(prev) {
			return &SeriesError{Symbol: s.Symbol, Index: i, Reason: "duplicate timestamp"}
		}
		if b.Timestamp.Before(prev) {
			return &SeriesError{Symbol: s.Symbol, Index: i, Reason: "timestamp not increasing"}
		}
	}
	return nil
}

// Between returns the bars with start <= timestamp <= end as a new series.
// A zero bound is open.
func (s *PriceSeries) Between(start, end time.Time) *PriceSeries {
	out := &PriceSeries{Symbol: s.Symbol}
	for _, b := range s.Bars {
		if !start.IsZero() && b.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && b.Timestamp.After(end) {
			continue
		}
		out.Bars = append(out.Bars, b)
	}
	return out
}

// AlignPair returns the two series restricted to their common timestamps.
// Both inputs must already be valid.
func AlignPair(a, b *PriceSeries) (*PriceSeries, *PriceSeries, error) {
	if err := a.Validate(); err != nil {
		return nil, nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, nil, err
	}

	inB := make(map[int64]int, len(b.Bars))
	for i, bar := range b.Bars {
		inB[bar.Timestamp.UnixNano()] = i
	}

	outA := &PriceSeries{Symbol: a.Symbol}
	outB := &PriceSeries{Symbol: b.Symbol}
	for _, bar := range a.Bars {
		j, ok := inB[bar.Timestamp.UnixNano()]
		if !ok {
			continue
		}
		outA.Bars = append(outA.Bars, bar)
		outB.Bars = append(outB.Bars, b.Bars[j])
	}
	if len(outA.Bars) == 0 {
		return nil, nil, &InsufficientDataError{What: "aligned pair " + a.Symbol + "/" + b.Symbol, Need: 1, Have: 0}
	}
	return outA, outB, nil
}
