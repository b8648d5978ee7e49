// Package backtest replays a signal against price history bar by bar.
//
// The engine is a per-leg state machine (FLAT, LONG, SHORT) over one shared
// cash account. A single-symbol run has one leg; a pairs run has two. A leg
// resized without changing side keeps its earlier lots and trades only the
// difference.
package backtest

import (
	"fmt"
	"math"

	"strategy-lab/internal/domain"
)

// State is the position state of one leg.
type State string

// Leg states.
const (
	StateFlat  State = "FLAT"
	StateLong  State = "LONG"
	StateShort State = "SHORT"
)

// Config holds simulator parameters.
type Config struct {
	InitialCapital float64 // starting cash
	CostRate       float64 // transaction cost as a fraction of traded notional, charged on entry and exit
	Allocation     float64 // fraction of equity per unit of signal weight
}

// DefaultConfig returns 100000 capital, 0.1% cost and full allocation.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 100000,
		CostRate:       0.001,
		Allocation:     1.0,
	}
}

// Validate checks parameter ranges.
func (c Config) Validate() error {
	if !(c.InitialCapital > 0) || math.IsInf(c.InitialCapital, 0) {
		return &domain.ConfigurationError{Field: "initial_capital", Reason: "must be positive"}
	}
	if !(c.CostRate >= 0) || c.CostRate >= 1 {
		return &domain.ConfigurationError{Field: "transaction_cost_rate", Reason: "must be in [0, 1)"}
	}
	if !(c.Allocation > 0) || c.Allocation > 1 {
		return &domain.ConfigurationError{Field: "allocation_fraction", Reason: "must be in (0, 1]"}
	}
	return nil
}

// Lot is one fill of a leg. A position scaled up over several bars holds one
// lot per fill.
type Lot struct {
	Quantity   float64 // signed units; negative is short
	EntryPrice float64
	EntryIndex int
	EntryCost  float64
}

// Position is the open position of one leg, oldest lot first.
type Position struct {
	Lots   []Lot
	Weight float64 // signal weight the position is sized for
}

// Quantity returns the signed units held across all lots.
func (p Position) Quantity() float64 {
	q := 0.0
	for _, l := range p.Lots {
		q += l.Quantity
	}
	return q
}

// State returns FLAT, LONG or SHORT.
func (p Position) State() State {
	q := p.Quantity()
	switch {
	case q > 0:
		return StateLong
	case q < 0:
		return StateShort
	default:
		return StateFlat
	}
}

// PortfolioState is the mutable account of one run. It is owned by a single
// Run call and never shared.
type PortfolioState struct {
	Cash float64
	Legs []Position
}

// Equity marks every leg at prices.
func (s *PortfolioState) Equity(prices []float64) float64 {
	eq := s.Cash
	for l, p := range s.Legs {
		eq += p.Quantity() * prices[l]
	}
	return eq
}

// Result is the output of a run.
type Result struct {
	Equity     []domain.EquityPoint
	Trades     []domain.Trade
	TotalCosts float64
	Exposure   float64 // share of bars ending with an open position
}

// FinalEquity returns the last equity value.
func (r *Result) FinalEquity() float64 {
	if len(r.Equity) == 0 {
		return 0
	}
	return r.Equity[len(r.Equity)-1].Equity
}

// Run simulates sig against series, one series per signal leg in the same order.
//
// On each bar every leg whose target weight changed is handled at the close
// price. A leg going flat or changing side is closed entirely. Otherwise
// equity is marked and the leg is resized toward |weight| × Allocation ×
// equity: growth opens a new lot, a cut closes the oldest lots first. Costs
// apply to the traded units only. NaN weights mean no action. All open legs
// are closed at the final bar.
//
// Every closed lot, or part of one, is a trade. The returned equity curve is
// rebuilt from the trades exactly as Reconstruct does.
func Run(sig *domain.Signal, series []*domain.PriceSeries, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkInputs(sig, series); err != nil {
		return nil, err
	}

	n := sig.Len()
	legs := len(series)
	b := &book{
		sig:    sig,
		series: series,
		cfg:    cfg,
		state:  &PortfolioState{Cash: cfg.InitialCapital, Legs: make([]Position, legs)},
		res:    &Result{},
	}
	prices := make([]float64, legs)
	changed := make([]bool, legs)
	targets := make([]float64, legs)
	exposed := 0

	for i := 0; i < n; i++ {
		last := i == n-1
		for l := range series {
			prices[l] = series[l].Bars[i].Close
			target := sig.Legs[l].Weights[i]
			if last {
				target = 0
			}
			targets[l] = target
			changed[l] = !math.IsNaN(target) && target != b.state.Legs[l].Weight
		}

		// close legs going flat or changing side
		for l := range series {
			pos := &b.state.Legs[l]
			if !changed[l] || len(pos.Lots) == 0 || sameSide(targets[l], pos.Quantity()) {
				continue
			}
			for _, lot := range pos.Lots {
				b.closeLot(l, lot, i, last)
			}
			pos.Lots = nil
		}

		// resize
		equity := b.state.Equity(prices)
		for l := range series {
			if !changed[l] {
				continue
			}
			pos := &b.state.Legs[l]
			w := targets[l]
			if w == 0 || !(equity > 0) {
				if len(pos.Lots) == 0 {
					pos.Weight = 0
				}
				continue
			}
			want := math.Copysign(math.Abs(w)*cfg.Allocation*equity/prices[l], w)
			switch delta := want - pos.Quantity(); {
			case delta == 0:
			case math.Signbit(delta) == math.Signbit(want):
				b.add(l, delta, i)
			default:
				b.reduce(l, math.Abs(delta), i)
			}
			pos.Weight = w
		}

		for _, p := range b.state.Legs {
			if len(p.Lots) > 0 {
				exposed++
				break
			}
		}
	}

	res := b.res
	res.Equity = replay(series, res.Trades, cfg.InitialCapital)
	res.Exposure = float64(exposed) / float64(n)
	return res, nil
}

// sameSide reports whether a nonzero target keeps the side of qty.
func sameSide(target, qty float64) bool {
	return target != 0 && math.Signbit(target) == math.Signbit(qty)
}

// book applies fills of one run to its account and trade list.
type book struct {
	sig    *domain.Signal
	series []*domain.PriceSeries
	cfg    Config
	state  *PortfolioState
	res    *Result
}

// add opens a lot of qty units on leg at bar i.
func (b *book) add(leg int, qty float64, i int) {
	price := b.series[leg].Bars[i].Close
	cost := math.Abs(qty) * price * b.cfg.CostRate
	b.state.Cash = openCash(b.state.Cash, qty, price, cost)
	b.res.TotalCosts += cost
	pos := &b.state.Legs[leg]
	pos.Lots = append(pos.Lots, Lot{Quantity: qty, EntryPrice: price, EntryIndex: i, EntryCost: cost})
}

// reduce closes units of leg's position at bar i, oldest lot first. A lot
// larger than what is left to close is split and its entry cost shared pro rata.
func (b *book) reduce(leg int, units float64, i int) {
	pos := &b.state.Legs[leg]
	for units > 0 && len(pos.Lots) > 0 {
		lot := pos.Lots[0]
		size := math.Abs(lot.Quantity)
		if size <= units {
			b.closeLot(leg, lot, i, false)
			pos.Lots = pos.Lots[1:]
			units -= size
			continue
		}
		part := Lot{
			Quantity:   math.Copysign(units, lot.Quantity),
			EntryPrice: lot.EntryPrice,
			EntryIndex: lot.EntryIndex,
			EntryCost:  lot.EntryCost * units / size,
		}
		pos.Lots[0].Quantity -= part.Quantity
		pos.Lots[0].EntryCost -= part.EntryCost
		b.closeLot(leg, part, i, false)
		units = 0
	}
}

// closeLot sells or covers lot at bar i and records the trade.
func (b *book) closeLot(leg int, lot Lot, i int, forced bool) {
	price := b.series[leg].Bars[i].Close
	exitCost := math.Abs(lot.Quantity) * price * b.cfg.CostRate
	b.state.Cash = closeCash(b.state.Cash, lot.Quantity, price, exitCost)
	b.res.Trades = append(b.res.Trades, realize(b.sig, b.series[leg], leg, lot, i, exitCost, forced))
	b.res.TotalCosts += exitCost
}

// closeCash and openCash are the only cash mutations; Reconstruct uses them too.
func closeCash(cash, qty, price, cost float64) float64 {
	return cash + qty*price - cost
}

func openCash(cash, qty, price, cost float64) float64 {
	return cash - qty*price - cost
}

// realize builds the trade for a lot closed at bar exit.
func realize(sig *domain.Signal, series *domain.PriceSeries, leg int, lot Lot, exit int, exitCost float64, forced bool) domain.Trade {
	exitPrice := series.Bars[exit].Close
	dir := domain.DirectionLong
	if lot.Quantity < 0 {
		dir = domain.DirectionShort
	}
	qty := math.Abs(lot.Quantity)
	gross := lot.Quantity * (exitPrice - lot.EntryPrice)
	net := gross - lot.EntryCost - exitCost

	return domain.Trade{
		StrategyID: sig.StrategyID,
		Symbol:     series.Symbol,
		Leg:        leg,
		Direction:  dir,
		EntryIndex: lot.EntryIndex,
		EntryTime:  series.Bars[lot.EntryIndex].Timestamp,
		EntryPrice: lot.EntryPrice,
		Quantity:   qty,
		EntryCost:  lot.EntryCost,
		ExitIndex:  exit,
		ExitTime:   series.Bars[exit].Timestamp,
		ExitPrice:  exitPrice,
		ExitCost:   exitCost,
		Forced:     forced,
		GrossPnL:   gross,
		NetPnL:     net,
		Return:     net / (qty * lot.EntryPrice),
	}
}

// checkInputs requires one aligned series per signal leg.
func checkInputs(sig *domain.Signal, series []*domain.PriceSeries) error {
	if sig == nil || len(sig.Legs) == 0 {
		return fmt.Errorf("backtest: empty signal")
	}
	if len(series) != len(sig.Legs) {
		return fmt.Errorf("backtest: %d series for %d signal legs", len(series), len(sig.Legs))
	}
	if sig.Len() == 0 {
		return &domain.InsufficientDataError{What: "backtest", Need: 1, Have: 0}
	}
	for l, s := range series {
		if err := s.Validate(); err != nil {
			return err
		}
		leg := sig.Legs[l]
		if leg.Symbol != s.Symbol {
			return fmt.Errorf("backtest: leg %d is %s, series is %s", l, leg.Symbol, s.Symbol)
		}
		if s.Len() != sig.Len() || len(leg.Weights) != sig.Len() {
			return &domain.SeriesError{Symbol: s.Symbol, Index: min(s.Len(), len(leg.Weights)), Reason: "series and signal lengths differ"}
		}
		for i, b := range s.Bars {
			if !b.Timestamp.Equal(sig.Times[i]) {
				return &domain.SeriesError{Symbol: s.Symbol, Index: i, Reason: "series and signal timestamps differ"}
			}
		}
		for i, w := range leg.Weights {
			if w < -1 || w > 1 {
				return fmt.Errorf("backtest: leg %s weight %v at bar %d outside [-1, 1]", leg.Symbol, w, i)
			}
		}
	}
	return nil
}
