package domain

import "time"

// Direction is the side of a realized trade.
type Direction string

// Trade directions.
const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Trade is a realized round trip produced by the backtest engine.
type Trade struct {
	TradeID    string    `json:"trade_id"`
	RunID      string    `json:"run_id"`
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	Leg        int       `json:"leg"`
	Direction  Direction `json:"direction"`

	// Entry
	EntryIndex int       `json:"entry_index"`
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   float64   `json:"quantity"` // absolute units
	EntryCost  float64   `json:"entry_cost"`

	// Exit
	ExitIndex int       `json:"exit_index"`
	ExitTime  time.Time `json:"exit_time"`
	ExitPrice float64   `json:"exit_price"`
	ExitCost  float64   `json:"exit_cost"`
	Forced    bool      `json:"forced"` // closed at the final bar

	// Outcome
	GrossPnL float64 `json:"gross_pnl"`
	NetPnL   float64 `json:"net_pnl"`
	Return   float64 `json:"return"` // net pnl / entry notional
}

// Cost returns the total transaction cost of both legs.
func (t *Trade) Cost() float64 {
	return t.EntryCost + t.ExitCost
}

// Notional returns the entry notional.
func (t *Trade) Notional() float64 {
	return t.Quantity * t.EntryPrice
}

// HoldingBars returns the number of bars the position was held.
func (t *Trade) HoldingBars() int {
	return t.ExitIndex - t.EntryIndex
}

// Duration returns the wall-clock holding time.
func (t *Trade) Duration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}

// Signed returns +1 for long and -1 for short.
func (t *Trade) Signed() float64 {
	if t.Direction == DirectionShort {
		return -1
	}
	return 1
}

// IsWin reports whether the trade made money after costs.
func (t *Trade) IsWin() bool {
	return t.NetPnL > 0
}
