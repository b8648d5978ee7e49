package metrics

import (
	"time"

	"strategy-lab/internal/domain"
)

// TradeStats summarizes a trade list.
type TradeStats struct {
	Total                int
	Wins                 int
	Losses               int
	WinRate              *float64
	ProfitFactor         *float64 // gross profit / gross loss; nil without losing trades
	AvgHolding           *float64 // bars
	AvgDuration          *time.Duration
	GrossProfit          float64
	GrossLoss            float64 // positive
	MaxConsecutiveLosses int
}

// ComputeTradeStats derives win rate, profit factor and holding time from net PnL.
// Trades must be in chronological order for MaxConsecutiveLosses.
func ComputeTradeStats(trades []domain.Trade) TradeStats {
	s := TradeStats{Total: len(trades)}
	if len(trades) == 0 {
		return s
	}

	var bars int
	var dur time.Duration
	streak := 0
	for _, t := range trades {
		if t.IsWin() {
			s.Wins++
			s.GrossProfit += t.NetPnL
			streak = 0
		} else {
			s.Losses++
			s.GrossLoss -= t.NetPnL
			streak++
			if streak > s.MaxConsecutiveLosses {
				s.MaxConsecutiveLosses = streak
			}
		}
		bars += t.HoldingBars()
		dur += t.Duration()
	}

	n := float64(len(trades))
	s.WinRate = ptr(float64(s.Wins) / n)
	s.AvgHolding = ptr(float64(bars) / n)
	avg := dur / time.Duration(len(trades))
	s.AvgDuration = &avg
	if s.GrossLoss > 0 {
		s.ProfitFactor = ptr(s.GrossProfit / s.GrossLoss)
	}
	return s
}

func ptr(v float64) *float64 {
	return &v
}
