package backtest

import (
	"fmt"
	"sort"

	"strategy-lab/internal/domain"
)

// Reconstruct rebuilds the equity curve from the trade list and the initial
// capital. It is the same ledger replay Run uses for its own curve, so the
// result matches Run's curve exactly.
func Reconstruct(series []*domain.PriceSeries, trades []domain.Trade, initialCapital float64) ([]domain.EquityPoint, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("reconstruct: no series")
	}
	n := series[0].Len()
	for _, s := range series[1:] {
		if s.Len() != n {
			return nil, fmt.Errorf("reconstruct: series lengths differ")
		}
	}
	for _, t := range trades {
		if t.Leg < 0 || t.Leg >= len(series) {
			return nil, fmt.Errorf("reconstruct: trade leg %d out of range", t.Leg)
		}
		if t.EntryIndex < 0 || t.ExitIndex >= n || t.ExitIndex <= t.EntryIndex {
			return nil, fmt.Errorf("reconstruct: trade %s has invalid bar range [%d, %d]", t.TradeID, t.EntryIndex, t.ExitIndex)
		}
	}
	return replay(series, trades, initialCapital), nil
}

// replay marks the account implied by trades at every bar. Trades are ranked
// by entry bar, leg and exit bar, so the list order does not matter. On each
// bar exits are booked before entries, each by leg and then by rank, and open
// quantity is summed by rank.
func replay(series []*domain.PriceSeries, trades []domain.Trade, initialCapital float64) []domain.EquityPoint {
	ranked := make([]domain.Trade, len(trades))
	copy(ranked, trades)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.EntryIndex != b.EntryIndex {
			return a.EntryIndex < b.EntryIndex
		}
		if a.Leg != b.Leg {
			return a.Leg < b.Leg
		}
		return a.ExitIndex < b.ExitIndex
	})

	n := series[0].Len()
	exits := make(map[int][]int)
	entries := make(map[int][]int)
	for k, t := range ranked {
		exits[t.ExitIndex] = append(exits[t.ExitIndex], k)
		entries[t.EntryIndex] = append(entries[t.EntryIndex], k)
	}
	byLeg := func(ks []int) {
		sort.SliceStable(ks, func(i, j int) bool { return ranked[ks[i]].Leg < ranked[ks[j]].Leg })
	}

	cash := initialCapital
	var open []int // ranks, ascending
	qty := make([]float64, len(series))
	out := make([]domain.EquityPoint, n)

	for i := 0; i < n; i++ {
		byLeg(exits[i])
		for _, k := range exits[i] {
			t := ranked[k]
			cash = closeCash(cash, t.Signed()*t.Quantity, t.ExitPrice, t.ExitCost)
			j := sort.SearchInts(open, k)
			open = append(open[:j], open[j+1:]...)
		}

		byLeg(entries[i])
		for _, k := range entries[i] {
			t := ranked[k]
			cash = openCash(cash, t.Signed()*t.Quantity, t.EntryPrice, t.EntryCost)
			j := sort.SearchInts(open, k)
			open = append(open, 0)
			copy(open[j+1:], open[j:])
			open[j] = k
		}

		for l := range qty {
			qty[l] = 0
		}
		for _, k := range open {
			t := ranked[k]
			qty[t.Leg] += t.Signed() * t.Quantity
		}
		equity := cash
		for l, s := range series {
			equity += qty[l] * s.Bars[i].Close
		}
		out[i] = domain.EquityPoint{
			Time:   series[0].Bars[i].Timestamp,
			Cash:   cash,
			Equity: equity,
		}
	}
	return out
}
