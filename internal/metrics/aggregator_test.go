package metrics

import (
	"errors"
	"testing"

	"strategy-lab/internal/domain"
)

func f(v float64) *float64 { return &v }

func TestAggregate(t *testing.T) {
	reports := []*domain.PerformanceReport{
		{Symbol: "AAA", CumulativeReturn: 0.10, Sharpe: f(1.0), TotalTrades: 4, TotalCosts: 10},
		{Symbol: "BBB", CumulativeReturn: 0.30, Sharpe: f(2.0), TotalTrades: 2, TotalCosts: 5},
		{Symbol: "CCC", CumulativeReturn: 0.50, TotalTrades: 0},
		nil,
	}
	agg, err := Aggregate("S", reports)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if !almost(agg.CumulativeReturn, 0.3, tol) {
		t.Errorf("average return = %f, want 0.3", agg.CumulativeReturn)
	}
	if agg.Sharpe == nil || *agg.Sharpe != 1.5 {
		t.Error("expected Sharpe averaged over defined values only")
	}
	if agg.Sortino != nil {
		t.Error("expected nil Sortino when no report defines it")
	}
	if agg.TotalTrades != 6 || agg.TotalCosts != 15 {
		t.Errorf("expected summed trades and costs, got %d %f", agg.TotalTrades, agg.TotalCosts)
	}
	if agg.BestSymbol != "BBB" {
		t.Errorf("best symbol = %s, want BBB", agg.BestSymbol)
	}

	if _, err := Aggregate("S", nil); !errors.Is(err, ErrNoReports) {
		t.Errorf("expected ErrNoReports, got %v", err)
	}
}

func TestRank(t *testing.T) {
	reports := []*domain.PerformanceReport{
		{Symbol: "X", CumulativeReturn: 0.9},
		{Symbol: "B", Sharpe: f(1), CumulativeReturn: 0.1},
		{Symbol: "A", Sharpe: f(1), CumulativeReturn: 0.1},
		{Symbol: "C", Sharpe: f(3)},
	}
	got := Rank(reports)
	want := []string{"C", "A", "B", "X"}
	for i, r := range got {
		if r.Symbol != want[i] {
			t.Fatalf("rank %d = %s, want %s", i, r.Symbol, want[i])
		}
	}
	if reports[0].Symbol != "X" {
		t.Error("input reordered")
	}
}
