package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage/memory"
)

var fixedTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

func report(strategyID, symbol string, sharpe *float64, annual, maxDD float64) *domain.PerformanceReport {
	return &domain.PerformanceReport{
		RunID:            strategyID + "-" + symbol,
		StrategyID:       strategyID,
		Symbol:           symbol,
		Bars:             252,
		InitialCapital:   100000,
		FinalEquity:      100000 * (1 + annual),
		CumulativeReturn: annual,
		AnnualizedReturn: annual,
		Volatility:       0.2,
		MaxDrawdown:      maxDD,
		VaR:              f(-0.02),
		CVaR:             f(-0.03),
		Sharpe:           sharpe,
		TotalTrades:      4,
		WinRate:          f(0.5),
		ProfitFactor:     f(1.2),
	}
}

func run(r *domain.PerformanceReport, kind string) *domain.RunResult {
	return &domain.RunResult{
		RunID:      r.RunID,
		StrategyID: r.StrategyID,
		Kind:       kind,
		Symbols:    []string{r.Symbol},
		Report:     r,
	}
}

func sampleRuns() []*domain.RunResult {
	return []*domain.RunResult{
		run(report("MEAN_REVERSION_20_2", "AAPL", f(0.9), 0.12, -0.10), "MEAN_REVERSION"),
		run(report("MEAN_REVERSION_20_2", "MSFT", f(0.7), 0.08, -0.12), "MEAN_REVERSION"),
		run(report("MEAN_REVERSION_20_2", "GOOG", f(0.2), 0.02, -0.15), "MEAN_REVERSION"),
		run(report("MEAN_REVERSION_20_2", "AMZN", nil, 0.00, 0), "MEAN_REVERSION"),
		run(report("MOMENTUM_10_0", "AAPL", f(0.1), 0.30, -0.45), "MOMENTUM"),
		run(report("MOMENTUM_10_0", "MSFT", f(-0.1), 0.10, -0.35), "MOMENTUM"),
		{
			StrategyID: "MOMENTUM_10_0",
			Kind:       "MOMENTUM",
			Symbols:    []string{"TINY"},
			Err:        &domain.InsufficientDataError{What: "momentum", Need: 11, Have: 3},
		},
	}
}

func TestSummarize(t *testing.T) {
	s := NewGenerator(nil).WithClock(func() time.Time { return fixedTime }).Summarize(sampleRuns())

	if !s.GeneratedAt.Equal(fixedTime) {
		t.Errorf("GeneratedAt = %v, want %v", s.GeneratedAt, fixedTime)
	}
	if s.Runs != 7 || s.FailedRuns != 1 {
		t.Errorf("Runs/FailedRuns = %d/%d, want 7/1", s.Runs, s.FailedRuns)
	}
	if len(s.Strategies) != 2 {
		t.Fatalf("expected 2 strategies, got %d", len(s.Strategies))
	}

	mr := s.Strategies[0]
	if mr.StrategyID != "MEAN_REVERSION_20_2" || mr.Kind != "MEAN_REVERSION" {
		t.Errorf("first strategy = %s/%s", mr.StrategyID, mr.Kind)
	}
	if mr.NumSymbols != 4 {
		t.Errorf("NumSymbols = %d, want 4", mr.NumSymbols)
	}
	if mr.BestSymbol != "AAPL" {
		t.Errorf("BestSymbol = %s, want AAPL", mr.BestSymbol)
	}
	// Undefined Sharpe ranks last
	if mr.WorstSymbol != "AMZN" {
		t.Errorf("WorstSymbol = %s, want AMZN", mr.WorstSymbol)
	}
	if len(mr.TopPerformers) != 3 {
		t.Fatalf("TopPerformers = %d, want 3", len(mr.TopPerformers))
	}
	wantTop := []string{"AAPL", "MSFT", "GOOG"}
	for i, p := range mr.TopPerformers {
		if p.Symbol != wantTop[i] {
			t.Errorf("TopPerformers[%d] = %s, want %s", i, p.Symbol, wantTop[i])
		}
	}
	// Average Sharpe is over defined values only: (0.9+0.7+0.2)/3
	if mr.Average == nil || mr.Average.Sharpe == nil {
		t.Fatal("expected defined average Sharpe")
	}
	if got := *mr.Average.Sharpe; got < 0.5999 || got > 0.6001 {
		t.Errorf("average Sharpe = %f, want 0.6", got)
	}

	mom := s.Strategies[1]
	if mom.NumSymbols != 2 || mom.Failures != 1 {
		t.Errorf("momentum NumSymbols/Failures = %d/%d, want 2/1", mom.NumSymbols, mom.Failures)
	}

	if s.Overall.BestStrategy != "MEAN_REVERSION_20_2" {
		t.Errorf("BestStrategy = %s", s.Overall.BestStrategy)
	}
	if s.Overall.HighestReturn == nil || *s.Overall.HighestReturn < 0.1999 || *s.Overall.HighestReturn > 0.2001 {
		t.Errorf("HighestReturn = %v, want 0.2", s.Overall.HighestReturn)
	}
	if s.Overall.SymbolsTested != 6 {
		t.Errorf("SymbolsTested = %d, want 6", s.Overall.SymbolsTested)
	}

	if len(s.Failures) != 1 {
		t.Fatalf("Failures = %d, want 1", len(s.Failures))
	}
	if s.Failures[0].Symbol != "TINY" || s.Failures[0].ErrorKind != "insufficient_data" {
		t.Errorf("failure row = %+v", s.Failures[0])
	}
}

func TestSummarize_Insights(t *testing.T) {
	s := NewGenerator(nil).WithClock(func() time.Time { return fixedTime }).Summarize(sampleRuns())

	joined := strings.Join(s.Insights, "\n")
	for _, want := range []string{
		"Best performing strategy: MEAN_REVERSION_20_2",
		"MOMENTUM_10_0 shows high drawdown risk",
		"MEAN_REVERSION_20_2 shows good risk-adjusted returns",
		"MOMENTUM_10_0 best performer: AAPL",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("insights missing %q:\n%s", want, joined)
		}
	}
}

func TestSummarize_AllFailed(t *testing.T) {
	runs := []*domain.RunResult{{
		StrategyID: "PAIRS_60_20_2_0.5",
		Kind:       "PAIRS",
		Symbols:    []string{"KO", "PEP"},
		Err:        &domain.NonStationarySpreadError{Statistic: -1.2, CriticalValue: -3.34},
	}}
	s := NewGenerator(nil).Summarize(runs)

	if len(s.Strategies) != 1 || s.Strategies[0].Average != nil {
		t.Fatalf("expected one strategy without averages, got %+v", s.Strategies)
	}
	if s.Overall.BestStrategy != "" || s.Overall.HighestSharpe != nil {
		t.Errorf("expected empty overall, got %+v", s.Overall)
	}
	if s.Failures[0].Symbol != "KO/PEP" || s.Failures[0].ErrorKind != "non_stationary_spread" {
		t.Errorf("failure row = %+v", s.Failures[0])
	}
	if len(s.Insights) != 0 {
		t.Errorf("expected no insights, got %v", s.Insights)
	}
}

func TestGenerator_FromStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewReportStore()
	for _, r := range sampleRuns() {
		if r.Report == nil {
			continue
		}
		if err := store.Insert(ctx, r.Report); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	s, err := NewGenerator(store).WithClock(func() time.Time { return fixedTime }).FromStore(ctx)
	if err != nil {
		t.Fatalf("FromStore: %v", err)
	}
	if s.Runs != 6 || s.FailedRuns != 0 {
		t.Errorf("Runs/FailedRuns = %d/%d, want 6/0", s.Runs, s.FailedRuns)
	}
	if len(s.Strategies) != 2 {
		t.Fatalf("expected 2 strategies, got %d", len(s.Strategies))
	}
	if s.Strategies[1].Kind != "MOMENTUM" {
		t.Errorf("kind recovered from ID = %q, want MOMENTUM", s.Strategies[1].Kind)
	}
}

func TestGenerator_FromStore_NoStore(t *testing.T) {
	if _, err := NewGenerator(nil).FromStore(context.Background()); err == nil {
		t.Fatal("expected error without a report store")
	}
}

func TestRenderMarkdown(t *testing.T) {
	s := NewGenerator(nil).WithClock(func() time.Time { return fixedTime }).Summarize(sampleRuns())
	md := RenderMarkdown(s)

	for _, want := range []string{
		"# Strategy Backtest Summary",
		"Generated: 2024-06-01T12:00:00Z",
		"## Overall",
		"| Best Strategy | MEAN_REVERSION_20_2 |",
		"## Strategies",
		"## Top Performers",
		"### MEAN_REVERSION_20_2",
		"| 1 | AAPL | 0.900 | 12.00% | 12.00% |",
		"## Failures",
		"| MOMENTUM_10_0 | TINY | insufficient_data |",
		"## Insights",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	md := RenderMarkdown(NewGenerator(nil).WithClock(func() time.Time { return fixedTime }).Summarize(nil))
	if !strings.Contains(md, "No strategy results available.") {
		t.Error("expected empty-results note")
	}
	if !strings.Contains(md, "No failed runs.") {
		t.Error("expected no-failures note")
	}
	if strings.Contains(md, "## Insights") {
		t.Error("unexpected insights section")
	}
}

func TestRenderCSV(t *testing.T) {
	r := report("MOMENTUM_10_0", "AAPL", nil, 0.1, -0.2)
	r.WinRate = nil
	csv := RenderCSV([]*domain.PerformanceReport{r})

	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	header := strings.Split(lines[0], ",")
	row := strings.Split(lines[1], ",")
	if len(header) != len(row) {
		t.Fatalf("header has %d columns, row has %d", len(header), len(row))
	}
	col := func(name string) string {
		for i, h := range header {
			if h == name {
				return row[i]
			}
		}
		t.Fatalf("missing column %s", name)
		return ""
	}
	if col("symbol") != "AAPL" {
		t.Errorf("symbol = %s", col("symbol"))
	}
	if col("sharpe") != "" || col("win_rate") != "" {
		t.Errorf("undefined ratios should be empty, got sharpe=%q win_rate=%q", col("sharpe"), col("win_rate"))
	}
	if col("var") != "-0.020000" {
		t.Errorf("var = %s", col("var"))
	}
}

func TestRenderSummaryCSV(t *testing.T) {
	s := NewGenerator(nil).Summarize(sampleRuns())
	csv := RenderSummaryCSV(s)

	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	cols := len(strings.Split(lines[0], ","))
	for i, l := range lines[1:] {
		if n := len(strings.Split(l, ",")); n != cols {
			t.Errorf("row %d has %d columns, want %d", i, n, cols)
		}
	}
	if !strings.HasPrefix(lines[1], "MEAN_REVERSION_20_2,MEAN_REVERSION,4,0,") {
		t.Errorf("unexpected first row %q", lines[1])
	}
}
