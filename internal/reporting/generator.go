package reporting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/metrics"
	"strategy-lab/internal/storage"
	"strategy-lab/internal/strategy"
)

// Generator produces summaries from run results or stored reports.
type Generator struct {
	reportStore storage.ReportStore
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new summary generator. reportStore may be nil when
// only Summarize is used.
func NewGenerator(reportStore storage.ReportStore) *Generator {
	return &Generator{
		reportStore: reportStore,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Summarize builds the summary of a batch. Failed runs are listed but do not
// contribute to averages.
func (g *Generator) Summarize(runs []*domain.RunResult) *Summary {
	byStrategy := make(map[string][]*domain.PerformanceReport)
	kinds := make(map[string]string)
	failures := make(map[string]int)
	var failRows []FailureRow

	for _, run := range runs {
		if run == nil {
			continue
		}
		kinds[run.StrategyID] = run.Kind
		if run.Failed() || run.Report == nil {
			failures[run.StrategyID]++
			failRows = append(failRows, FailureRow{
				StrategyID: run.StrategyID,
				Symbol:     run.Label(),
				ErrorKind:  domain.ErrorKind(run.Err),
				Error:      run.ErrorString(),
			})
			continue
		}
		byStrategy[run.StrategyID] = append(byStrategy[run.StrategyID], run.Report)
	}

	sort.Slice(failRows, func(i, j int) bool {
		if failRows[i].StrategyID != failRows[j].StrategyID {
			return failRows[i].StrategyID < failRows[j].StrategyID
		}
		return failRows[i].Symbol < failRows[j].Symbol
	})

	s := g.build(byStrategy, kinds, failures)
	s.Runs = len(runs)
	s.FailedRuns = len(failRows)
	s.Failures = failRows
	return s
}

// FromStore builds a summary of every stored report.
func (g *Generator) FromStore(ctx context.Context) (*Summary, error) {
	if g.reportStore == nil {
		return nil, fmt.Errorf("summary from store: no report store configured")
	}
	reports, err := g.reportStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reports: %w", err)
	}

	byStrategy := make(map[string][]*domain.PerformanceReport)
	kinds := make(map[string]string)
	for _, r := range reports {
		byStrategy[r.StrategyID] = append(byStrategy[r.StrategyID], r)
		kinds[r.StrategyID] = kindOf(r.StrategyID)
	}
	s := g.build(byStrategy, kinds, nil)
	s.Runs = len(reports)
	return s, nil
}

func (g *Generator) build(byStrategy map[string][]*domain.PerformanceReport, kinds map[string]string, failures map[string]int) *Summary {
	ids := make(map[string]struct{}, len(kinds))
	for id := range byStrategy {
		ids[id] = struct{}{}
	}
	for id := range failures {
		ids[id] = struct{}{}
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	s := &Summary{GeneratedAt: g.now()}
	for _, id := range sorted {
		ss := StrategySummary{
			StrategyID: id,
			Kind:       kinds[id],
			NumSymbols: len(byStrategy[id]),
			Failures:   failures[id],
		}
		if reports := byStrategy[id]; len(reports) > 0 {
			avg, err := metrics.Aggregate(id, reports)
			if err == nil {
				ss.Average = avg
			}
			ranked := metrics.Rank(reports)
			ss.Reports = ranked
			ss.BestSymbol = ranked[0].Symbol
			ss.WorstSymbol = ranked[len(ranked)-1].Symbol
			for i := 0; i < len(ranked) && i < topN; i++ {
				ss.TopPerformers = append(ss.TopPerformers, Performer{
					Symbol:           ranked[i].Symbol,
					Sharpe:           ranked[i].Sharpe,
					AnnualizedReturn: ranked[i].AnnualizedReturn,
					CumulativeReturn: ranked[i].CumulativeReturn,
				})
			}
		}
		s.Strategies = append(s.Strategies, ss)
	}

	s.Overall = overall(s.Strategies)
	s.Insights = insights(s.Strategies)
	return s
}

// overall picks the best strategy by average Sharpe, falling back to the
// highest average return when no strategy has a defined Sharpe.
func overall(strategies []StrategySummary) OverallSummary {
	var o OverallSummary
	var byReturn string
	for _, ss := range strategies {
		o.SymbolsTested += ss.NumSymbols
		if ss.Average == nil {
			continue
		}
		ret := ss.Average.AnnualizedReturn
		if o.HighestReturn == nil || ret > *o.HighestReturn {
			o.HighestReturn = &ret
			byReturn = ss.StrategyID
		}
		if sh := ss.Average.Sharpe; sh != nil && (o.HighestSharpe == nil || *sh > *o.HighestSharpe) {
			v := *sh
			o.HighestSharpe = &v
			o.BestStrategy = ss.StrategyID
		}
	}
	if o.BestStrategy == "" {
		o.BestStrategy = byReturn
	}
	return o
}

// Drawdown and Sharpe levels flagged by insights.
const (
	highDrawdown = -0.30
	goodSharpe   = 0.5
)

// insights produces short plain-text observations.
func insights(strategies []StrategySummary) []string {
	var out []string
	var withAvg []StrategySummary
	for _, ss := range strategies {
		if ss.Average != nil {
			withAvg = append(withAvg, ss)
		}
	}

	if len(withAvg) > 1 {
		o := overall(withAvg)
		if o.HighestSharpe != nil {
			out = append(out, fmt.Sprintf("Best performing strategy: %s (Sharpe %.3f)", o.BestStrategy, *o.HighestSharpe))
		}
	}
	for _, ss := range withAvg {
		avg := ss.Average
		switch {
		case avg.MaxDrawdown < highDrawdown:
			out = append(out, fmt.Sprintf("%s shows high drawdown risk (%.1f%%)", ss.StrategyID, avg.MaxDrawdown*100))
		case avg.Sharpe != nil && *avg.Sharpe > goodSharpe:
			out = append(out, fmt.Sprintf("%s shows good risk-adjusted returns (Sharpe %.3f)", ss.StrategyID, *avg.Sharpe))
		}
	}
	for _, ss := range withAvg {
		if len(ss.TopPerformers) == 0 {
			continue
		}
		top := ss.TopPerformers[0]
		out = append(out, fmt.Sprintf("%s best performer: %s (%.1f%% annualized return)", ss.StrategyID, top.Symbol, top.AnnualizedReturn*100))
	}
	return out
}

// kindOf recovers the strategy kind from a strategy ID prefix.
func kindOf(strategyID string) string {
	for _, k := range strategy.Kinds {
		if strings.HasPrefix(strategyID, string(k)) {
			return string(k)
		}
	}
	return ""
}
