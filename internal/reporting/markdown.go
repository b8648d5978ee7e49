package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders the summary as a Markdown string.
func RenderMarkdown(s *Summary) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Strategy Backtest Summary\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", s.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Runs: %d | Failed: %d | Strategies: %d\n\n", s.Runs, s.FailedRuns, len(s.Strategies)))

	// Overall
	sb.WriteString("## Overall\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Best Strategy | %s |\n", orDash(s.Overall.BestStrategy)))
	sb.WriteString(fmt.Sprintf("| Highest Avg Annual Return | %s |\n", pct(s.Overall.HighestReturn)))
	sb.WriteString(fmt.Sprintf("| Highest Avg Sharpe | %s |\n", num(s.Overall.HighestSharpe)))
	sb.WriteString(fmt.Sprintf("| Symbols Tested | %d |\n", s.Overall.SymbolsTested))
	sb.WriteString("\n")

	// Strategy averages
	sb.WriteString("## Strategies\n\n")
	if len(s.Strategies) > 0 {
		sb.WriteString("| Strategy | Symbols | Failed | Sharpe | Annual Return | Max DD | Win Rate | Volatility | VaR | CVaR | Profit Factor | Best | Worst |\n")
		sb.WriteString("|----------|---------|--------|--------|---------------|--------|----------|------------|-----|------|---------------|------|-------|\n")
		for _, ss := range s.Strategies {
			a := ss.Average
			if a == nil {
				sb.WriteString(fmt.Sprintf("| %s | %d | %d | - | - | - | - | - | - | - | - | - | - |\n",
					ss.StrategyID, ss.NumSymbols, ss.Failures))
				continue
			}
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s | %.2f%% | %.2f%% | %s | %.2f%% | %s | %s | %s | %s | %s |\n",
				ss.StrategyID, ss.NumSymbols, ss.Failures,
				num(a.Sharpe), a.AnnualizedReturn*100, a.MaxDrawdown*100, pct(a.WinRate), a.Volatility*100,
				pct(a.VaR), pct(a.CVaR), num(a.ProfitFactor), ss.BestSymbol, ss.WorstSymbol))
		}
	} else {
		sb.WriteString("No strategy results available.\n")
	}
	sb.WriteString("\n")

	// Top performers
	sb.WriteString("## Top Performers\n\n")
	for _, ss := range s.Strategies {
		if len(ss.TopPerformers) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("### %s\n\n", ss.StrategyID))
		sb.WriteString("| Rank | Symbol | Sharpe | Annual Return | Total Return |\n")
		sb.WriteString("|------|--------|--------|---------------|--------------|\n")
		for i, p := range ss.TopPerformers {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %.2f%% | %.2f%% |\n",
				i+1, p.Symbol, num(p.Sharpe), p.AnnualizedReturn*100, p.CumulativeReturn*100))
		}
		sb.WriteString("\n")
	}

	// Failures
	sb.WriteString("## Failures\n\n")
	if len(s.Failures) > 0 {
		sb.WriteString("| Strategy | Symbol | Kind | Error |\n")
		sb.WriteString("|----------|--------|------|-------|\n")
		for _, f := range s.Failures {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				f.StrategyID, f.Symbol, f.ErrorKind, strings.ReplaceAll(f.Error, "|", "/")))
		}
	} else {
		sb.WriteString("No failed runs.\n")
	}
	sb.WriteString("\n")

	// Insights
	if len(s.Insights) > 0 {
		sb.WriteString("## Insights\n\n")
		for _, in := range s.Insights {
			sb.WriteString(fmt.Sprintf("- %s\n", in))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func num(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", *v)
}

func pct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *v*100)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
