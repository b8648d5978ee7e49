package reporting

import (
	"fmt"
	"strconv"
	"strings"

	"strategy-lab/internal/domain"
)

// RenderCSV renders per-run reports as a CSV string.
// Undefined ratios are empty cells.
func RenderCSV(reports []*domain.PerformanceReport) string {
	var sb strings.Builder

	// Header
	sb.WriteString("run_id,strategy_id,symbol,bars,initial_capital,final_equity,")
	sb.WriteString("cumulative_return,annualized_return,volatility,max_drawdown,var,cvar,")
	sb.WriteString("sharpe,sortino,calmar,information_ratio,beta,")
	sb.WriteString("total_trades,win_rate,profit_factor,avg_holding_bars,total_costs,exposure\n")

	// Rows
	for _, r := range reports {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%d,%.2f,%.2f,%.6f,%.6f,%.6f,%.6f,%s,%s,%s,%s,%s,%s,%s,%d,%s,%s,%s,%.6f,%.6f\n",
			r.RunID,
			r.StrategyID,
			r.Symbol,
			r.Bars,
			r.InitialCapital,
			r.FinalEquity,
			r.CumulativeReturn,
			r.AnnualizedReturn,
			r.Volatility,
			r.MaxDrawdown,
			cell(r.VaR),
			cell(r.CVaR),
			cell(r.Sharpe),
			cell(r.Sortino),
			cell(r.Calmar),
			cell(r.InformationRatio),
			cell(r.Beta),
			r.TotalTrades,
			cell(r.WinRate),
			cell(r.ProfitFactor),
			cell(r.AvgHoldingBars),
			r.TotalCosts,
			r.Exposure,
		))
	}

	return sb.String()
}

// RenderSummaryCSV renders per-strategy averages as a CSV string.
func RenderSummaryCSV(s *Summary) string {
	var sb strings.Builder

	sb.WriteString("strategy_id,kind,num_symbols,failures,avg_sharpe,avg_annualized_return,")
	sb.WriteString("avg_max_drawdown,avg_win_rate,avg_volatility,avg_var,avg_cvar,avg_profit_factor,")
	sb.WriteString("best_symbol,worst_symbol\n")

	for _, ss := range s.Strategies {
		a := ss.Average
		if a == nil {
			sb.WriteString(fmt.Sprintf("%s,%s,%d,%d,,,,,,,,,,\n", ss.StrategyID, ss.Kind, ss.NumSymbols, ss.Failures))
			continue
		}
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%d,%s,%.6f,%.6f,%s,%.6f,%s,%s,%s,%s,%s\n",
			ss.StrategyID,
			ss.Kind,
			ss.NumSymbols,
			ss.Failures,
			cell(a.Sharpe),
			a.AnnualizedReturn,
			a.MaxDrawdown,
			cell(a.WinRate),
			a.Volatility,
			cell(a.VaR),
			cell(a.CVaR),
			cell(a.ProfitFactor),
			ss.BestSymbol,
			ss.WorstSymbol,
		))
	}

	return sb.String()
}

func cell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}
