// Package main runs one strategy over one symbol or pair and prints its report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"strategy-lab/internal/app"
	"strategy-lab/internal/config"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/logger"
	"strategy-lab/internal/runner"
	"strategy-lab/internal/strategy"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "YAML config (optional; flags override it)")
	kind := flag.String("strategy", "MEAN_REVERSION", "Strategy kind: MEAN_REVERSION, MOMENTUM, PAIRS")
	symbols := flag.String("symbols", "", "Symbol, or two comma-separated symbols for PAIRS (required)")
	source := flag.String("source", "", "Data source: parquet, csv, alpaca, clickhouse")
	dataDir := flag.String("data-dir", "", "Data directory for parquet/csv sources")
	start := flag.String("start", "", "Start date (YYYY-MM-DD)")
	end := flag.String("end", "", "End date (YYYY-MM-DD, inclusive)")
	lookback := flag.Int("lookback", 0, "Lookback window (formation window for PAIRS)")
	entry := flag.Float64("entry", 0, "Entry threshold")
	exit := flag.Float64("exit", 0, "Exit threshold")
	capital := flag.Float64("capital", 0, "Initial capital")
	cost := flag.Float64("cost", -1, "Transaction cost rate")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	showTrades := flag.Bool("trades", false, "Print the trade list")
	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if *symbols == "" {
		fmt.Fprintln(os.Stderr, "--symbols is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *source != "" {
		cfg.Data.Source = *source
	}
	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
	}
	if *start != "" {
		cfg.Data.Start = *start
	}
	if *end != "" {
		cfg.Data.End = *end
	}
	if set["capital"] {
		cfg.Backtest.InitialCapital = *capital
	}
	if set["cost"] {
		cfg.Backtest.TransactionCostRate = *cost
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	params := strategy.Params{Kind: *kind}
	if set["lookback"] {
		params.LookbackWindow = lookback
	}
	if set["entry"] {
		params.EntryThreshold = entry
	}
	if set["exit"] {
		params.ExitThreshold = exit
	}
	strat, err := strategy.FromConfig(params)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid strategy")
	}

	from, to, err := cfg.DateRange()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid date range")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("cancelling backtest")
		cancel()
	}()

	deps, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("wire components")
	}
	defer deps.Close()

	r, err := app.NewRunner(cfg, deps, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create runner")
	}

	job := runner.Job{Strategy: strat, Symbols: splitSymbols(*symbols)}
	res, err := r.RunOne(ctx, job, from, to)
	if err != nil {
		log.Fatal().Err(err).Msg("run")
	}

	if *outputJSON {
		out := struct {
			*domain.RunResult
			Error string `json:"error,omitempty"`
		}{RunResult: res, Error: res.ErrorString()}
		if !*showTrades {
			out.RunResult.Equity = nil
			out.RunResult.Trades = nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			log.Fatal().Err(err).Msg("encode result")
		}
	} else {
		printResult(res, *showTrades)
	}

	if res.Failed() {
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.Default()
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

func splitSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printResult(res *domain.RunResult, showTrades bool) {
	fmt.Printf("=== %s on %s ===\n", res.StrategyID, res.Label())
	if res.Failed() {
		fmt.Printf("FAILED (%s): %s\n", domain.ErrorKind(res.Err), res.ErrorString())
		return
	}

	r := res.Report
	fmt.Printf("Run ID:             %s\n", res.RunID)
	fmt.Printf("Bars:               %d\n", r.Bars)
	fmt.Printf("Initial capital:    %.2f\n", r.InitialCapital)
	fmt.Printf("Final equity:       %.2f\n", r.FinalEquity)
	fmt.Printf("Cumulative return:  %.2f%%\n", r.CumulativeReturn*100)
	fmt.Printf("Annualized return:  %.2f%%\n", r.AnnualizedReturn*100)
	fmt.Printf("Volatility:         %.2f%%\n", r.Volatility*100)
	fmt.Printf("Max drawdown:       %.2f%%\n", r.MaxDrawdown*100)
	fmt.Printf("VaR (%.0f%%):          %s\n", r.VaRConfidence*100, pct(r.VaR))
	fmt.Printf("CVaR:               %s\n", pct(r.CVaR))
	fmt.Printf("Sharpe:             %s\n", num(r.Sharpe))
	fmt.Printf("Sortino:            %s\n", num(r.Sortino))
	fmt.Printf("Calmar:             %s\n", num(r.Calmar))
	fmt.Printf("Information ratio:  %s\n", num(r.InformationRatio))
	fmt.Printf("Beta:               %s\n", num(r.Beta))
	fmt.Printf("Trades:             %d\n", r.TotalTrades)
	fmt.Printf("Win rate:           %s\n", pct(r.WinRate))
	fmt.Printf("Profit factor:      %s\n", num(r.ProfitFactor))
	fmt.Printf("Avg holding bars:   %s\n", num(r.AvgHoldingBars))
	fmt.Printf("Total costs:        %.2f\n", r.TotalCosts)
	fmt.Printf("Exposure:           %.2f%%\n", r.Exposure*100)
	fmt.Printf("Duration:           %v\n", res.Duration.Round(time.Millisecond))

	for _, w := range res.Windows {
		if w.Tradable {
			fmt.Printf("Window [%d, %d): hedge %.4f, adf %.3f, half-life %.1f\n",
				w.TradeStart, w.TradeEnd, w.HedgeRatio, w.ADFStatistic, w.HalfLife)
		} else {
			fmt.Printf("Window [%d, %d): skipped (%v)\n", w.TradeStart, w.TradeEnd, w.Err)
		}
	}

	if showTrades && len(res.Trades) > 0 {
		fmt.Println("\nTrades:")
		fmt.Printf("  %-6s %-5s %-10s %-10s %12s %12s %12s\n", "Symbol", "Side", "Entry", "Exit", "EntryPx", "ExitPx", "NetPnL")
		for _, t := range res.Trades {
			fmt.Printf("  %-6s %-5s %-10s %-10s %12.4f %12.4f %12.2f\n",
				t.Symbol, t.Direction,
				t.EntryTime.Format(config.DateLayout), t.ExitTime.Format(config.DateLayout),
				t.EntryPrice, t.ExitPrice, t.NetPnL)
		}
	}
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
