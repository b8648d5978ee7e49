// Package main verifies a persisted run: it rebuilds the equity curve from the
// stored trades and bars and compares it with the stored curve.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"strategy-lab/internal/app"
	"strategy-lab/internal/backtest"
	"strategy-lab/internal/config"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/logger"
)

// VerifyResult is the outcome of a replay.
type VerifyResult struct {
	RunID      string  `json:"run_id"`
	StrategyID string  `json:"strategy_id"`
	Symbols    string  `json:"symbols"`
	Points     int     `json:"points"`
	Trades     int     `json:"trades"`
	MaxDiff    float64 `json:"max_diff"`
	FirstDiff  int     `json:"first_diff"` // -1 when curves match
	Match      bool    `json:"match"`
}

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "YAML config file (stores and data source)")
	runID := flag.String("run-id", "", "Run ID to verify (required)")
	tolerance := flag.Float64("tolerance", 1e-6, "Allowed absolute equity difference")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	if *runID == "" {
		fmt.Fprintln(os.Stderr, "--run-id is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("cancelling replay")
		cancel()
	}()

	deps, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("wire components")
	}
	defer deps.Close()

	res, err := verify(ctx, deps, *runID, *tolerance)
	if err != nil {
		log.Fatal().Err(err).Str("run_id", *runID).Msg("replay")
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(res)
	} else {
		fmt.Printf("Run:        %s\n", res.RunID)
		fmt.Printf("Strategy:   %s\n", res.StrategyID)
		fmt.Printf("Symbols:    %s\n", res.Symbols)
		fmt.Printf("Points:     %d\n", res.Points)
		fmt.Printf("Trades:     %d\n", res.Trades)
		fmt.Printf("Max diff:   %.9f\n", res.MaxDiff)
		if res.Match {
			fmt.Println("Result:     MATCH")
		} else {
			fmt.Printf("Result:     MISMATCH (first at point %d)\n", res.FirstDiff)
		}
	}

	if !res.Match {
		os.Exit(1)
	}
}

func verify(ctx context.Context, deps *app.Deps, runID string, tolerance float64) (*VerifyResult, error) {
	report, err := deps.ReportStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	stored, err := deps.TradeStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	curve, err := deps.EquityCurveStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load equity curve: %w", err)
	}
	if len(curve) == 0 {
		return nil, fmt.Errorf("empty equity curve")
	}

	symbols := strings.Split(report.Symbol, "/")
	first, last := curve[0].Time, curve[len(curve)-1].Time
	series := make([]*domain.PriceSeries, len(symbols))
	for i, sym := range symbols {
		s, err := deps.Source.Bars(ctx, sym, first, last)
		if err != nil {
			return nil, fmt.Errorf("load bars %s: %w", sym, err)
		}
		series[i] = s
	}
	if len(series) == 2 {
		a, b, err := domain.AlignPair(series[0], series[1])
		if err != nil {
			return nil, fmt.Errorf("align pair: %w", err)
		}
		series = []*domain.PriceSeries{a, b}
	}

	trades := make([]domain.Trade, len(stored))
	for i, t := range stored {
		trades[i] = *t
	}
	rebuilt, err := backtest.Reconstruct(series, trades, report.InitialCapital)
	if err != nil {
		return nil, err
	}

	return compare(report, len(trades), curve, rebuilt, tolerance), nil
}

// compare checks the curves point by point. Differing lengths never match.
func compare(report *domain.PerformanceReport, trades int, stored, rebuilt []domain.EquityPoint, tolerance float64) *VerifyResult {
	res := &VerifyResult{
		RunID:      report.RunID,
		StrategyID: report.StrategyID,
		Symbols:    report.Symbol,
		Points:     len(stored),
		Trades:     trades,
		FirstDiff:  -1,
	}
	n := min(len(stored), len(rebuilt))
	for i := 0; i < n; i++ {
		if !stored[i].Time.Equal(rebuilt[i].Time) {
			if res.FirstDiff < 0 {
				res.FirstDiff = i
			}
			continue
		}
		d := math.Abs(stored[i].Equity - rebuilt[i].Equity)
		if d > res.MaxDiff {
			res.MaxDiff = d
		}
		if d > tolerance && res.FirstDiff < 0 {
			res.FirstDiff = i
		}
	}
	if len(stored) != len(rebuilt) && res.FirstDiff < 0 {
		res.FirstDiff = n
	}
	res.Match = res.FirstDiff < 0
	return res
}
