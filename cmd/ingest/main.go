// Package main imports daily bars from a data source into local storage:
// parquet files, CSV files, or the ClickHouse daily_bars table.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"strategy-lab/internal/config"
	"strategy-lab/internal/logger"
	"strategy-lab/internal/marketdata"
	chstore "strategy-lab/internal/storage/clickhouse"
	"strategy-lab/internal/storage/migrations"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "YAML config (optional; credentials and defaults)")
	from := flag.String("from", "alpaca", "Source: alpaca, csv, parquet")
	fromDir := flag.String("from-dir", "", "Directory of csv/parquet sources (default data.dir)")
	to := flag.String("to", "parquet", "Destination: parquet, csv, clickhouse")
	toDir := flag.String("to-dir", "", "Directory of csv/parquet destinations (default data.dir)")
	symbols := flag.String("symbols", "", "Comma-separated symbols (default: config symbols)")
	start := flag.String("start", "", "Start date (YYYY-MM-DD)")
	end := flag.String("end", "", "End date (YYYY-MM-DD, inclusive)")
	workers := flag.Int("workers", 4, "Concurrent symbols")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *start != "" {
		cfg.Data.Start = *start
	}
	if *end != "" {
		cfg.Data.End = *end
	}
	if *symbols != "" {
		cfg.Symbols = strings.Split(*symbols, ",")
	}
	if *fromDir == "" {
		*fromDir = cfg.Data.Dir
	}
	if *toDir == "" {
		*toDir = cfg.Data.Dir
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	syms := cfg.UpperSymbols()
	if len(syms) == 0 {
		log.Fatal().Msg("no symbols: use --symbols or the config symbols list")
	}
	startT, endT, err := cfg.DateRange()
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
		log.Warn().Str("signal", sig.String()).Msg("cancelling ingest")
		cancel()
	}()

	src, err := newSource(*from, *fromDir, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("source")
	}
	sink, closeSink, err := newSink(ctx, *to, *toDir, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("destination")
	}
	defer closeSink()

	log.Info().
		Str("from", *from).
		Str("to", *to).
		Strs("symbols", syms).
		Msg("starting ingest")

	t0 := time.Now()
	var total, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)
	for _, sym := range syms {
		g.Go(func() error {
			n, err := sink(gctx, src, sym, startT, endT)
			if err != nil {
				failed.Add(1)
				if errors.Is(err, context.Canceled) {
					return err
				}
				// One symbol failing does not stop the others
				log.Error().Err(err).Str("symbol", sym).Msg("ingest failed")
				return nil
			}
			total.Add(int64(n))
			log.Info().Str("symbol", sym).Int("bars", n).Msg("ingested")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("ingest cancelled")
	}

	log.Info().
		Int64("bars", total.Load()).
		Int64("failed_symbols", failed.Load()).
		Dur("duration", time.Since(t0)).
		Msg("ingest complete")
	if failed.Load() > 0 {
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

func newSource(kind, dir string, cfg *config.Config) (marketdata.Source, error) {
	switch kind {
	case "alpaca":
		if cfg.Data.AlpacaAPIKey == "" || cfg.Data.AlpacaAPISecret == "" {
			return nil, fmt.Errorf("alpaca credentials missing: set ALPACA_API_KEY and ALPACA_API_SECRET")
		}
		return marketdata.NewAlpacaSource(marketdata.AlpacaConfig{
			APIKey:    cfg.Data.AlpacaAPIKey,
			APISecret: cfg.Data.AlpacaAPISecret,
			BaseURL:   cfg.Data.AlpacaBaseURL,
			Feed:      cfg.Data.AlpacaFeed,
		}), nil
	case "csv":
		return marketdata.NewCSVSource(dir), nil
	case "parquet":
		return marketdata.NewParquetSource(dir, cfg.Data.Market), nil
	default:
		return nil, fmt.Errorf("unknown source %q", kind)
	}
}

// sinkFunc copies one symbol from src and returns the number of bars written.
type sinkFunc func(ctx context.Context, src marketdata.Source, symbol string, start, end time.Time) (int, error)

func newSink(ctx context.Context, kind, dir string, cfg *config.Config) (sinkFunc, func(), error) {
	switch kind {
	case "parquet":
		dst := marketdata.NewParquetSource(dir, cfg.Data.Market)
		return func(ctx context.Context, src marketdata.Source, symbol string, start, end time.Time) (int, error) {
			series, err := src.Bars(ctx, symbol, start, end)
			if err != nil {
				return 0, err
			}
			if err := dst.WriteSeries(series); err != nil {
				return 0, err
			}
			return series.Len(), nil
		}, func() {}, nil

	case "csv":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create %s: %w", dir, err)
		}
		return func(ctx context.Context, src marketdata.Source, symbol string, start, end time.Time) (int, error) {
			series, err := src.Bars(ctx, symbol, start, end)
			if err != nil {
				return 0, err
			}
			f, err := os.Create(filepath.Join(dir, symbol+".csv"))
			if err != nil {
				return 0, err
			}
			defer f.Close()
			if err := marketdata.WriteCSV(f, series); err != nil {
				return 0, err
			}
			return series.Len(), f.Close()
		}, func() {}, nil

	case "clickhouse":
		if cfg.Storage.ClickHouseDSN == "" {
			return nil, nil, fmt.Errorf("clickhouse destination needs CLICKHOUSE_DSN or storage.clickhouse_dsn")
		}
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN, cfg.ClickHouseOptions())
		if err != nil {
			return nil, nil, err
		}
		store := chstore.NewBarStore(conn)
		return func(ctx context.Context, src marketdata.Source, symbol string, start, end time.Time) (int, error) {
			return marketdata.Import(ctx, src, store, symbol, start, end)
		}, func() { conn.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown destination %q", kind)
	}
}
