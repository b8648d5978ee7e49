// Package app wires configuration into sources, caches, stores and the runner.
// It is shared by the commands.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"strategy-lab/internal/analysis"
	"strategy-lab/internal/config"
	"strategy-lab/internal/marketdata"
	"strategy-lab/internal/runner"
	"strategy-lab/internal/storage"
	chstore "strategy-lab/internal/storage/clickhouse"
	"strategy-lab/internal/storage/memory"
	"strategy-lab/internal/storage/migrations"
	pgstore "strategy-lab/internal/storage/postgres"
	redisstore "strategy-lab/internal/storage/redis"
)

// Deps holds the wired components. Close releases connections.
type Deps struct {
	Source marketdata.Source
	// Cache is nil when caching is disabled.
	Cache *marketdata.CachedSource

	TradeStore       storage.TradeStore
	ReportStore      storage.ReportStore
	EquityCurveStore storage.EquityCurveStore
	// BarStore is set when ClickHouse is configured.
	BarStore storage.BarStore

	closers []func()
}

// Close releases connections in reverse order of opening.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// Open connects the configured stores, runs their migrations, and builds the
// (optionally cached) market data source. Without DSNs the stores are in memory.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Deps, error) {
	d := &Deps{}
	if err := d.openStores(ctx, cfg, log); err != nil {
		d.Close()
		return nil, err
	}

	src, err := d.newSource(cfg)
	if err != nil {
		d.Close()
		return nil, err
	}

	switch cfg.Cache.Backend {
	case "memory":
		d.Cache = marketdata.NewCachedSource(src, memory.NewPriceCache(), cfg.Cache.TTL, log)
	case "redis":
		rc, err := redisstore.NewPriceCache(
			redisstore.WithAddr(cfg.Cache.RedisAddr),
			redisstore.WithPassword(cfg.Cache.RedisPass),
			redisstore.WithDB(cfg.Cache.RedisDB),
			redisstore.WithPrefix(cfg.Cache.RedisPrefix),
		)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		d.closers = append(d.closers, func() { rc.Close() })
		d.Cache = marketdata.NewCachedSource(src, rc, cfg.Cache.TTL, log)
	}

	d.Source = src
	if d.Cache != nil {
		d.Source = d.Cache
	}

	log.Info().
		Str("source", cfg.Data.Source).
		Str("cache", cfg.Cache.Backend).
		Bool("postgres", cfg.Storage.PostgresDSN != "").
		Bool("clickhouse", cfg.Storage.ClickHouseDSN != "").
		Msg("components wired")
	return d, nil
}

func (d *Deps) openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pool, err := pgstore.NewPool(ctx, dsn, cfg.PostgresOptions())
		if err != nil {
			return err
		}
		d.closers = append(d.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		d.TradeStore = pgstore.NewTradeStore(pool)
		d.ReportStore = pgstore.NewReportStore(pool)
		log.Debug().Msg("postgres stores ready")
	} else {
		d.TradeStore = memory.NewTradeStore()
		d.ReportStore = memory.NewReportStore()
	}

	if dsn := cfg.Storage.ClickHouseDSN; dsn != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn, cfg.ClickHouseOptions())
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		d.closers = append(d.closers, func() { conn.Close() })
		d.EquityCurveStore = chstore.NewEquityCurveStore(conn)
		d.BarStore = chstore.NewBarStore(conn)
		log.Debug().Msg("clickhouse stores ready")
	} else {
		d.EquityCurveStore = memory.NewEquityCurveStore()
	}
	return nil
}

func (d *Deps) newSource(cfg *config.Config) (marketdata.Source, error) {
	switch cfg.Data.Source {
	case "parquet":
		return marketdata.NewParquetSource(cfg.Data.Dir, cfg.Data.Market), nil
	case "csv":
		return marketdata.NewCSVSource(cfg.Data.Dir), nil
	case "alpaca":
		return marketdata.NewAlpacaSource(marketdata.AlpacaConfig{
			APIKey:    cfg.Data.AlpacaAPIKey,
			APISecret: cfg.Data.AlpacaAPISecret,
			BaseURL:   cfg.Data.AlpacaBaseURL,
			Feed:      cfg.Data.AlpacaFeed,
		}), nil
	case "clickhouse":
		if d.BarStore == nil {
			return nil, fmt.Errorf("data source clickhouse: storage.clickhouse_dsn is not set")
		}
		return marketdata.NewStoreSource(d.BarStore), nil
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.Data.Source)
	}
}

// NewRunner builds a runner over d. observer may be nil.
func NewRunner(cfg *config.Config, d *Deps, observer runner.Observer, log zerolog.Logger) (*runner.Runner, error) {
	return runner.New(runner.Options{
		Source:           d.Source,
		Backtest:         cfg.BacktestConfig(),
		Metrics:          cfg.MetricsConfig(),
		Workers:          cfg.Runner.Workers,
		TradeStore:       d.TradeStore,
		ReportStore:      d.ReportStore,
		EquityCurveStore: d.EquityCurveStore,
		Observer:         observer,
		Logger:           log,
	})
}

// NewBatch builds the configured batch.
func NewBatch(cfg *config.Config) (runner.Batch, error) {
	strategies, err := cfg.StrategyConfigs()
	if err != nil {
		return runner.Batch{}, err
	}
	start, end, err := cfg.DateRange()
	if err != nil {
		return runner.Batch{}, err
	}
	b := runner.Batch{
		Strategies:    strategies,
		Symbols:       cfg.UpperSymbols(),
		DiscoverPairs: cfg.Runner.DiscoverPairs,
		Start:         start,
		End:           end,
	}
	for _, p := range cfg.Pairs {
		b.Pairs = append(b.Pairs, [2]string{p.A, p.B})
	}
	return b, nil
}

// NewAnalyzer returns the configured analyzer.
func NewAnalyzer(cfg config.AnalysisConfig, log zerolog.Logger) analysis.Analyzer {
	if cfg.Provider == "ollama" {
		return analysis.NewOllama(cfg.URL, cfg.Model,
			analysis.WithTimeout(cfg.Timeout),
			analysis.WithLogger(log),
		)
	}
	return analysis.Noop{}
}
