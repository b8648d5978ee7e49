package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/strategy"
)

const minimal = `
symbols: [aapl, msft, AAPL]
strategies:
  - kind: mean_reversion
  - kind: MOMENTUM
    lookback_window: 30
    scaled: true
`

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, 100000.0, c.Backtest.InitialCapital)
	assert.Equal(t, 0.001, c.Backtest.TransactionCostRate)
	assert.Equal(t, 1.0, c.Backtest.AllocationFraction)
	assert.Equal(t, 252.0, c.Metrics.TradingPeriodsPerYear)
	assert.Equal(t, 0.95, c.Metrics.VaRConfidence)
	assert.Equal(t, "historical", c.Metrics.VaRMethod)
	assert.Equal(t, 4, c.Runner.Workers)
	assert.Equal(t, "memory", c.Cache.Backend)
	assert.Equal(t, time.Hour, c.Cache.TTL)
	assert.Equal(t, "noop", c.Analysis.Provider)
	assert.Equal(t, []string{"AAPL", "MSFT"}, c.UpperSymbols())

	strategies, err := c.StrategyConfigs()
	require.NoError(t, err)
	require.Len(t, strategies, 2)
	assert.Equal(t, strategy.KindMeanReversion, strategies[0].Kind)
	assert.Equal(t, strategy.KindMomentum, strategies[1].Kind)
	require.NotNil(t, strategies[1].Momentum)
	assert.Equal(t, 30, strategies[1].Momentum.Lookback)
	assert.True(t, strategies[1].Momentum.Scaled)
}

func TestParse_ExplicitZeroSurvivesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal + `
backtest:
  transaction_cost_rate: 0
`))
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.Backtest.TransactionCostRate)
	assert.Equal(t, 0.0, c.BacktestConfig().CostRate)
}

func TestParse_Conversions(t *testing.T) {
	c, err := Parse([]byte(minimal + `
backtest:
  initial_capital: 5000
  allocation_fraction: 0.5
metrics:
  trading_periods_per_year: 52
  var_confidence: 0.99
  var_method: parametric
  risk_free_rate: 0.02
`))
	require.NoError(t, err)

	bt := c.BacktestConfig()
	assert.Equal(t, 5000.0, bt.InitialCapital)
	assert.Equal(t, 0.5, bt.Allocation)

	mc := c.MetricsConfig()
	assert.Equal(t, 52.0, mc.PeriodsPerYear)
	assert.Equal(t, 0.99, mc.VaRConfidence)
	assert.Equal(t, "parametric", mc.VaRMethod)
	assert.Equal(t, 0.02, mc.RiskFreeRate)
}

func TestParse_StorageOptions(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	pg := c.PostgresOptions()
	assert.Equal(t, int32(8), pg.MaxConns)
	assert.Equal(t, int32(0), pg.MinConns)
	assert.Equal(t, 10*time.Second, pg.ConnectTimeout)

	ch := c.ClickHouseOptions()
	assert.Equal(t, 8, ch.MaxOpenConns)
	assert.Equal(t, 4, ch.MaxIdleConns)
	assert.Equal(t, 10*time.Second, ch.DialTimeout)
	assert.False(t, ch.Compress)

	c, err = Parse([]byte(minimal + `
storage:
  postgres_max_conns: 16
  postgres_min_conns: 2
  clickhouse_max_conns: 2
  clickhouse_compress: true
  connect_timeout: 3s
`))
	require.NoError(t, err)

	pg = c.PostgresOptions()
	assert.Equal(t, int32(16), pg.MaxConns)
	assert.Equal(t, int32(2), pg.MinConns)
	assert.Equal(t, 3*time.Second, pg.ConnectTimeout)

	ch = c.ClickHouseOptions()
	assert.Equal(t, 2, ch.MaxOpenConns)
	assert.Equal(t, 2, ch.MaxIdleConns)
	assert.True(t, ch.Compress)
}

func TestParse_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		field string
	}{
		{"cost rate too high", "backtest:\n  transaction_cost_rate: 1.5\n", "backtest.transaction_cost_rate"},
		{"non-positive capital", "backtest:\n  initial_capital: -1\n", "backtest.initial_capital"},
		{"confidence of one", "metrics:\n  var_confidence: 1\n", "metrics.var_confidence"},
		{"unknown var method", "metrics:\n  var_method: monte_carlo\n", "metrics.var_method"},
		{"zero workers", "runner:\n  workers: 0\n", "runner.workers"},
		{"bad date", "data:\n  start: 01/02/2024\n", "data.start"},
		{"end before start", "data:\n  start: 2024-02-01\n  end: 2024-01-01\n", "data.end"},
		{"identical pair", "pairs:\n  - {a: KO, b: KO}\n", "pairs[0].a"},
		{"negative pool size", "storage:\n  postgres_max_conns: -1\n", "storage.postgres_max_conns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(minimal + tt.extra))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrConfiguration), "got %v", err)

			var cerr *domain.ConfigurationError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestParse_StrategyErrors(t *testing.T) {
	_, err := Parse([]byte("symbols: [A]\nstrategies:\n  - kind: ARBITRAGE\n"))
	var cerr *domain.ConfigurationError
	require.True(t, errors.As(err, &cerr), "got %v", err)
	assert.Equal(t, "strategies[0].kind", cerr.Field)

	_, err = Parse([]byte("symbols: [A]\nstrategies:\n  - kind: MEAN_REVERSION\n    lookback_window: 1\n"))
	require.True(t, errors.As(err, &cerr), "got %v", err)
	assert.Equal(t, "strategies[0].lookback_window", cerr.Field)

	_, err = Parse([]byte("symbols: [A]\n"))
	require.True(t, errors.As(err, &cerr), "got %v", err)
	assert.Equal(t, "strategies", cerr.Field)

	_, err = Parse([]byte("strategies:\n  - kind: MOMENTUM\n"))
	require.True(t, errors.As(err, &cerr), "got %v", err)
	assert.Equal(t, "symbols", cerr.Field)
}

func TestDateRange(t *testing.T) {
	c, err := Parse([]byte(minimal + "data:\n  start: 2024-01-02\n  end: 2024-03-29\n"))
	require.NoError(t, err)

	start, end, err := c.DateRange()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), start)
	assert.True(t, end.After(time.Date(2024, 3, 29, 23, 0, 0, 0, time.UTC)))
	assert.True(t, end.Before(time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC)))
}

func TestApplyEnv(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	env := map[string]string{
		"APCA_API_KEY_ID":   "key-from-apca",
		"ALPACA_API_SECRET": "secret",
		"POSTGRES_DSN":      "postgres://x",
		"REDIS_ADDR":        "redis:6380",
		"LOG_LEVEL":         "debug",
	}
	c.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "key-from-apca", c.Data.AlpacaAPIKey)
	assert.Equal(t, "secret", c.Data.AlpacaAPISecret)
	assert.Equal(t, "postgres://x", c.Storage.PostgresDSN)
	assert.Equal(t, "redis:6380", c.Cache.RedisAddr)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "http://localhost:11434", c.Analysis.URL)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Strategies, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_AlpacaNeedsCredentials(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "")
	t.Setenv("APCA_API_KEY_ID", "")
	t.Setenv("ALPACA_API_SECRET", "")
	t.Setenv("APCA_API_SECRET_KEY", "")

	_, err := Parse([]byte(minimal + "data:\n  source: alpaca\n"))
	var cerr *domain.ConfigurationError
	require.True(t, errors.As(err, &cerr), "got %v", err)
	assert.Equal(t, "data.alpaca_api_key", cerr.Field)
}

func TestParse_ClickHouseSourceNeedsDSN(t *testing.T) {
	t.Setenv("CLICKHOUSE_DSN", "")

	_, err := Parse([]byte(minimal + "data:\n  source: clickhouse\n"))
	var cerr *domain.ConfigurationError
	require.True(t, errors.As(err, &cerr), "got %v", err)
	assert.Equal(t, "storage.clickhouse_dsn", cerr.Field)

	_, err = Parse([]byte(minimal + "data:\n  source: clickhouse\nstorage:\n  clickhouse_dsn: clickhouse://localhost:9000/default\n"))
	assert.NoError(t, err)
}
