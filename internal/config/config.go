// Package config loads the YAML configuration of batch runs, the CLIs and the server.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"strategy-lab/internal/backtest"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/logger"
	"strategy-lab/internal/metrics"
	chstore "strategy-lab/internal/storage/clickhouse"
	pgstore "strategy-lab/internal/storage/postgres"
	"strategy-lab/internal/strategy"
)

// DateLayout is the layout of configured dates.
const DateLayout = "2006-01-02"

// Config is the root configuration.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Data       DataConfig       `yaml:"data"`
	Cache      CacheConfig      `yaml:"cache"`
	Backtest   BacktestSection  `yaml:"backtest"`
	Metrics    MetricsSection   `yaml:"metrics"`
	Runner     RunnerConfig     `yaml:"runner"`
	Storage    StorageConfig    `yaml:"storage"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Server     ServerConfig     `yaml:"server"`
	Output     OutputConfig     `yaml:"output"`
	Symbols    []string         `yaml:"symbols" validate:"dive,required"`
	Pairs      []PairConfig     `yaml:"pairs" validate:"dive"`
	Strategies []StrategyConfig `yaml:"strategies" validate:"required,min=1,dive"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stderr"`
}

// DataConfig selects the market data source and date range.
type DataConfig struct {
	Source string `yaml:"source" default:"parquet" validate:"oneof=parquet csv alpaca clickhouse"`
	Dir    string `yaml:"dir" default:"data"`
	Market string `yaml:"market" default:"us"`
	Start  string `yaml:"start" validate:"omitempty,datetime=2006-01-02"`
	End    string `yaml:"end" validate:"omitempty,datetime=2006-01-02"`

	AlpacaAPIKey    string `yaml:"alpaca_api_key"`
	AlpacaAPISecret string `yaml:"alpaca_api_secret"`
	AlpacaBaseURL   string `yaml:"alpaca_base_url"`
	AlpacaFeed      string `yaml:"alpaca_feed" default:"sip" validate:"oneof=sip iex"`
}

// CacheConfig configures the price cache.
type CacheConfig struct {
	Backend     string        `yaml:"backend" default:"memory" validate:"oneof=none memory redis"`
	TTL         time.Duration `yaml:"ttl" default:"1h" validate:"gte=0"`
	RedisAddr   string        `yaml:"redis_addr" default:"localhost:6379"`
	RedisPass   string        `yaml:"redis_password"`
	RedisDB     int           `yaml:"redis_db" validate:"gte=0"`
	RedisPrefix string        `yaml:"redis_prefix" default:"strategy-lab"`
}

// BacktestSection holds engine options.
type BacktestSection struct {
	InitialCapital      float64 `yaml:"initial_capital" default:"100000" validate:"gt=0"`
	TransactionCostRate float64 `yaml:"transaction_cost_rate" default:"0.001" validate:"gte=0,lt=1"`
	AllocationFraction  float64 `yaml:"allocation_fraction" default:"1" validate:"gt=0,lte=1"`
}

// MetricsSection holds statistics options.
type MetricsSection struct {
	TradingPeriodsPerYear float64 `yaml:"trading_periods_per_year" default:"252" validate:"gt=0"`
	RiskFreeRate          float64 `yaml:"risk_free_rate"`
	VaRConfidence         float64 `yaml:"var_confidence" default:"0.95" validate:"gt=0,lt=1"`
	VaRMethod             string  `yaml:"var_method" default:"historical" validate:"oneof=historical parametric"`
}

// RunnerConfig holds batch execution options.
type RunnerConfig struct {
	Workers       int  `yaml:"workers" default:"4" validate:"gte=1"`
	DiscoverPairs bool `yaml:"discover_pairs"`
}

// StorageConfig holds optional persistence DSNs and pool sizes. An empty DSN
// disables the store.
type StorageConfig struct {
	PostgresDSN        string        `yaml:"postgres_dsn"`
	PostgresMaxConns   int32         `yaml:"postgres_max_conns" default:"8" validate:"gte=0"`
	PostgresMinConns   int32         `yaml:"postgres_min_conns" validate:"gte=0"`
	ClickHouseDSN      string        `yaml:"clickhouse_dsn"`
	ClickHouseMaxConns int           `yaml:"clickhouse_max_conns" default:"8" validate:"gte=0"`
	ClickHouseCompress bool          `yaml:"clickhouse_compress"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout" default:"10s" validate:"gte=0"`
}

// AnalysisConfig selects the narrative analyzer.
type AnalysisConfig struct {
	Provider string        `yaml:"provider" default:"noop" validate:"oneof=noop ollama"`
	URL      string        `yaml:"url" default:"http://localhost:11434" validate:"omitempty,url"`
	Model    string        `yaml:"model" default:"llama3"`
	Timeout  time.Duration `yaml:"timeout" default:"2m" validate:"gt=0"`
}

// ServerConfig configures cmd/server.
type ServerConfig struct {
	Addr            string        `yaml:"addr" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

// OutputConfig configures report files.
type OutputConfig struct {
	Dir string `yaml:"dir" default:"reports"`
}

// PairConfig names one pair for the PAIRS strategy.
type PairConfig struct {
	A string `yaml:"a" json:"a,omitempty" validate:"required,nefield=B"`
	B string `yaml:"b" json:"b,omitempty" validate:"required"`
}

// StrategyConfig is one strategy entry. Nil parameters keep the kind's defaults;
// parameter ranges are checked by the strategy package.
type StrategyConfig struct {
	Kind           string   `yaml:"kind" json:"kind,omitempty" validate:"required"`
	LookbackWindow *int     `yaml:"lookback_window" json:"lookback_window,omitempty"`
	EntryThreshold *float64 `yaml:"entry_threshold" json:"entry_threshold,omitempty"`
	ExitThreshold  *float64 `yaml:"exit_threshold" json:"exit_threshold,omitempty"`

	VolatilityWindow *int     `yaml:"volatility_window" json:"volatility_window,omitempty"`
	VolatilityFloor  *float64 `yaml:"volatility_floor" json:"volatility_floor,omitempty"`
	Scaled           *bool    `yaml:"scaled" json:"scaled,omitempty"`
	ScaleDivisor     *float64 `yaml:"scale_divisor" json:"scale_divisor,omitempty"`
	AdaptiveWindow   *int     `yaml:"adaptive_window" json:"adaptive_window,omitempty"`
	AdaptiveQuantile *float64 `yaml:"adaptive_quantile" json:"adaptive_quantile,omitempty"`

	ZScoreWindow     *int     `yaml:"zscore_window" json:"zscore_window,omitempty"`
	ADFLags          *int     `yaml:"adf_lags" json:"adf_lags,omitempty"`
	ADFCriticalValue *float64 `yaml:"adf_critical_value" json:"adf_critical_value,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load reads path, applies defaults, environment overrides and validation.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse builds a Config from YAML bytes.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	// Defaults first so explicit zero values in the file survive.
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.ApplyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Default returns a Config with every default applied and no strategies.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	set(&c.Data.AlpacaAPIKey, "ALPACA_API_KEY", "APCA_API_KEY_ID")
	set(&c.Data.AlpacaAPISecret, "ALPACA_API_SECRET", "APCA_API_SECRET_KEY")
	set(&c.Data.Dir, "DATA_DIR")
	set(&c.Storage.PostgresDSN, "POSTGRES_DSN")
	set(&c.Storage.ClickHouseDSN, "CLICKHOUSE_DSN")
	set(&c.Cache.RedisAddr, "REDIS_ADDR")
	set(&c.Analysis.URL, "OLLAMA_URL")
	set(&c.Analysis.Model, "OLLAMA_MODEL")
	set(&c.Log.Level, "LOG_LEVEL")
}

// Validate checks struct tags, then the core option ranges and the date range.
// The first failure is returned as *domain.ConfigurationError.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return err
	}
	if c.Data.Source == "alpaca" && (c.Data.AlpacaAPIKey == "" || c.Data.AlpacaAPISecret == "") {
		return &domain.ConfigurationError{Field: "data.alpaca_api_key", Reason: "is required for the alpaca source"}
	}
	if c.Data.Source == "clickhouse" && c.Storage.ClickHouseDSN == "" {
		return &domain.ConfigurationError{Field: "storage.clickhouse_dsn", Reason: "is required for the clickhouse source"}
	}
	if len(c.Symbols) == 0 && len(c.Pairs) == 0 {
		return &domain.ConfigurationError{Field: "symbols", Reason: "at least one symbol or pair is required"}
	}
	if _, _, err := c.DateRange(); err != nil {
		return err
	}
	if err := c.BacktestConfig().Validate(); err != nil {
		return err
	}
	if err := c.MetricsConfig().Validate(); err != nil {
		return err
	}
	_, err := c.StrategyConfigs()
	return err
}

func fieldError(fe validator.FieldError) error {
	// Namespace is "Config.backtest.initial_capital"; drop the root.
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	var reason string
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "min", "gte":
		reason = "must be at least " + fe.Param()
	case "gt":
		reason = "must be greater than " + fe.Param()
	case "lt":
		reason = "must be less than " + fe.Param()
	case "lte", "max":
		reason = "must be at most " + fe.Param()
	case "oneof":
		reason = "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "datetime":
		reason = "must be a date " + fe.Param()
	case "nefield":
		reason = "must differ from " + strings.ToLower(fe.Param())
	default:
		reason = "failed validation: " + fe.Tag()
	}
	return &domain.ConfigurationError{Field: field, Reason: reason}
}

// DateRange parses the configured start and end. Missing dates are zero (open).
func (c *Config) DateRange() (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if c.Data.Start != "" {
		if start, err = time.Parse(DateLayout, c.Data.Start); err != nil {
			return start, end, &domain.ConfigurationError{Field: "data.start", Reason: "must be a date " + DateLayout}
		}
	}
	if c.Data.End != "" {
		if end, err = time.Parse(DateLayout, c.Data.End); err != nil {
			return start, end, &domain.ConfigurationError{Field: "data.end", Reason: "must be a date " + DateLayout}
		}
		// Inclusive of the whole end day.
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, &domain.ConfigurationError{Field: "data.end", Reason: "must not be before data.start"}
	}
	return start, end, nil
}

// BacktestConfig converts to the engine configuration.
func (c *Config) BacktestConfig() backtest.Config {
	return backtest.Config{
		InitialCapital: c.Backtest.InitialCapital,
		CostRate:       c.Backtest.TransactionCostRate,
		Allocation:     c.Backtest.AllocationFraction,
	}
}

// MetricsConfig converts to the statistics configuration.
func (c *Config) MetricsConfig() metrics.Config {
	return metrics.Config{
		PeriodsPerYear: c.Metrics.TradingPeriodsPerYear,
		RiskFreeRate:   c.Metrics.RiskFreeRate,
		VaRConfidence:  c.Metrics.VaRConfidence,
		VaRMethod:      c.Metrics.VaRMethod,
	}
}

// StrategyConfigs converts every strategy entry, validating parameters.
func (c *Config) StrategyConfigs() ([]strategy.Config, error) {
	out := make([]strategy.Config, 0, len(c.Strategies))
	for i, s := range c.Strategies {
		cfg, err := strategy.FromConfig(s.Params())
		if err != nil {
			var cerr *domain.ConfigurationError
			if errors.As(err, &cerr) {
				return nil, &domain.ConfigurationError{
					Field:  fmt.Sprintf("strategies[%d].%s", i, cerr.Field),
					Reason: cerr.Reason,
				}
			}
			return nil, &domain.ConfigurationError{Field: fmt.Sprintf("strategies[%d].kind", i), Reason: err.Error()}
		}
		out = append(out, cfg)
	}
	return out, nil
}

// Params converts the entry to strategy factory parameters.
func (s StrategyConfig) Params() strategy.Params {
	return strategy.Params{
		Kind:             s.Kind,
		LookbackWindow:   s.LookbackWindow,
		EntryThreshold:   s.EntryThreshold,
		ExitThreshold:    s.ExitThreshold,
		VolatilityWindow: s.VolatilityWindow,
		VolatilityFloor:  s.VolatilityFloor,
		Scaled:           s.Scaled,
		ScaleDivisor:     s.ScaleDivisor,
		AdaptiveWindow:   s.AdaptiveWindow,
		AdaptiveQuantile: s.AdaptiveQuantile,
		ZScoreWindow:     s.ZScoreWindow,
		ADFLags:          s.ADFLags,
		ADFCriticalValue: s.ADFCriticalValue,
	}
}

// PostgresOptions converts to the report and trade store pool options.
func (c *Config) PostgresOptions() pgstore.Options {
	return pgstore.Options{
		MaxConns:       c.Storage.PostgresMaxConns,
		MinConns:       c.Storage.PostgresMinConns,
		ConnectTimeout: c.Storage.ConnectTimeout,
	}
}

// ClickHouseOptions converts to the bar and equity curve store connection options.
func (c *Config) ClickHouseOptions() chstore.Options {
	return chstore.Options{
		MaxOpenConns: c.Storage.ClickHouseMaxConns,
		MaxIdleConns: min(c.Storage.ClickHouseMaxConns, 4),
		DialTimeout:  c.Storage.ConnectTimeout,
		Compress:     c.Storage.ClickHouseCompress,
	}
}

// LoggerConfig converts to the logger configuration.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Log.Level, Format: c.Log.Format, Output: c.Log.Output}
}

// UpperSymbols returns the configured symbols upper-cased and deduplicated, in order.
func (c *Config) UpperSymbols() []string {
	seen := make(map[string]struct{}, len(c.Symbols))
	out := make([]string, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
