// Package runner executes batches of backtests in parallel.
//
// A batch is every configured strategy over every symbol, plus PAIRS
// strategies over configured or discovered pairs. Each job owns its own
// portfolio state; a failing job is recorded in its RunResult and never
// aborts the batch.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"strategy-lab/internal/backtest"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/idhash"
	"strategy-lab/internal/marketdata"
	"strategy-lab/internal/metrics"
	"strategy-lab/internal/observability"
	"strategy-lab/internal/storage"
	"strategy-lab/internal/strategy"
)

// Runner errors
var (
	ErrNoSource     = errors.New("runner: data source is required")
	ErrNoStrategies = errors.New("runner: at least one strategy is required")
	ErrNoJobs       = errors.New("runner: batch has no jobs")
)

// Observer receives each run result as soon as it finishes.
// It is called from worker goroutines and must be safe for concurrent use.
type Observer interface {
	OnResult(res *domain.RunResult)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(res *domain.RunResult)

// OnResult calls f.
func (f ObserverFunc) OnResult(res *domain.RunResult) { f(res) }

// Options for creating a Runner.
type Options struct {
	// Required
	Source marketdata.Source

	// Engine and statistics configuration
	Backtest backtest.Config
	Metrics  metrics.Config

	// Workers bounds concurrent jobs; <= 0 means 1.
	Workers int

	// Optional persistence (nil = skip)
	TradeStore       storage.TradeStore
	ReportStore      storage.ReportStore
	EquityCurveStore storage.EquityCurveStore

	Observer Observer
	Logger   zerolog.Logger
}

// Runner executes batches.
type Runner struct {
	source      marketdata.Source
	bt          backtest.Config
	mc          metrics.Config
	workers     int
	tradeStore  storage.TradeStore
	reportStore storage.ReportStore
	equityStore storage.EquityCurveStore
	observer    Observer
	log         zerolog.Logger
}

// New creates a Runner and validates its configuration.
func New(opts Options) (*Runner, error) {
	if opts.Source == nil {
		return nil, ErrNoSource
	}
	if err := opts.Backtest.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Metrics.Validate(); err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		source:      opts.Source,
		bt:          opts.Backtest,
		mc:          opts.Metrics,
		workers:     workers,
		tradeStore:  opts.TradeStore,
		reportStore: opts.ReportStore,
		equityStore: opts.EquityCurveStore,
		observer:    opts.Observer,
		log:         opts.Logger.With().Str("component", "runner").Logger(),
	}, nil
}

// Batch describes what to run.
type Batch struct {
	Strategies    []strategy.Config
	Symbols       []string
	Pairs         [][2]string // explicit pairs for PAIRS strategies
	DiscoverPairs bool        // add cointegrated pairs found among Symbols
	Start, End    time.Time   // zero = open
}

// Job is one (strategy, symbols) backtest.
type Job struct {
	Strategy strategy.Config
	Symbols  []string // one symbol, or two for PAIRS
}

// Result is the outcome of a batch. Runs are in job order.
type Result struct {
	Runs       []*domain.RunResult
	Discovered []strategy.PairAnalysis
	Duration   time.Duration
}

// Succeeded returns the runs without errors.
func (r *Result) Succeeded() []*domain.RunResult {
	var out []*domain.RunResult
	for _, run := range r.Runs {
		if !run.Failed() {
			out = append(out, run)
		}
	}
	return out
}

// Failed returns the runs with errors.
func (r *Result) Failed() []*domain.RunResult {
	var out []*domain.RunResult
	for _, run := range r.Runs {
		if run.Failed() {
			out = append(out, run)
		}
	}
	return out
}

// Run executes the batch. It returns an error only for an invalid batch or a
// cancelled context; individual run failures are reported in Result.Runs.
func (r *Runner) Run(ctx context.Context, b Batch) (*Result, error) {
	started := time.Now()
	if len(b.Strategies) == 0 {
		return nil, ErrNoStrategies
	}
	for _, s := range b.Strategies {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}

	data := r.load(ctx, neededSymbols(b), b.Start, b.End)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jobs, discovered := r.plan(b, data)
	if len(jobs) == 0 {
		return nil, ErrNoJobs
	}
	r.log.Info().
		Int("jobs", len(jobs)).
		Int("symbols", len(data)).
		Int("workers", r.workers).
		Msg("batch started")

	runs := make([]*domain.RunResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, job := range jobs {
		g.Go(func() error {
			res := r.execute(gctx, job, data)
			runs[i] = res
			if r.observer != nil {
				r.observer.OnResult(res)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{Runs: runs, Discovered: discovered, Duration: time.Since(started)}
	status := "success"
	if err := ctx.Err(); err != nil {
		status = "cancelled"
	}
	observability.RecordBatch(status, result.Duration.Seconds(), time.Now().Unix())
	r.log.Info().
		Int("succeeded", len(result.Succeeded())).
		Int("failed", len(result.Failed())).
		Int64("duration_ms", result.Duration.Milliseconds()).
		Msg("batch finished")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// RunOne executes a single job outside a batch.
func (r *Runner) RunOne(ctx context.Context, job Job, start, end time.Time) (*domain.RunResult, error) {
	if err := job.Strategy.Validate(); err != nil {
		return nil, err
	}
	syms := make([]string, len(job.Symbols))
	for i, s := range job.Symbols {
		syms[i] = strings.ToUpper(s)
	}
	job.Symbols = syms
	data := r.load(ctx, job.Symbols, start, end)
	res := r.execute(ctx, job, data)
	if r.observer != nil {
		r.observer.OnResult(res)
	}
	return res, nil
}

type loaded struct {
	series *domain.PriceSeries
	err    error
}

// load fetches every symbol concurrently. Failures are kept per symbol.
func (r *Runner) load(ctx context.Context, symbols []string, start, end time.Time) map[string]loaded {
	out := make(map[string]loaded, len(symbols))
	results := make([]loaded, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, sym := range symbols {
		g.Go(func() error {
			t0 := time.Now()
			series, err := r.source.Bars(gctx, sym, start, end)
			if err != nil {
				r.log.Warn().Err(err).Str("symbol", sym).Msg("load failed")
				results[i] = loaded{err: fmt.Errorf("load %s: %w", sym, err)}
				return nil
			}
			observability.RecordBarsLoaded("runner", series.Len(), time.Since(t0).Seconds())
			results[i] = loaded{series: series}
			return nil
		})
	}
	_ = g.Wait()

	for i, sym := range symbols {
		out[sym] = results[i]
	}
	return out
}

// plan expands the batch into jobs in a deterministic order.
func (r *Runner) plan(b Batch, data map[string]loaded) ([]Job, []strategy.PairAnalysis) {
	symbols := upperAll(b.Symbols)
	var jobs []Job
	var discovered []strategy.PairAnalysis

	for _, s := range b.Strategies {
		if !s.NeedsPair() {
			for _, sym := range symbols {
				jobs = append(jobs, Job{Strategy: s, Symbols: []string{sym}})
			}
			continue
		}

		seen := make(map[[2]string]struct{})
		add := func(a, bb string) {
			key := [2]string{a, bb}
			if _, ok := seen[key]; ok {
				return
			}
			seen[key] = struct{}{}
			jobs = append(jobs, Job{Strategy: s, Symbols: []string{a, bb}})
		}
		for _, p := range b.Pairs {
			add(strings.ToUpper(p[0]), strings.ToUpper(p[1]))
		}
		if b.DiscoverPairs {
			found := r.discover(s, symbols, data)
			for _, pa := range found {
				add(pa.SymbolA, pa.SymbolB)
			}
			discovered = append(discovered, found...)
		}
		if len(seen) == 0 {
			r.log.Warn().Str("strategy", s.ID()).Msg("no pairs to trade")
		}
	}
	return jobs, discovered
}

func (r *Runner) discover(s strategy.Config, symbols []string, data map[string]loaded) []strategy.PairAnalysis {
	var series []*domain.PriceSeries
	for _, sym := range symbols {
		if d := data[sym]; d.err == nil && d.series != nil {
			series = append(series, d.series)
		}
	}
	cfg := strategy.DefaultPairsConfig()
	if s.Pairs != nil {
		cfg = *s.Pairs
	}
	found, err := strategy.FindPairs(series, cfg)
	if err != nil {
		r.log.Warn().Err(err).Str("strategy", s.ID()).Msg("pair discovery failed")
		return nil
	}
	r.log.Info().Str("strategy", s.ID()).Int("pairs", len(found)).Msg("pairs discovered")
	return found
}

// execute runs one job. Failures are recorded on the result.
func (r *Runner) execute(ctx context.Context, job Job, data map[string]loaded) *domain.RunResult {
	started := time.Now()
	observability.RunStarted()
	defer observability.RunFinished()

	res := &domain.RunResult{
		StrategyID: job.Strategy.ID(),
		Kind:       string(job.Strategy.Kind),
		Symbols:    job.Symbols,
	}
	res.Err = r.simulate(ctx, job, data, res)
	res.Duration = time.Since(started)

	ev := r.log.Info()
	status := "success"
	if res.Err != nil {
		status = "failed"
		observability.RecordRunFailure(domain.ErrorKind(res.Err))
		ev = r.log.Warn().Err(res.Err).Str("error_kind", domain.ErrorKind(res.Err))
	}
	observability.RecordRun(res.Kind, status, res.Duration.Seconds(), len(res.Trades))
	ev.Str("strategy", res.StrategyID).
		Str("symbol", res.Label()).
		Str("run_id", res.RunID).
		Int("trades", len(res.Trades)).
		Int64("duration_ms", res.Duration.Milliseconds()).
		Msg("run finished")
	return res
}

func (r *Runner) simulate(ctx context.Context, job Job, data map[string]loaded, res *domain.RunResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	series := make([]*domain.PriceSeries, len(job.Symbols))
	for i, sym := range job.Symbols {
		d, ok := data[sym]
		if !ok {
			return fmt.Errorf("load %s: %w", sym, marketdata.ErrNoData)
		}
		if d.err != nil {
			return d.err
		}
		series[i] = d.series
	}

	var secondary *domain.PriceSeries
	if job.Strategy.NeedsPair() {
		if len(series) != 2 {
			return &domain.ConfigurationError{Field: "pairs", Reason: "a pairs job needs exactly two symbols"}
		}
		a, b, err := domain.AlignPair(series[0], series[1])
		if err != nil {
			return err
		}
		series[0], series[1] = a, b
		secondary = b
	}

	sig, err := strategy.Generate(job.Strategy, series[0], secondary)
	if err != nil {
		return fmt.Errorf("generate signal: %w", err)
	}
	res.Windows = sig.Windows
	if job.Strategy.NeedsPair() {
		if err := tradableWindows(sig.Windows); err != nil {
			return err
		}
	}

	bt, err := backtest.Run(sig, series, r.bt)
	if err != nil {
		return fmt.Errorf("run backtest: %w", err)
	}

	res.RunID = idhash.ComputeRunID(idhash.RunKey{
		StrategyID:     res.StrategyID,
		Symbols:        job.Symbols,
		FirstBar:       series[0].Start().UnixMilli(),
		LastBar:        series[0].End().UnixMilli(),
		InitialCapital: r.bt.InitialCapital,
		CostRate:       r.bt.CostRate,
		Allocation:     r.bt.Allocation,
	})
	for i := range bt.Trades {
		t := &bt.Trades[i]
		t.RunID = res.RunID
		t.TradeID = idhash.ComputeTradeID(res.RunID, t.Leg, t.EntryIndex, t.ExitIndex)
	}
	res.Trades = bt.Trades
	res.Equity = bt.Equity

	report, err := metrics.Compute(metrics.Input{
		StrategyID:     res.StrategyID,
		Symbol:         res.Label(),
		InitialCapital: r.bt.InitialCapital,
		Equity:         bt.Equity,
		Trades:         bt.Trades,
		TotalCosts:     bt.TotalCosts,
		Exposure:       bt.Exposure,
		Benchmark:      series[0].Closes(),
	}, r.mc)
	if err != nil {
		return fmt.Errorf("compute metrics: %w", err)
	}
	report.RunID = res.RunID
	res.Report = report

	r.persist(ctx, res)
	return nil
}

// tradableWindows fails a pairs run whose every formation window was rejected.
func tradableWindows(windows []domain.FormationWindow) error {
	for _, w := range windows {
		if w.Tradable {
			return nil
		}
	}
	for _, w := range windows {
		if w.Err != nil {
			return w.Err
		}
	}
	return &domain.InsufficientDataError{What: "pairs formation", Need: 1, Have: 0}
}

// persist writes the run to the configured stores. Failures are logged and do
// not fail the run; a run already stored under the same ID is skipped.
func (r *Runner) persist(ctx context.Context, res *domain.RunResult) {
	logErr := func(store string, err error) {
		if err == nil {
			return
		}
		if errors.Is(err, storage.ErrDuplicateKey) {
			r.log.Debug().Str("store", store).Str("run_id", res.RunID).Msg("already persisted")
			return
		}
		r.log.Error().Err(err).Str("store", store).Str("run_id", res.RunID).Msg("persist failed")
	}

	if r.reportStore != nil && res.Report != nil {
		logErr("reports", r.reportStore.Insert(ctx, res.Report))
	}
	if r.tradeStore != nil && len(res.Trades) > 0 {
		trades := make([]*domain.Trade, len(res.Trades))
		for i := range res.Trades {
			trades[i] = &res.Trades[i]
		}
		logErr("trades", r.tradeStore.InsertBulk(ctx, trades))
	}
	if r.equityStore != nil && len(res.Equity) > 0 {
		logErr("equity_curves", r.equityStore.InsertBulk(ctx, res.RunID, res.Equity))
	}
}

func neededSymbols(b Batch) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.ToUpper(s)
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, s := range b.Symbols {
		add(s)
	}
	for _, p := range b.Pairs {
		add(p[0])
		add(p[1])
	}
	return out
}

func upperAll(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(s)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
