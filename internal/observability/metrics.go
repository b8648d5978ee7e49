// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Backtest metrics
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	RunFailures     *prometheus.CounterVec
	TradesSimulated prometheus.Counter
	ActiveRuns      prometheus.Gauge

	// Batch metrics
	BatchesTotal  *prometheus.CounterVec
	BatchDuration prometheus.Histogram

	// Market data metrics
	BarsLoaded         *prometheus.CounterVec
	SourceLatency      *prometheus.HistogramVec
	CacheRequests      *prometheus.CounterVec
	CacheInvalidations prometheus.Counter

	// Analysis metrics
	AnalysisRequests *prometheus.CounterVec
	AnalysisLatency  prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Stream metrics
	StreamClients prometheus.Gauge

	// Health metrics
	LastSuccessfulBatch prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a new Metrics instance registered on reg.
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "strategy_lab"
	}
	f := promauto.With(reg)

	return &Metrics{
		// Backtest metrics
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Total number of backtest runs by strategy kind and status",
		}, []string{"kind", "status"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "run_duration_seconds",
			Help:      "Duration of a single backtest run",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"kind"}),
		RunFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "run_failures_total",
			Help:      "Failed runs by error kind",
		}, []string{"error_kind"}),
		TradesSimulated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "trades_simulated_total",
			Help:      "Total number of simulated trades",
		}),
		ActiveRuns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "active_runs",
			Help:      "Runs currently executing",
		}),

		// Batch metrics
		BatchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Total number of batch runs by status",
		}, []string{"status"}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Batch duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),

		// Market data metrics
		BarsLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "bars_loaded_total",
			Help:      "Bars loaded by source",
		}, []string{"source"}),
		SourceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "source_latency_seconds",
			Help:      "Latency of data source requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		CacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "cache_requests_total",
			Help:      "Price cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		CacheInvalidations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "cache_invalidations_total",
			Help:      "Explicit price cache invalidations",
		}),

		// Analysis metrics
		AnalysisRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "requests_total",
			Help:      "Analysis requests by analyzer and status",
		}, []string{"analyzer", "status"}),
		AnalysisLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "latency_seconds",
			Help:      "Analysis request latency",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Stream metrics
		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected websocket clients",
		}),

		// Health metrics
		LastSuccessfulBatch: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_batch_timestamp",
			Help:      "Unix timestamp of last successful batch",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRun records a finished backtest run.
func RecordRun(kind, status string, seconds float64, trades int) {
	DefaultMetrics.RunsTotal.WithLabelValues(kind, status).Inc()
	DefaultMetrics.RunDuration.WithLabelValues(kind).Observe(seconds)
	DefaultMetrics.TradesSimulated.Add(float64(trades))
}

// RecordRunFailure counts a failed run by error kind.
func RecordRunFailure(errorKind string) {
	DefaultMetrics.RunFailures.WithLabelValues(errorKind).Inc()
}

// RunStarted and RunFinished track the active run gauge.
func RunStarted() {
	DefaultMetrics.ActiveRuns.Inc()
}

// RunFinished decrements the active run gauge.
func RunFinished() {
	DefaultMetrics.ActiveRuns.Dec()
}

// RecordBatch records a batch and, on success, its timestamp.
func RecordBatch(status string, seconds float64, unixNow int64) {
	DefaultMetrics.BatchesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.BatchDuration.Observe(seconds)
	if status == "success" {
		DefaultMetrics.LastSuccessfulBatch.Set(float64(unixNow))
	}
}

// RecordBarsLoaded records bars fetched from a source.
func RecordBarsLoaded(source string, bars int, seconds float64) {
	DefaultMetrics.BarsLoaded.WithLabelValues(source).Add(float64(bars))
	DefaultMetrics.SourceLatency.WithLabelValues(source).Observe(seconds)
}

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() {
	DefaultMetrics.CacheRequests.WithLabelValues("hit").Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	DefaultMetrics.CacheRequests.WithLabelValues("miss").Inc()
}

// RecordCacheError increments the cache error counter.
func RecordCacheError() {
	DefaultMetrics.CacheRequests.WithLabelValues("error").Inc()
}

// RecordCacheInvalidation increments the invalidation counter.
func RecordCacheInvalidation() {
	DefaultMetrics.CacheInvalidations.Inc()
}

// RecordAnalysis records an analysis request.
func RecordAnalysis(analyzer, status string, seconds float64) {
	DefaultMetrics.AnalysisRequests.WithLabelValues(analyzer, status).Inc()
	DefaultMetrics.AnalysisLatency.Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// SetStreamClients sets the websocket client gauge.
func SetStreamClients(n int) {
	DefaultMetrics.StreamClients.Set(float64(n))
}
