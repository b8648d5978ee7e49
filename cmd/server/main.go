// Package main provides the HTTP service:
// - Batches (on demand via POST /run, or scheduled with --interval)
// - Summary of the last batch (GET /summary) or of stored reports
// - Run outcome stream (GET /ws), Prometheus metrics, health and status
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"strategy-lab/internal/analysis"
	"strategy-lab/internal/app"
	"strategy-lab/internal/config"
	"strategy-lab/internal/logger"
	"strategy-lab/internal/observability"
	"strategy-lab/internal/reporting"
	"strategy-lab/internal/runner"
	"strategy-lab/internal/stream"
)

// Server holds all components of the service.
type Server struct {
	// Configuration
	cfg      *config.Config
	interval time.Duration

	// Components
	deps      *app.Deps
	runner    *runner.Runner
	hub       *stream.Hub
	analyzer  analysis.Analyzer
	generator *reporting.Generator
	logger    zerolog.Logger

	// State
	baseCtx     context.Context
	mu          sync.Mutex
	started     time.Time
	running     bool
	lastRun     time.Time
	lastSummary *reporting.Summary
	batches     int
	wg          sync.WaitGroup
}

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	interval := flag.Duration("interval", 0, "Run the configured batch on this interval (0 = on demand only)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
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
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	deps, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("wire components")
	}
	defer deps.Close()

	hub := stream.NewHub(nil, log.With().Str("component", "stream").Logger())
	r, err := app.NewRunner(cfg, deps, hub, log.With().Str("component", "runner").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("create runner")
	}

	s := &Server{
		cfg:       cfg,
		interval:  *interval,
		deps:      deps,
		runner:    r,
		hub:       hub,
		analyzer:  app.NewAnalyzer(cfg.Analysis, log),
		generator: reporting.NewGenerator(deps.ReportStore),
		logger:    log,
		started:   time.Now().UTC(),
	}

	if err := s.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if s.interval > 0 {
		s.wg.Add(1)
		go s.runScheduler(ctx)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.hub.Close()
	err := srv.Shutdown(shutdownCtx)
	s.wg.Wait()
	return err
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("GET /metrics", observability.Handler())

	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /summary", s.handleSummary)
	mux.HandleFunc("POST /run", s.handleRun)
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("POST /cache/invalidate", s.handleInvalidate)
	mux.Handle("GET /ws", s.hub)
	return mux
}

// runScheduler runs the configured batch every interval.
func (s *Server) runScheduler(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b, err := app.NewBatch(s.cfg)
			if err != nil {
				s.logger.Error().Err(err).Msg("scheduled batch")
				continue
			}
			if !s.tryStart() {
				s.logger.Warn().Msg("batch already running, skipping scheduled run")
				continue
			}
			s.runBatch(ctx, b)
		}
	}
}

// tryStart marks a batch as running. Returns false if one already is.
func (s *Server) tryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

// runBatch executes b and records its summary. The caller must hold the
// running flag via tryStart.
func (s *Server) runBatch(ctx context.Context, b runner.Batch) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.hub.BatchStarted(len(b.Strategies), len(b.Symbols))
	result, err := s.runner.Run(ctx, b)
	if err != nil {
		s.logger.Error().Err(err).Msg("batch failed")
		return
	}
	s.hub.BatchFinished(len(result.Succeeded()), len(result.Failed()), result.Duration)

	summary := s.generator.Summarize(result.Runs)
	s.mu.Lock()
	s.lastSummary = summary
	s.lastRun = time.Now().UTC()
	s.batches++
	s.mu.Unlock()
}

// RunRequest overrides parts of the configured batch.
type RunRequest struct {
	Symbols    []string                `json:"symbols,omitempty"`
	Pairs      []config.PairConfig     `json:"pairs,omitempty"`
	Strategies []config.StrategyConfig `json:"strategies,omitempty"`
	Start      string                  `json:"start,omitempty"`
	End        string                  `json:"end,omitempty"`
}

// apply returns a copy of cfg with the request's overrides.
func (req RunRequest) apply(cfg *config.Config) (*config.Config, error) {
	c := *cfg
	if len(req.Symbols) > 0 {
		c.Symbols = req.Symbols
		c.Pairs = nil
	}
	if len(req.Pairs) > 0 {
		c.Pairs = req.Pairs
	}
	if len(req.Strategies) > 0 {
		c.Strategies = req.Strategies
	}
	if req.Start != "" {
		c.Data.Start = req.Start
	}
	if req.End != "" {
		c.Data.End = req.End
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// handleRun starts a batch in the background and returns 202.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}
	}
	cfg, err := req.apply(s.cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := app.NewBatch(cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.tryStart() {
		writeError(w, http.StatusConflict, "a batch is already running")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Bound to the server, not the request.
		s.runBatch(s.baseCtx, b)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":     "started",
		"strategies": len(b.Strategies),
		"symbols":    b.Symbols,
		"stream":     "/ws",
	})
}

// handleSummary returns the last batch summary, or a summary of stored reports.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	summary := s.lastSummary
	s.mu.Unlock()

	if summary == nil || r.URL.Query().Get("source") == "store" {
		stored, err := s.generator.FromStore(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if stored.Runs == 0 {
			writeError(w, http.StatusNotFound, "no results yet")
			return
		}
		summary = stored
	}

	if strings.Contains(r.Header.Get("Accept"), "text/markdown") {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(reporting.RenderMarkdown(summary)))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleAnalyze asks the analyzer about the last summary.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}
	}

	s.mu.Lock()
	summary := s.lastSummary
	s.mu.Unlock()
	if summary == nil {
		writeError(w, http.StatusNotFound, "no results yet")
		return
	}

	answer, err := s.analyzer.Submit(r.Context(), analysis.Request{Summary: summary, Question: req.Question})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"analyzer": s.analyzer.Name(), "answer": answer})
}

// handleInvalidate drops cached bars of ?symbol=, or all of them.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cache == nil {
		writeError(w, http.StatusNotFound, "cache disabled")
		return
	}
	var err error
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if symbol != "" {
		err = s.deps.Cache.Invalidate(r.Context(), symbol)
	} else {
		err = s.deps.Cache.InvalidateAll(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status        string    `json:"status"`
	Uptime        string    `json:"uptime"`
	Started       time.Time `json:"started"`
	LastRun       time.Time `json:"last_run,omitempty"`
	Batches       int       `json:"batches"`
	Running       bool      `json:"running"`
	StreamClients int       `json:"stream_clients"`
	Analyzer      string    `json:"analyzer"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:        "running",
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		Started:       s.started,
		LastRun:       s.lastRun,
		Batches:       s.batches,
		Running:       s.running,
		StreamClients: s.hub.Clients(),
		Analyzer:      s.analyzer.Name(),
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
