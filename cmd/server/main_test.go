package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"strategy-lab/internal/app"
	"strategy-lab/internal/config"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/marketdata"
	"strategy-lab/internal/reporting"
	"strategy-lab/internal/stream"
)

func writeCSV(t *testing.T, dir, symbol string, n int) {
	t.Helper()
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		c := 100 + 5*math.Sin(float64(i)/5)
		bars[i] = domain.Bar{Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	f, err := os.Create(filepath.Join(dir, symbol+".csv"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := marketdata.WriteCSV(f, domain.NewPriceSeries(symbol, bars)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("CLICKHOUSE_DSN", "")
	t.Setenv("DATA_DIR", "")

	dir := t.TempDir()
	writeCSV(t, dir, "AAA", 120)
	writeCSV(t, dir, "BBB", 120)

	cfg, err := config.Parse([]byte("symbols: [AAA, BBB]\nstrategies:\n  - kind: MEAN_REVERSION\ndata:\n  source: csv\n  dir: " + dir + "\n"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	ctx := context.Background()
	deps, err := app.Open(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	hub := stream.NewHub(nil, zerolog.Nop())
	r, err := app.NewRunner(cfg, deps, hub, zerolog.Nop())
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		runner:    r,
		hub:       hub,
		analyzer:  app.NewAnalyzer(cfg.Analysis, zerolog.Nop()),
		generator: reporting.NewGenerator(deps.ReportStore),
		logger:    zerolog.Nop(),
		baseCtx:   ctx,
		started:   time.Now().UTC(),
	}
	t.Cleanup(func() {
		s.wg.Wait()
		hub.Close()
		deps.Close()
	})
	return s, s.routes()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func waitIdle(t *testing.T, s *Server, batches int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		s.mu.Lock()
		done := !s.running && s.batches >= batches
		s.mu.Unlock()
		if done {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("batch did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServer_Health(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestServer_SummaryBeforeRun(t *testing.T) {
	_, h := newTestServer(t)
	if rec := do(h, http.MethodGet, "/summary", ""); rec.Code != http.StatusNotFound {
		t.Errorf("summary = %d, want 404", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/analyze", ""); rec.Code != http.StatusNotFound {
		t.Errorf("analyze = %d, want 404", rec.Code)
	}
}

func TestServer_RunInvalid(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(h, http.MethodPost, "/run", `{"strategies":[{"kind":"MEAN_REVERSION","lookback_window":0}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("run = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	rec = do(h, http.MethodPost, "/run", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("run = %d, want 400", rec.Code)
	}
}

func TestServer_RunSummaryAnalyze(t *testing.T) {
	s, h := newTestServer(t)

	rec := do(h, http.MethodPost, "/run", `{"symbols":["aaa"],"strategies":[{"kind":"MEAN_REVERSION","lookback_window":10}]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("run = %d: %s", rec.Code, rec.Body.String())
	}
	waitIdle(t, s, 1)

	rec = do(h, http.MethodGet, "/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("summary = %d: %s", rec.Code, rec.Body.String())
	}
	var summary reporting.Summary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Runs != 1 || len(summary.Strategies) != 1 {
		t.Errorf("summary runs/strategies = %d/%d", summary.Runs, len(summary.Strategies))
	}
	if summary.Strategies[0].StrategyID == "" || summary.Strategies[0].BestSymbol != "AAA" {
		t.Errorf("strategy summary = %+v", summary.Strategies[0])
	}

	req := httptest.NewRequest(http.MethodGet, "/summary?source=store", nil)
	req.Header.Set("Accept", "text/markdown")
	mrec := httptest.NewRecorder()
	h.ServeHTTP(mrec, req)
	if mrec.Code != http.StatusOK || !strings.Contains(mrec.Body.String(), "# Strategy Backtest Summary") {
		t.Errorf("markdown summary = %d", mrec.Code)
	}

	rec = do(h, http.MethodPost, "/analyze", `{"question":"why?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze = %d: %s", rec.Code, rec.Body.String())
	}
	var ans map[string]string
	json.NewDecoder(rec.Body).Decode(&ans)
	if ans["analyzer"] != "noop" || ans["answer"] == "" {
		t.Errorf("analyze = %v", ans)
	}

	rec = do(h, http.MethodGet, "/status", "")
	var st StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Batches != 1 || st.Running {
		t.Errorf("status = %+v", st)
	}
}

func TestServer_RunConflict(t *testing.T) {
	s, h := newTestServer(t)
	if !s.tryStart() {
		t.Fatal("tryStart failed")
	}
	if rec := do(h, http.MethodPost, "/run", ""); rec.Code != http.StatusConflict {
		t.Errorf("run = %d, want 409", rec.Code)
	}
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func TestServer_InvalidateCache(t *testing.T) {
	_, h := newTestServer(t)
	if rec := do(h, http.MethodPost, "/cache/invalidate?symbol=aaa", ""); rec.Code != http.StatusNoContent {
		t.Errorf("invalidate symbol = %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/cache/invalidate", ""); rec.Code != http.StatusNoContent {
		t.Errorf("invalidate all = %d", rec.Code)
	}
}
