// Package main runs the configured batch end to end:
// load bars → strategies × symbols → backtests → metrics → summary files → optional analysis
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"strategy-lab/internal/analysis"
	"strategy-lab/internal/app"
	"strategy-lab/internal/config"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/logger"
	"strategy-lab/internal/reporting"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "YAML config file")
	outputDir := flag.String("output-dir", "", "Output directory (overrides output.dir)")
	analyze := flag.Bool("analyze", false, "Ask the configured analyzer about the results")
	question := flag.String("question", "", "Question for the analyzer (implies --analyze)")
	interactive := flag.Bool("interactive", false, "Ask questions from stdin after the batch")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("cancelling pipeline")
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
	batch, err := app.NewBatch(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build batch")
	}

	fmt.Println("=== Strategy Batch ===")
	result, err := r.Run(ctx, batch)
	if err != nil {
		log.Fatal().Err(err).Msg("batch")
	}

	fmt.Printf("Batch completed in %v:\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("  Runs: %d\n", len(result.Runs))
	fmt.Printf("  Succeeded: %d\n", len(result.Succeeded()))
	fmt.Printf("  Failed: %d\n", len(result.Failed()))
	for _, pa := range result.Discovered {
		fmt.Printf("  Discovered pair: %s/%s (adf %.3f, hedge %.4f)\n", pa.SymbolA, pa.SymbolB, pa.ADFStatistic, pa.HedgeRatio)
	}

	summary := reporting.NewGenerator(deps.ReportStore).Summarize(result.Runs)

	files, err := writeOutputs(cfg.Output.Dir, summary, result.Runs)
	if err != nil {
		log.Fatal().Err(err).Msg("write outputs")
	}
	fmt.Println("\nOutputs:")
	for _, f := range files {
		fmt.Printf("  - %s\n", f)
	}

	if len(summary.Insights) > 0 {
		fmt.Println("\nQuick insights:")
		for _, in := range summary.Insights {
			fmt.Printf("  - %s\n", in)
		}
	}

	if *analyze || *question != "" || *interactive {
		analyzer := app.NewAnalyzer(cfg.Analysis, log)
		if *analyze || *question != "" {
			ask(ctx, analyzer, summary, *question, os.Stdout, log)
		}
		if *interactive {
			interactiveLoop(ctx, analyzer, summary, os.Stdin, os.Stdout, log)
		}
	}
}

// writeOutputs writes the summary in markdown, CSV and JSON, plus per-run CSV.
func writeOutputs(dir string, s *reporting.Summary, runs []*domain.RunResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var reports []*domain.PerformanceReport
	for _, run := range runs {
		if run.Report != nil {
			reports = append(reports, run.Report)
		}
	}
	summaryJSON, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}

	outputs := []struct {
		name string
		data []byte
	}{
		{"SUMMARY.md", []byte(reporting.RenderMarkdown(s))},
		{"strategy_summary.csv", []byte(reporting.RenderSummaryCSV(s))},
		{"performance_reports.csv", []byte(reporting.RenderCSV(reports))},
		{"summary.json", summaryJSON},
	}

	var written []string
	for _, o := range outputs {
		path := filepath.Join(dir, o.name)
		if err := os.WriteFile(path, o.data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", o.name, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// streamer is implemented by analyzers that can write the answer as it arrives.
type streamer interface {
	Stream(ctx context.Context, req analysis.Request, w io.Writer) (string, error)
}

func ask(ctx context.Context, a analysis.Analyzer, s *reporting.Summary, question string, out io.Writer, log zerolog.Logger) {
	if question == "" {
		question = analysis.DefaultQuestion
	}
	req := analysis.Request{Summary: s, Question: question}
	fmt.Fprintf(out, "\n=== Analysis (%s) ===\n", a.Name())
	fmt.Fprintf(out, "Q: %s\n\n", question)

	if st, ok := a.(streamer); ok {
		if _, err := st.Stream(ctx, req, out); err != nil {
			log.Error().Err(err).Str("analyzer", a.Name()).Msg("analysis failed")
		}
		fmt.Fprintln(out)
		return
	}
	answer, err := a.Submit(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("analyzer", a.Name()).Msg("analysis failed")
		return
	}
	fmt.Fprintln(out, answer)
}

func interactiveLoop(ctx context.Context, a analysis.Analyzer, s *reporting.Summary, in io.Reader, out io.Writer, log zerolog.Logger) {
	fmt.Fprintf(out, "\nInteractive analysis (%s). Type 'help', 'insights' or 'quit'.\n", a.Name())
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() || ctx.Err() != nil {
			return
		}
		q := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(q) {
		case "":
			fmt.Fprintln(out, "Please enter a question or type 'help' for suggestions.")
		case "quit", "exit":
			return
		case "help":
			fmt.Fprintln(out, "Suggested questions:")
			for _, sq := range analysis.SuggestedQuestions {
				fmt.Fprintf(out, "  - %s\n", sq)
			}
		case "insights":
			for _, insight := range s.Insights {
				fmt.Fprintf(out, "  - %s\n", insight)
			}
		default:
			ask(ctx, a, s, q, out, log)
		}
	}
}
