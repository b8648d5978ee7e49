// Package analysis hands batch summaries to a natural-language analyst.
//
// Nothing in the backtest core depends on this package; a batch is complete
// without it.
package analysis

import (
	"context"
	"errors"
	"strings"

	"strategy-lab/internal/reporting"
)

// ErrNoSummary is returned when a request carries no summary.
var ErrNoSummary = errors.New("no summary to analyze")

// Request is one question about a batch summary.
type Request struct {
	Summary  *reporting.Summary
	Question string
}

// Analyzer answers questions about a summary.
type Analyzer interface {
	// Name identifies the analyzer in logs and metrics.
	Name() string
	// Submit returns the analyst's answer.
	Submit(ctx context.Context, req Request) (string, error)
}

// DefaultQuestion is asked when the caller supplies none.
const DefaultQuestion = "Which strategy performed best and why, and what are the main risks in these results?"

// SuggestedQuestions are offered in interactive mode.
var SuggestedQuestions = []string{
	"Which strategy performed best and why?",
	"What are the main risks in these results?",
	"How do the strategies compare in terms of risk-adjusted returns?",
	"Which stocks performed best across all strategies?",
	"What insights can we draw about market conditions?",
	"How can we improve these strategies?",
}

// Noop answers with the summary's precomputed insights.
type Noop struct{}

var _ Analyzer = Noop{}

// Name returns "noop".
func (Noop) Name() string { return "noop" }

// Submit returns a fixed note followed by the quick insights.
func (Noop) Submit(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Summary == nil {
		return "", ErrNoSummary
	}

	var sb strings.Builder
	sb.WriteString("Natural-language analysis is disabled.")
	if len(req.Summary.Insights) == 0 {
		sb.WriteString(" No insights available.")
		return sb.String(), nil
	}
	sb.WriteString(" Quick insights:\n")
	for _, in := range req.Summary.Insights {
		sb.WriteString("- ")
		sb.WriteString(in)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
