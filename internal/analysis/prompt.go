package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"strategy-lab/internal/reporting"
)

// BuildPrompt renders the analyst prompt: the summary as indented JSON, the
// question, and the areas to cover. Per-symbol reports are left out; the
// averages, top performers and failures are kept.
func BuildPrompt(s *reporting.Summary, question string) (string, error) {
	if s == nil {
		return "", ErrNoSummary
	}
	if strings.TrimSpace(question) == "" {
		question = DefaultQuestion
	}

	view := *s
	view.Strategies = make([]reporting.StrategySummary, len(s.Strategies))
	for i, ss := range s.Strategies {
		ss.Reports = nil
		view.Strategies[i] = ss
	}

	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("You are a financial analyst specializing in algorithmic trading. ")
	sb.WriteString("Analyze the following trading results and answer the user's question.\n\n")
	sb.WriteString("TRADING RESULTS:\n")
	sb.Write(data)
	sb.WriteString("\n\nUSER QUESTION: ")
	sb.WriteString(question)
	sb.WriteString("\n\nPlease provide a detailed, professional analysis based on the data above. Focus on:\n")
	sb.WriteString("- Key performance metrics\n")
	sb.WriteString("- Risk analysis\n")
	sb.WriteString("- Strategy comparisons\n")
	sb.WriteString("- Actionable insights\n\n")
	sb.WriteString("ANSWER:")
	return sb.String(), nil
}
