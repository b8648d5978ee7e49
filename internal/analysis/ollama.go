package analysis

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"strategy-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultOllamaURL     = "http://localhost:11434"
	DefaultOllamaModel   = "llama3"
	DefaultOllamaTimeout = 2 * time.Minute
)

// Generation options sent with every request.
const (
	temperature = 0.7
	topP        = 0.9
	maxTokens   = 1000
)

// Ollama submits prompts to an Ollama server.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
	logger  zerolog.Logger

	mu       sync.Mutex
	resolved string // model confirmed by /api/tags
}

var _ Analyzer = (*Ollama)(nil)

// OllamaOption configures Ollama.
type OllamaOption func(*Ollama)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) OllamaOption {
	return func(o *Ollama) {
		o.client = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) OllamaOption {
	return func(o *Ollama) {
		o.client.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) OllamaOption {
	return func(o *Ollama) {
		o.logger = l
	}
}

// NewOllama creates an Ollama analyzer. Empty baseURL or model use the defaults.
func NewOllama(baseURL, model string, opts ...OllamaOption) *Ollama {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	o := &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: DefaultOllamaTimeout},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Name returns "ollama".
func (o *Ollama) Name() string { return "ollama" }

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Model returns the model requests use. It probes /api/tags once; when the
// configured model is not installed the first available one is used. A failed
// probe is not cached and the configured model is used for this call.
func (o *Ollama) Model(ctx context.Context) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.resolved != "" {
		return o.resolved
	}

	names, err := o.tags(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Str("url", o.baseURL).Msg("ollama model probe failed")
		return o.model
	}
	o.resolved = o.model
	if len(names) > 0 && !contains(names, o.model) {
		o.resolved = names[0]
		o.logger.Warn().
			Str("configured", o.model).
			Str("using", o.resolved).
			Msg("ollama model not found, using first available model")
	}
	return o.resolved
}

func (o *Ollama) tags(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var tr tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	names := make([]string, 0, len(tr.Models))
	for _, m := range tr.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Submit posts the prompt to /api/generate and returns the full answer.
func (o *Ollama) Submit(ctx context.Context, req Request) (string, error) {
	return o.generate(ctx, req, nil)
}

// Stream is Submit with streaming enabled: answer chunks are written to w as
// they arrive. The full answer is also returned.
func (o *Ollama) Stream(ctx context.Context, req Request, w io.Writer) (string, error) {
	return o.generate(ctx, req, w)
}

func (o *Ollama) generate(ctx context.Context, req Request, w io.Writer) (answer string, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		observability.RecordAnalysis(o.Name(), status, time.Since(start).Seconds())
	}()

	prompt, err := BuildPrompt(req.Summary, req.Question)
	if err != nil {
		return "", err
	}
	model := o.Model(ctx)

	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: w != nil,
		Options: generateOptions{
			Temperature: temperature,
			TopP:        topP,
			NumPredict:  maxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama generate: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	o.logger.Debug().Str("model", model).Bool("stream", w != nil).Msg("ollama generate")

	if w == nil {
		var gr generateResponse
		if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if gr.Error != "" {
			return "", fmt.Errorf("ollama generate: %s", gr.Error)
		}
		return strings.TrimSpace(gr.Response), nil
	}

	// Streaming responses are newline-delimited JSON objects.
	var sb strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var gr generateResponse
		if err := json.Unmarshal(line, &gr); err != nil {
			continue
		}
		if gr.Error != "" {
			return "", fmt.Errorf("ollama generate: %s", gr.Error)
		}
		if gr.Response != "" {
			sb.WriteString(gr.Response)
			if _, err := io.WriteString(w, gr.Response); err != nil {
				return "", fmt.Errorf("write chunk: %w", err)
			}
		}
		if gr.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
