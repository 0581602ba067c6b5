package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	gwerrors "github.com/sentinel-gateway/sentinel/pkg/errors"
)

const (
	// GroqName is the identifier for this provider.
	GroqName = "groq"

	// GroqDefaultBaseURL is the default Groq API endpoint.
	GroqDefaultBaseURL = "https://api.groq.com/openai/v1"

	// GroqDefaultModel is used when the request leaves the model empty.
	GroqDefaultModel = "llama-3.1-8b-instant"
)

// GroqConfig holds configuration for the Groq generator.
type GroqConfig struct {
	APIKey string
	// BaseURL overrides the Groq endpoint, mainly for tests.
	BaseURL string
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// MaxAttempts bounds the retry ladder (total attempts, not retries).
	MaxAttempts int
	// InitialBackoff is the first retry delay; it doubles per attempt.
	InitialBackoff time.Duration
}

// DefaultGroqConfig returns sensible defaults.
func DefaultGroqConfig() GroqConfig {
	return GroqConfig{
		BaseURL:        GroqDefaultBaseURL,
		Timeout:        30 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
	}
}

// Groq calls the Groq chat-completions API (OpenAI wire format).
type Groq struct {
	client         *http.Client
	apiKey         string
	baseURL        string
	maxAttempts    int
	initialBackoff time.Duration
	logger         *slog.Logger
}

// NewGroq creates a Groq generator.
func NewGroq(cfg GroqConfig, logger *slog.Logger) (*Groq, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("groq api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = GroqDefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Groq{
		client:         &http.Client{Timeout: cfg.Timeout},
		apiKey:         cfg.APIKey,
		baseURL:        cfg.BaseURL,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		logger:         logger,
	}, nil
}

// Name returns the provider identifier.
func (g *Groq) Name() string {
	return GroqName
}

// Call performs a generation with bounded retry and exponential backoff.
// Transport faults, timeouts, upstream 429 and 5xx are retried; auth
// failures, other 4xx, and malformed responses are terminal immediately.
func (g *Groq) Call(ctx context.Context, req *Request) (*Result, error) {
	if req.Model == "" {
		req.Model = GroqDefaultModel
	}

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := g.initialBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, gwerrors.NewGeneratorUnavailable("request cancelled", ctx.Err())
			case <-time.After(backoff):
			}
		}

		result, err := g.callOnce(ctx, req)
		if err == nil {
			result.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
			return result, nil
		}

		lastErr = err
		var ue *upstreamError
		if errors.As(err, &ue) && !ue.retryable {
			return nil, gwerrors.NewGeneratorUnavailable(ue.message, err)
		}
		g.logger.Warn("groq attempt failed",
			"attempt", attempt+1,
			"max_attempts", g.maxAttempts,
			"error", err,
		)
	}

	return nil, gwerrors.NewGeneratorUnavailable(
		fmt.Sprintf("groq failed after %d attempts", g.maxAttempts), lastErr)
}

func (g *Groq) callOnce(ctx context.Context, req *Request) (*Result, error) {
	payload := chatRequest{
		Model:       req.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &upstreamError{message: "marshal request", retryable: false, cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &upstreamError{message: "create request", retryable: false, cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		// Connect errors and per-attempt timeouts are transient.
		return nil, &upstreamError{message: "transport error", retryable: true, cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus(resp.StatusCode, string(raw))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &upstreamError{message: "decode response", retryable: false, cause: err}
	}
	if len(parsed.Choices) == 0 {
		return nil, &upstreamError{message: "malformed response: missing choices", retryable: false}
	}

	in := parsed.Usage.PromptTokens
	out := parsed.Usage.CompletionTokens
	total := parsed.Usage.TotalTokens
	if total == 0 {
		total = in + out
	}

	return &Result{
		Response:     parsed.Choices[0].Message.Content,
		InputTokens:  in,
		OutputTokens: out,
		TokensUsed:   total,
		CostUSD:      Cost(req.Model, in, out),
		Provider:     GroqName,
		Model:        req.Model,
	}, nil
}

func classifyStatus(status int, body string) *upstreamError {
	switch {
	case status == http.StatusUnauthorized:
		return &upstreamError{message: "authentication failed (401)", retryable: false}
	case status == http.StatusTooManyRequests:
		return &upstreamError{message: "upstream rate limited (429)", retryable: true}
	case status >= 500:
		return &upstreamError{message: fmt.Sprintf("upstream %d: %s", status, body), retryable: true}
	default:
		return &upstreamError{message: fmt.Sprintf("upstream %d: %s", status, body), retryable: false}
	}
}

// upstreamError carries the retry classification of a single attempt.
type upstreamError struct {
	message   string
	retryable bool
	cause     error
}

func (e *upstreamError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *upstreamError) Unwrap() error { return e.cause }

// Groq wire types (OpenAI-compatible).

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
