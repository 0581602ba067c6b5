package embedding

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	gwerrors "github.com/sentinel-gateway/sentinel/pkg/errors"
)

// HuggingFace calls the Hugging Face Inference API feature-extraction
// endpoint. One attempt per call with a total timeout; the orchestrator
// degrades to exact-only matching when this client fails.
type HuggingFace struct {
	client    *http.Client
	apiURL    string
	apiToken  string
	model     string
	dimension int
}

// HuggingFaceConfig holds configuration for the Hugging Face embedder.
type HuggingFaceConfig struct {
	APIToken  string
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// DefaultHuggingFaceConfig returns sensible defaults.
func DefaultHuggingFaceConfig() HuggingFaceConfig {
	return HuggingFaceConfig{
		BaseURL:   "https://api-inference.huggingface.co/models",
		Model:     "sentence-transformers/all-MiniLM-L6-v2",
		Dimension: 384,
		Timeout:   10 * time.Second,
	}
}

// NewHuggingFace creates a Hugging Face embedder.
func NewHuggingFace(cfg HuggingFaceConfig) (*HuggingFace, error) {
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("huggingface api token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api-inference.huggingface.co/models"
	}
	if cfg.Model == "" {
		cfg.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 384
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &HuggingFace{
		client:    &http.Client{Timeout: cfg.Timeout},
		apiURL:    fmt.Sprintf("%s/%s", cfg.BaseURL, cfg.Model),
		apiToken:  cfg.APIToken,
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

// Embed generates an embedding for a single text.
func (h *HuggingFace) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{"inputs": text})
	if err != nil {
		return nil, gwerrors.NewEmbeddingUnavailable("marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.NewEmbeddingUnavailable("create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.apiToken)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, gwerrors.NewEmbeddingUnavailable("embedding request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, gwerrors.NewEmbeddingUnavailable(
			fmt.Sprintf("embedding failed: status=%d body=%s", resp.StatusCode, raw), nil)
	}

	vec, err := decodeVector(resp.Body)
	if err != nil {
		return nil, gwerrors.NewEmbeddingUnavailable("decode response", err)
	}
	if err := h.validate(vec); err != nil {
		return nil, gwerrors.NewEmbeddingUnavailable("invalid embedding", err)
	}
	return vec, nil
}

// Dimension returns the expected vector length.
func (h *HuggingFace) Dimension() int {
	return h.dimension
}

// Model returns the embedding model name.
func (h *HuggingFace) Model() string {
	return h.model
}

// decodeVector accepts both response shapes the inference API produces:
// a bare vector and a one-per-input list of vectors.
func decodeVector(r io.Reader) ([]float32, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}

	var batched [][]float32
	if err := json.Unmarshal(raw, &batched); err == nil && len(batched) > 0 {
		return batched[0], nil
	}

	var single []float32
	if err := json.Unmarshal(raw, &single); err == nil && len(single) > 0 {
		return single, nil
	}
	return nil, fmt.Errorf("unexpected response shape")
}

func (h *HuggingFace) validate(vec []float32) error {
	if len(vec) != h.dimension {
		return fmt.Errorf("dimension mismatch: got %d, want %d", len(vec), h.dimension)
	}
	var norm float64
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite component")
		}
		norm += f * f
	}
	// Cosine similarity is undefined for the zero vector.
	if norm == 0 {
		return fmt.Errorf("zero-norm vector")
	}
	return nil
}
