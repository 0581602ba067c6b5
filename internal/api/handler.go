// Package api implements the HTTP handlers for the gateway surface: the
// query route, health and stats, and the admin/debug routes.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sentinel-gateway/sentinel/internal/auth"
	"github.com/sentinel-gateway/sentinel/internal/cache"
	"github.com/sentinel-gateway/sentinel/internal/embedding"
	"github.com/sentinel-gateway/sentinel/internal/httputil"
	"github.com/sentinel-gateway/sentinel/internal/resilience"
	"github.com/sentinel-gateway/sentinel/internal/service"
	gwerrors "github.com/sentinel-gateway/sentinel/pkg/errors"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// QueryService is the orchestrator surface the handler depends on.
type QueryService interface {
	Query(ctx context.Context, req *service.Request) (*service.Response, error)
	Stats(ctx context.Context) (*service.Stats, error)
}

// Defaults are applied to query fields the caller omitted.
type Defaults struct {
	Model     string
	Threshold float64
}

// Handler serves the gateway's HTTP surface.
type Handler struct {
	svc      QueryService
	cache    *cache.Store
	embedder embedding.Embedder
	limiter  *resilience.RateLimiter
	logger   *slog.Logger
	defaults atomic.Pointer[Defaults]
}

// NewHandler creates the handler.
func NewHandler(svc QueryService, cacheStore *cache.Store, embedder embedding.Embedder, limiter *resilience.RateLimiter, logger *slog.Logger, defaults Defaults) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		svc:      svc,
		cache:    cacheStore,
		embedder: embedder,
		limiter:  limiter,
		logger:   logger,
	}
	h.SetDefaults(defaults)
	return h
}

// SetDefaults swaps the fallback model and threshold. Called on config hot
// reload; safe to call while serving.
func (h *Handler) SetDefaults(d Defaults) {
	if d.Threshold <= 0 {
		d.Threshold = 0.75
	}
	h.defaults.Store(&d)
}

// Root answers connectivity checks.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message":   "Sentinel semantic caching gateway",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

type queryRequest struct {
	Prompt              string   `json:"prompt"`
	Provider            string   `json:"provider"`
	Model               string   `json:"model"`
	Temperature         *float64 `json:"temperature"`
	MaxTokens           *int     `json:"max_tokens"`
	SimilarityThreshold *float64 `json:"similarity_threshold"`
}

// Query resolves a prompt through the cache pipeline.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var body queryRequest
	if err := httputil.DecodeJSONBody(r.Body, httputil.DefaultMaxRequestBodyBytes, &body); err != nil {
		httputil.WriteError(w, gwerrors.NewValidationFailed("invalid JSON body"))
		return
	}

	req, err := h.resolve(&body)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	role := ""
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		role = string(id.Role)
	}
	h.logger.Info("query",
		"prompt", truncate(req.Prompt, 50),
		"model", req.Model,
		"role", role,
	)

	resp, err := h.svc.Query(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// resolve validates the body and applies defaults.
func (h *Handler) resolve(body *queryRequest) (*service.Request, error) {
	defaults := h.defaults.Load()
	if body.Prompt == "" {
		return nil, gwerrors.NewValidationFailed("prompt is required")
	}
	if body.Provider != "" && body.Provider != "groq" {
		return nil, gwerrors.NewValidationFailed("unsupported provider: " + body.Provider)
	}

	temperature := 0.7
	if body.Temperature != nil {
		temperature = *body.Temperature
		if temperature < 0 || temperature > 2 {
			return nil, gwerrors.NewValidationFailed("temperature must be in [0, 2]")
		}
	}

	maxTokens := 500
	if body.MaxTokens != nil {
		maxTokens = *body.MaxTokens
		if maxTokens < 1 || maxTokens > 4000 {
			return nil, gwerrors.NewValidationFailed("max_tokens must be in [1, 4000]")
		}
	}

	// An explicit similarity_threshold flows through untouched; zero is a
	// valid floor that accepts any embedded entry.
	threshold := defaults.Threshold
	if body.SimilarityThreshold != nil {
		threshold = *body.SimilarityThreshold
		if threshold < 0 || threshold > 1 {
			return nil, gwerrors.NewValidationFailed("similarity_threshold must be in [0, 1]")
		}
	}

	model := body.Model
	if model == "" {
		model = defaults.Model
	}

	return &service.Request{
		Prompt:      body.Prompt,
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Threshold:   threshold,
	}, nil
}

// StatsJSON serves the JSON metrics summary.
func (h *Handler) StatsJSON(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

type cacheEntrySummary struct {
	Prompt          string `json:"prompt"`
	ResponsePreview string `json:"response_preview"`
	HasEmbedding    bool   `json:"has_embedding"`
}

// CacheAll lists the live cache set with truncated previews. Admin only.
func (h *Handler) CacheAll(w http.ResponseWriter, r *http.Request) {
	entries, err := h.cache.Entries(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	summaries := make([]cacheEntrySummary, 0, len(entries))
	withEmbeddings := 0
	for _, e := range entries {
		if e.Embedding != nil {
			withEmbeddings++
		}
		summaries = append(summaries, cacheEntrySummary{
			Prompt:          truncate(e.Prompt, 80),
			ResponsePreview: truncate(e.Response, 100),
			HasEmbedding:    e.Embedding != nil,
		})
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"count":           len(summaries),
		"with_embeddings": withEmbeddings,
		"entries":         summaries,
	})
}

// CacheClear drops every cache entry. Admin only.
func (h *Handler) CacheClear(w http.ResponseWriter, r *http.Request) {
	cleared, err := h.cache.Clear(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.Info("cache cleared", "keys", cleared)
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

type testEmbeddingsRequest struct {
	Prompt    string   `json:"prompt"`
	Threshold *float64 `json:"threshold"`
}

type similarityResult struct {
	Prompt         string  `json:"prompt"`
	Similarity     float64 `json:"similarity"`
	AboveThreshold bool    `json:"above_threshold"`
}

// TestEmbeddings scores a prompt against every cached embedding. Admin
// only; a diagnostic for tuning the similarity threshold.
func (h *Handler) TestEmbeddings(w http.ResponseWriter, r *http.Request) {
	var body testEmbeddingsRequest
	if err := httputil.DecodeJSONBody(r.Body, httputil.DefaultMaxRequestBodyBytes, &body); err != nil {
		httputil.WriteError(w, gwerrors.NewValidationFailed("invalid JSON body"))
		return
	}
	if body.Prompt == "" {
		httputil.WriteError(w, gwerrors.NewValidationFailed("prompt is required"))
		return
	}
	threshold := h.defaults.Load().Threshold
	if body.Threshold != nil {
		threshold = *body.Threshold
	}

	qvec, err := h.embedder.Embed(r.Context(), body.Prompt)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.cache.Entries(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	results := make([]similarityResult, 0, len(entries))
	for _, e := range entries {
		if e.Embedding == nil {
			continue
		}
		score := cache.CosineSimilarity(qvec, e.Embedding)
		results = append(results, similarityResult{
			Prompt:         truncate(e.Prompt, 80),
			Similarity:     score,
			AboveThreshold: score >= threshold,
		})
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"prompt":    body.Prompt,
		"threshold": threshold,
		"results":   results,
	})
}

// RateLimitReset restores a caller's full token budget. Admin only.
func (h *Handler) RateLimitReset(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		httputil.WriteError(w, gwerrors.NewValidationFailed("key query parameter is required"))
		return
	}
	if h.limiter == nil {
		httputil.WriteError(w, gwerrors.NewValidationFailed("rate limiting is disabled"))
		return
	}
	if err := h.limiter.Reset(r.Context(), key); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.Info("rate limit reset", "key", auth.Redact(key))
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"reset": key})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
