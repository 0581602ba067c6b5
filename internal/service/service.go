// Package service implements the query orchestrator: the ordered
// exact→semantic→generate pipeline, single-flight coordination between
// concurrent identical requests, and the circuit-breaker-guarded
// generation path.
package service

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/sentinel-gateway/sentinel/internal/cache"
	"github.com/sentinel-gateway/sentinel/internal/embedding"
	"github.com/sentinel-gateway/sentinel/internal/metrics"
	"github.com/sentinel-gateway/sentinel/internal/provider"
	"github.com/sentinel-gateway/sentinel/internal/resilience"
	gwerrors "github.com/sentinel-gateway/sentinel/pkg/errors"
)

const (
	// pollInitial is the losers' first wait before re-probing the cache.
	pollInitial = 100 * time.Millisecond
	// pollMax caps the doubling poll interval.
	pollMax = 2 * time.Second
)

// Request carries the resolved parameters for one query. The API layer has
// already validated ranges and applied defaults.
type Request struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
	// Threshold is the cosine score required for a semantic hit. Zero is a
	// valid floor that accepts any embedded entry; negative means the
	// service default applies.
	Threshold float64
}

// Response is the outcome of one query.
type Response struct {
	Response string `json:"response"`
	CacheHit bool   `json:"cache_hit"`
	// SimilarityScore is null on a generated (miss) response.
	SimilarityScore *float64 `json:"similarity_score"`
	// MatchedPrompt names the cache entry that served a hit, null on a miss.
	MatchedPrompt *string `json:"matched_prompt"`
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	TokensUsed    int     `json:"tokens_used"`
	LatencyMS     float64 `json:"latency_ms"`
}

// Service orchestrates one request's lifetime across the cache, the
// embedder, the lock, and the breaker-guarded generator.
type Service struct {
	cache     *cache.Store
	embedder  embedding.Embedder
	generator provider.Generator
	breaker   *resilience.CircuitBreaker
	lock      *resilience.FlightLock
	logger    *slog.Logger
	startedAt time.Time

	// threshold holds the Float64bits of the default semantic threshold,
	// swappable on config hot reload.
	threshold atomic.Uint64

	// Decision-point counters for the JSON stats endpoint. These count each
	// query once, unlike the cache store's probe counters which the loser
	// poll loop would inflate.
	totalQueries atomic.Int64
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Cache     *cache.Store
	Embedder  embedding.Embedder
	Generator provider.Generator
	Breaker   *resilience.CircuitBreaker
	Lock      *resilience.FlightLock
	Logger    *slog.Logger
	// DefaultThreshold applies when the request does not override it.
	DefaultThreshold float64
}

// New creates the orchestrator.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cache:     cfg.Cache,
		embedder:  cfg.Embedder,
		generator: cfg.Generator,
		breaker:   cfg.Breaker,
		lock:      cfg.Lock,
		logger:    logger,
		startedAt: time.Now(),
	}
	s.SetDefaultThreshold(cfg.DefaultThreshold)
	return s
}

// DefaultThreshold returns the current fallback semantic threshold.
func (s *Service) DefaultThreshold() float64 {
	return math.Float64frombits(s.threshold.Load())
}

// SetDefaultThreshold swaps the fallback threshold applied to requests
// that do not carry their own. Safe to call while serving.
func (s *Service) SetDefaultThreshold(v float64) {
	if v <= 0 {
		v = 0.75
	}
	s.threshold.Store(math.Float64bits(v))
}

// Query resolves one prompt: exact probe, semantic scan, then single-flight
// generation. Cache read/write faults and terminal generator faults
// propagate typed; embedding faults only degrade the semantic step.
func (s *Service) Query(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	s.totalQueries.Add(1)
	if req.Threshold < 0 {
		req.Threshold = s.DefaultThreshold()
	}

	// Best-effort embedding. Without a vector the request still serves
	// exact hits and generations.
	qvec, err := s.embedder.Embed(ctx, req.Prompt)
	if err != nil {
		s.logger.Warn("embedding unavailable, skipping semantic match",
			"prompt", truncate(req.Prompt, 50),
			"error", err,
		)
		qvec = nil
	}

	// Exact probe.
	if resp, ok, err := s.exactProbe(ctx, req, start); err != nil {
		return nil, err
	} else if ok {
		return resp, nil
	}

	// Semantic scan.
	if qvec != nil {
		entries, err := s.cache.Entries(ctx)
		if err != nil {
			return nil, err
		}
		if match, ok := cache.BestMatch(qvec, entries, req.Threshold); ok {
			metrics.CacheEvents.WithLabelValues(metrics.EventSemantic).Inc()
			s.cacheHits.Add(1)
			score := match.Similarity
			matched := match.Prompt
			return &Response{
				Response:        match.Response,
				CacheHit:        true,
				SimilarityScore: &score,
				MatchedPrompt:   &matched,
				Provider:        s.generator.Name(),
				Model:           req.Model,
				TokensUsed:      0,
				LatencyMS:       sinceMS(start),
			}, nil
		}
	}

	metrics.CacheEvents.WithLabelValues(metrics.EventMiss).Inc()
	s.cacheMisses.Add(1)

	lockKey, won := s.lock.TryAcquire(ctx, req.Prompt, req.Model)
	if won {
		defer s.lock.Release(context.WithoutCancel(ctx), lockKey)
		return s.generate(ctx, req, qvec, start)
	}
	return s.awaitWinner(ctx, req, qvec, start)
}

// exactProbe checks the cache for a byte-identical prompt.
func (s *Service) exactProbe(ctx context.Context, req *Request, start time.Time) (*Response, bool, error) {
	cached, found, err := s.cache.Get(ctx, req.Prompt)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	metrics.CacheEvents.WithLabelValues(metrics.EventExact).Inc()
	s.cacheHits.Add(1)
	score := 1.0
	matched := req.Prompt
	return &Response{
		Response:        cached,
		CacheHit:        true,
		SimilarityScore: &score,
		MatchedPrompt:   &matched,
		Provider:        s.generator.Name(),
		Model:           req.Model,
		TokensUsed:      0,
		LatencyMS:       sinceMS(start),
	}, true, nil
}

// generate runs the breaker-guarded upstream call and writes the result
// back. A result arriving after cancellation is discarded, never cached.
func (s *Service) generate(ctx context.Context, req *Request, qvec []float32, start time.Time) (*Response, error) {
	if err := s.breaker.Allow(); err != nil {
		return nil, err
	}

	metrics.ActiveLocks.Inc()
	defer metrics.ActiveLocks.Dec()

	result, err := s.generator.Call(ctx, &provider.Request{
		Prompt:      req.Prompt,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		// A failure caused by the caller hanging up says nothing about
		// upstream health.
		if ctx.Err() == nil {
			s.breaker.RecordFailure()
		}
		return nil, err
	}
	s.breaker.RecordSuccess()

	if ctx.Err() != nil {
		// The caller is gone; a late result must not enter the cache.
		s.logger.Info("discarding generation for cancelled request",
			"prompt", truncate(req.Prompt, 50),
		)
		return nil, gwerrors.NewGeneratorUnavailable("request cancelled", ctx.Err())
	}

	if err := s.cache.Set(ctx, req.Prompt, result.Response, qvec); err != nil {
		return nil, err
	}

	metrics.LLMCostUSD.WithLabelValues(result.Provider, result.Model).Add(result.CostUSD)

	return &Response{
		Response:   result.Response,
		CacheHit:   false,
		Provider:   result.Provider,
		Model:      result.Model,
		TokensUsed: result.TokensUsed,
		LatencyMS:  sinceMS(start),
	}, nil
}

// awaitWinner polls the cache until the winner's write lands, then serves
// it as a hit. If the lock TTL elapses first, the winner is presumed dead
// and this request generates for itself.
func (s *Service) awaitWinner(ctx context.Context, req *Request, qvec []float32, start time.Time) (*Response, error) {
	deadline := time.Now().Add(s.lock.TTL())
	wait := pollInitial

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, gwerrors.NewGeneratorUnavailable("request cancelled", ctx.Err())
		case <-time.After(wait):
		}
		if wait < pollMax {
			wait *= 2
			if wait > pollMax {
				wait = pollMax
			}
		}

		cached, found, err := s.cache.Get(ctx, req.Prompt)
		if err != nil {
			return nil, err
		}
		if found {
			score := 1.0
			matched := req.Prompt
			return &Response{
				Response:        cached,
				CacheHit:        true,
				SimilarityScore: &score,
				MatchedPrompt:   &matched,
				Provider:        s.generator.Name(),
				Model:           req.Model,
				TokensUsed:      0,
				LatencyMS:       sinceMS(start),
			}, nil
		}
	}

	s.logger.Warn("single-flight winner never published, generating",
		"prompt", truncate(req.Prompt, 50),
	)
	return s.generate(ctx, req, qvec, start)
}

// Stats is the JSON summary served by /v1/metrics.
type Stats struct {
	TotalRequests  int64   `json:"total_requests"`
	CacheHits      int64   `json:"cache_hits"`
	CacheMisses    int64   `json:"cache_misses"`
	HitRatePercent float64 `json:"hit_rate_percent"`
	StoredItems    int     `json:"stored_items"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// Stats snapshots the process-local counters and the live entry count.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	stored, err := s.cache.Count(ctx)
	if err != nil {
		return nil, err
	}

	hits := s.cacheHits.Load()
	misses := s.cacheMisses.Load()
	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses) * 100
	}

	return &Stats{
		TotalRequests:  s.totalQueries.Load(),
		CacheHits:      hits,
		CacheMisses:    misses,
		HitRatePercent: rate,
		StoredItems:    stored,
		UptimeSeconds:  time.Since(s.startedAt).Seconds(),
	}, nil
}

func sinceMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
