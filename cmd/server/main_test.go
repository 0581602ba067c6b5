package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-gateway/sentinel/internal/api"
	"github.com/sentinel-gateway/sentinel/internal/cache"
	"github.com/sentinel-gateway/sentinel/internal/config"
	"github.com/sentinel-gateway/sentinel/internal/kv"
	"github.com/sentinel-gateway/sentinel/internal/resilience"
	"github.com/sentinel-gateway/sentinel/internal/service"
)

func TestApplyTunables(t *testing.T) {
	mr := miniredis.RunT(t)
	store := kv.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	svc := service.New(service.Config{DefaultThreshold: 0.75})
	limiter := resilience.NewRateLimiter(store, resilience.RateLimiterConfig{Capacity: 2, Window: time.Minute}, nil)
	stub := &stubService{}
	handler := api.NewHandler(stub, cache.New(store, "", time.Hour), &stubEmbedder{}, limiter, nil, api.Defaults{
		Model:     "llama-3.1-8b-instant",
		Threshold: 0.75,
	})

	cfg := config.DefaultConfig()
	cfg.Cache.SimilarityThreshold = 0.9
	cfg.Generator.Model = "llama-3.3-70b-versatile"
	cfg.RateLimit.Capacity = 7

	applyTunables(cfg, svc, handler, limiter)

	assert.Equal(t, 0.9, svc.DefaultThreshold())
	assert.Equal(t, 7, limiter.Allow(context.Background(), "any").Limit)

	// A request relying on defaults picks up the reloaded values.
	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"prompt":"p"}`))
	rec := httptest.NewRecorder()
	handler.Query(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, stub.lastReq)
	assert.Equal(t, "llama-3.3-70b-versatile", stub.lastReq.Model)
	assert.Equal(t, 0.9, stub.lastReq.Threshold)
}

func TestApplyTunables_NoLimiter(t *testing.T) {
	svc := service.New(service.Config{DefaultThreshold: 0.75})
	handler := api.NewHandler(&stubService{}, nil, &stubEmbedder{}, nil, nil, api.Defaults{
		Model:     "llama-3.1-8b-instant",
		Threshold: 0.75,
	})

	cfg := config.DefaultConfig()
	cfg.Cache.SimilarityThreshold = 0.85

	applyTunables(cfg, svc, handler, nil)
	assert.Equal(t, 0.85, svc.DefaultThreshold())
}
