package main

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinel-gateway/sentinel/internal/api"
	"github.com/sentinel-gateway/sentinel/internal/auth"
)

func buildRoutes(handler *api.Handler, authMiddleware *auth.Middleware, debugMode bool, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	// Public surface
	mux.HandleFunc("GET /{$}", handler.Root)
	mux.HandleFunc("GET /health", handler.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Authenticated surface
	mux.HandleFunc("POST /v1/query", handler.Query)
	mux.HandleFunc("GET /v1/metrics", handler.StatsJSON)

	// Admin/debug surface
	if debugMode {
		mux.Handle("GET /v1/cache/all", authMiddleware.RequireAdmin(http.HandlerFunc(handler.CacheAll)))
		mux.Handle("DELETE /v1/cache/clear", authMiddleware.RequireAdmin(http.HandlerFunc(handler.CacheClear)))
		mux.Handle("POST /v1/cache/test-embeddings", authMiddleware.RequireAdmin(http.HandlerFunc(handler.TestEmbeddings)))
		mux.Handle("DELETE /v1/ratelimit/reset", authMiddleware.RequireAdmin(http.HandlerFunc(handler.RateLimitReset)))
		logger.Info("debug mode enabled, admin routes registered")
	}

	return mux
}
