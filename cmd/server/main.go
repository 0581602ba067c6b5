// Package main is the entry point for the Sentinel gateway server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentinel-gateway/sentinel/internal/api"
	"github.com/sentinel-gateway/sentinel/internal/auth"
	"github.com/sentinel-gateway/sentinel/internal/cache"
	"github.com/sentinel-gateway/sentinel/internal/config"
	"github.com/sentinel-gateway/sentinel/internal/embedding"
	"github.com/sentinel-gateway/sentinel/internal/kv"
	"github.com/sentinel-gateway/sentinel/internal/provider"
	"github.com/sentinel-gateway/sentinel/internal/resilience"
	"github.com/sentinel-gateway/sentinel/internal/service"
)

func main() {
	logger := newLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	slog.SetDefault(logger)

	logger.Info("starting sentinel gateway", "version", api.Version)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Startup order: KV store, embedder, generator, orchestrator, then the
	// auth/rate-limit edge. Teardown runs in reverse.
	store, err := kv.New(kv.Config{
		URL:          cfg.Redis.URL,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     cfg.Redis.PoolSize,
	})
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to redis")

	var embedder embedding.Embedder
	hf, err := embedding.NewHuggingFace(embedding.HuggingFaceConfig{
		APIToken:  cfg.Embedding.APIToken,
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout,
	})
	if err != nil {
		logger.Error("failed to create embedding client", "error", err)
		os.Exit(1)
	}
	embedder = hf
	if cfg.Embedding.MemoTTL > 0 {
		embedder = embedding.NewMemo(hf, cfg.Embedding.MemoTTL)
	}

	generator, err := provider.NewGroq(provider.GroqConfig{
		APIKey:         cfg.Generator.APIKey,
		BaseURL:        cfg.Generator.BaseURL,
		Timeout:        cfg.Generator.Timeout,
		MaxAttempts:    cfg.Generator.MaxAttempts,
		InitialBackoff: cfg.Generator.InitialBackoff,
	}, logger)
	if err != nil {
		logger.Error("failed to create generator client", "error", err)
		os.Exit(1)
	}

	breaker := resilience.NewCircuitBreaker(generator.Name(), resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Generator.BreakerThreshold,
		Cooldown:         cfg.Generator.BreakerCooldown,
	})
	breaker.OnStateChange(func(name string, from, to resilience.CircuitState) {
		logger.Warn("circuit state change", "breaker", name, "from", from.String(), "to", to.String())
	})

	cacheStore := cache.New(store, cache.DefaultPrefix, cfg.Cache.TTL)
	lock := resilience.NewFlightLock(store, cfg.Cache.LockTTL, logger)

	svc := service.New(service.Config{
		Cache:            cacheStore,
		Embedder:         embedder,
		Generator:        generator,
		Breaker:          breaker,
		Lock:             lock,
		Logger:           logger,
		DefaultThreshold: cfg.Cache.SimilarityThreshold,
	})

	var limiter *resilience.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = resilience.NewRateLimiter(store, resilience.RateLimiterConfig{
			Capacity: cfg.RateLimit.Capacity,
			Window:   cfg.RateLimit.Window,
		}, logger)
	}

	keyring := auth.NewKeyring(cfg.Auth.UserKeys, cfg.Auth.AdminKey)
	if keyring.Empty() {
		logger.Warn("no API keys configured, authentication disabled")
	}
	authMiddleware := auth.NewMiddleware(auth.MiddlewareConfig{
		Keyring:   keyring,
		Limiter:   limiter,
		Logger:    logger,
		SkipPaths: []string{"/", "/health", "/metrics"},
		DebugMode: cfg.DebugMode,
	})

	handler := api.NewHandler(svc, cacheStore, embedder, limiter, logger, api.Defaults{
		Model:     cfg.Generator.Model,
		Threshold: cfg.Cache.SimilarityThreshold,
	})
	gate := api.NewGate()

	// Hot reload only applies when a tuning file is configured. Reloads
	// swap the tunables on the live components; topology (ports, keys,
	// redis) stays fixed until restart.
	if path := os.Getenv("SENTINEL_CONFIG"); path != "" {
		cfgManager, err := config.NewManager(path, logger)
		if err != nil {
			logger.Error("failed to load tuning file", "error", err)
			os.Exit(1)
		}
		defer cfgManager.Close()
		cfgManager.OnChange(func(next *config.Config) {
			applyTunables(next, svc, handler, limiter)
			logger.Info("applied reloaded tunables",
				"similarity_threshold", next.Cache.SimilarityThreshold,
				"model", next.Generator.Model,
				"rate_limit_capacity", next.RateLimit.Capacity,
			)
		})
		if err := cfgManager.Watch(ctx); err != nil {
			logger.Warn("config hot-reload disabled", "error", err)
		}
	}

	mux := buildRoutes(handler, authMiddleware, cfg.DebugMode, logger)
	httpHandler := buildMiddlewareStack(gate, authMiddleware, logger)(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Server.Port, "debug_mode", cfg.DebugMode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("draining in-flight requests", "timeout", cfg.Server.DrainTimeout)
	if !gate.Drain(cfg.Server.DrainTimeout) {
		logger.Warn("drain timeout elapsed with requests still in flight")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.DrainTimeout+5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := store.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}
	logger.Info("server stopped")
}

// applyTunables pushes the hot-reloadable settings into the live
// components.
func applyTunables(cfg *config.Config, svc *service.Service, handler *api.Handler, limiter *resilience.RateLimiter) {
	svc.SetDefaultThreshold(cfg.Cache.SimilarityThreshold)
	handler.SetDefaults(api.Defaults{
		Model:     cfg.Generator.Model,
		Threshold: cfg.Cache.SimilarityThreshold,
	})
	if limiter != nil {
		limiter.SetConfig(resilience.RateLimiterConfig{
			Capacity: cfg.RateLimit.Capacity,
			Window:   cfg.RateLimit.Window,
		})
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
