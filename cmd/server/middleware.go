package main

import (
	"log/slog"
	"net/http"

	"github.com/sentinel-gateway/sentinel/internal/api"
	"github.com/sentinel-gateway/sentinel/internal/auth"
	"github.com/sentinel-gateway/sentinel/internal/metrics"
	"github.com/sentinel-gateway/sentinel/internal/observability"
)

// buildMiddlewareStack composes the edge: request id, request log, metrics,
// then the drain gate, then authentication. The gate sits before auth so a
// draining server refuses work before spending effort on key checks.
func buildMiddlewareStack(gate *api.Gate, authMiddleware *auth.Middleware, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := authMiddleware.Authenticate(next)
		handler = gate.Middleware(handler)
		handler = metrics.Middleware(handler)
		handler = observability.RequestLogMiddleware(logger)(handler)
		handler = observability.RequestIDMiddleware(handler)
		return handler
	}
}
