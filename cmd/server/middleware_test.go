package main

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sentinel-gateway/sentinel/internal/api"
	"github.com/sentinel-gateway/sentinel/internal/auth"
)

func TestMiddlewareStack_DrainBeatsAuth(t *testing.T) {
	gate := api.NewGate()
	authMiddleware := auth.NewMiddleware(auth.MiddlewareConfig{
		Keyring: auth.NewKeyring([]string{"user-key"}, ""),
	})

	var reached bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	})
	h := buildMiddlewareStack(gate, authMiddleware, slog.Default())(inner)

	gate.Drain(time.Second)

	// Even a request with no key sees the drain response, not a 401.
	rec := do(h, http.MethodPost, "/v1/query", "", `{"prompt":"p"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "drain_in_progress")
	assert.False(t, reached)
}

func TestMiddlewareStack_AttachesRequestID(t *testing.T) {
	gate := api.NewGate()
	authMiddleware := auth.NewMiddleware(auth.MiddlewareConfig{
		Keyring: auth.NewKeyring(nil, ""),
	})

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := buildMiddlewareStack(gate, authMiddleware, slog.Default())(inner)

	rec := do(h, http.MethodGet, "/health", "", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
