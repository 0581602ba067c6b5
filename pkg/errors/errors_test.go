package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGatewayError_StatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *GatewayError
		kind string
		code int
	}{
		{"embedding", NewEmbeddingUnavailable("embed failed", nil), KindEmbeddingUnavailable, http.StatusBadGateway},
		{"generator", NewGeneratorUnavailable("upstream failed", nil), KindGeneratorUnavailable, http.StatusBadGateway},
		{"circuit", NewCircuitOpen(60), KindCircuitOpen, http.StatusServiceUnavailable},
		{"storage", NewStorageUnavailable("get", nil), KindStorageUnavailable, http.StatusServiceUnavailable},
		{"drain", NewDrainInProgress(), KindDrainInProgress, http.StatusServiceUnavailable},
		{"auth missing", NewAuthMissing(), KindAuthMissing, http.StatusUnauthorized},
		{"auth invalid", NewAuthInvalid(), KindAuthInvalid, http.StatusUnauthorized},
		{"forbidden", NewAuthForbidden(), KindAuthForbidden, http.StatusForbidden},
		{"rate limited", NewRateLimited(12), KindRateLimited, http.StatusTooManyRequests},
		{"validation", NewValidationFailed("prompt required"), KindValidationFailed, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.err.Kind)
			assert.Equal(t, tt.code, tt.err.HTTPStatusCode())
		})
	}
}

func TestGatewayError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewStorageUnavailable("setnx", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "storage operation setnx failed")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsKind(t *testing.T) {
	wrapped := fmt.Errorf("pipeline: %w", NewRateLimited(5))

	assert.True(t, IsKind(wrapped, KindRateLimited))
	assert.False(t, IsKind(wrapped, KindCircuitOpen))
	assert.False(t, IsKind(fmt.Errorf("plain"), KindRateLimited))
}

func TestAsGatewayError_WrapsUnknown(t *testing.T) {
	ge := AsGatewayError(fmt.Errorf("boom"))

	assert.Equal(t, http.StatusInternalServerError, ge.HTTPStatusCode())
	assert.Equal(t, "internal_error", ge.Kind)
}

func TestCircuitOpen_RetryAfter(t *testing.T) {
	err := NewCircuitOpen(60)
	assert.Equal(t, 60, err.RetryAfter)
	assert.True(t, err.Retryable)
}
