// Package errors defines the unified error taxonomy for the gateway.
// Every internal fault is mapped to one of these kinds; the API layer
// performs the only translation from kind to HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// GatewayError is the standard error carried across layer boundaries.
type GatewayError struct {
	Kind       string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Retryable  bool   `json:"-"`
	// RetryAfter is a hint in seconds, zero when not applicable.
	RetryAfter int   `json:"-"`
	Cause      error `json:"-"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the original fault for errors.Is/As chains.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// HTTPStatusCode returns the HTTP status this error maps to.
func (e *GatewayError) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Stable kind strings exposed to clients.
const (
	KindEmbeddingUnavailable = "embedding_unavailable"
	KindGeneratorUnavailable = "generator_unavailable"
	KindCircuitOpen          = "circuit_open"
	KindStorageUnavailable   = "storage_unavailable"
	KindDrainInProgress      = "drain_in_progress"
	KindAuthMissing          = "auth_missing"
	KindAuthInvalid          = "auth_invalid"
	KindAuthForbidden        = "auth_forbidden"
	KindRateLimited          = "rate_limited"
	KindValidationFailed     = "validation_failed"
)

// NewEmbeddingUnavailable reports an embedding provider failure.
// The orchestrator treats this as non-fatal and skips semantic matching.
func NewEmbeddingUnavailable(message string, cause error) *GatewayError {
	return &GatewayError{
		Kind:       KindEmbeddingUnavailable,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewGeneratorUnavailable reports a terminal generator failure after retries (502).
func NewGeneratorUnavailable(message string, cause error) *GatewayError {
	return &GatewayError{
		Kind:       KindGeneratorUnavailable,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewCircuitOpen reports a fail-fast rejection while the breaker cools down (503).
func NewCircuitOpen(retryAfterSec int) *GatewayError {
	return &GatewayError{
		Kind:       KindCircuitOpen,
		Message:    "generator circuit is open",
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
		RetryAfter: retryAfterSec,
	}
}

// NewStorageUnavailable reports a key-value store failure (503).
func NewStorageUnavailable(op string, cause error) *GatewayError {
	return &GatewayError{
		Kind:       KindStorageUnavailable,
		Message:    fmt.Sprintf("storage operation %s failed", op),
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewDrainInProgress reports a rejection during graceful shutdown (503).
func NewDrainInProgress() *GatewayError {
	return &GatewayError{
		Kind:       KindDrainInProgress,
		Message:    "server is shutting down",
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
	}
}

// NewAuthMissing reports a request without an API key (401).
func NewAuthMissing() *GatewayError {
	return &GatewayError{
		Kind:       KindAuthMissing,
		Message:    "missing X-API-Key header",
		StatusCode: http.StatusUnauthorized,
	}
}

// NewAuthInvalid reports an unrecognized API key (401).
func NewAuthInvalid() *GatewayError {
	return &GatewayError{
		Kind:       KindAuthInvalid,
		Message:    "invalid API key",
		StatusCode: http.StatusUnauthorized,
	}
}

// NewAuthForbidden reports a non-admin key on an admin route (403).
func NewAuthForbidden() *GatewayError {
	return &GatewayError{
		Kind:       KindAuthForbidden,
		Message:    "admin access required",
		StatusCode: http.StatusForbidden,
	}
}

// NewRateLimited reports an exhausted token bucket (429).
func NewRateLimited(retryAfterSec int) *GatewayError {
	return &GatewayError{
		Kind:       KindRateLimited,
		Message:    "rate limit exceeded",
		StatusCode: http.StatusTooManyRequests,
		Retryable:  true,
		RetryAfter: retryAfterSec,
	}
}

// NewValidationFailed reports a malformed request body (400).
func NewValidationFailed(message string) *GatewayError {
	return &GatewayError{
		Kind:       KindValidationFailed,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// IsKind reports whether err is a GatewayError of the given kind.
func IsKind(err error, kind string) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}

// AsGatewayError extracts a GatewayError from err, or wraps err as an
// internal error so the transport always has something to map.
func AsGatewayError(err error) *GatewayError {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge
	}
	return &GatewayError{
		Kind:       "internal_error",
		Message:    "an unexpected error occurred",
		StatusCode: http.StatusInternalServerError,
		Cause:      err,
	}
}
