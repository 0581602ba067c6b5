package auth

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sentinel-gateway/sentinel/internal/httputil"
	"github.com/sentinel-gateway/sentinel/internal/resilience"
	gwerrors "github.com/sentinel-gateway/sentinel/pkg/errors"
)

// APIKeyHeader carries the caller's key.
const APIKeyHeader = "X-API-Key"

// Middleware authenticates requests and enforces the per-key rate limit.
type Middleware struct {
	keyring   *Keyring
	limiter   *resilience.RateLimiter
	logger    *slog.Logger
	skipPaths map[string]bool
	debugMode bool
}

// MiddlewareConfig contains configuration for the auth middleware.
type MiddlewareConfig struct {
	Keyring *Keyring
	// Limiter is optional; nil disables rate limiting.
	Limiter *resilience.RateLimiter
	Logger  *slog.Logger
	// SkipPaths bypass authentication (e.g. /health, /metrics).
	SkipPaths []string
	// DebugMode gates the admin surface.
	DebugMode bool
}

// NewMiddleware creates the authentication middleware.
func NewMiddleware(cfg MiddlewareConfig) *Middleware {
	skipPaths := make(map[string]bool)
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		keyring:   cfg.Keyring,
		limiter:   cfg.Limiter,
		logger:    logger,
		skipPaths: skipPaths,
		debugMode: cfg.DebugMode,
	}
}

// Authenticate validates the API key, applies the rate limit, and attaches
// the identity to the request context. With no keys configured, auth is
// disabled and requests pass through anonymously (still rate limited by
// remote address).
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		bucket := r.RemoteAddr
		if !m.keyring.Empty() {
			id, err := m.keyring.Authenticate(r.Header.Get(APIKeyHeader))
			if err != nil {
				m.logger.Warn("authentication failed",
					"path", r.URL.Path,
					"key", Redact(r.Header.Get(APIKeyHeader)),
				)
				httputil.WriteError(w, err)
				return
			}
			bucket = id.Key
			r = r.WithContext(WithIdentity(r.Context(), id))
		}

		if m.limiter != nil {
			res := m.limiter.Allow(r.Context(), bucket)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt, 10))
			if !res.Allowed {
				httputil.WriteError(w, gwerrors.NewRateLimited(res.RetryAfter))
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAdmin gates the debug/admin surface: the caller must hold the
// admin role and the gateway must be running in debug mode.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.debugMode {
			httputil.WriteError(w, gwerrors.NewAuthForbidden())
			return
		}
		id, ok := IdentityFromContext(r.Context())
		if !ok || id.Role != RoleAdmin {
			httputil.WriteError(w, gwerrors.NewAuthForbidden())
			return
		}
		next.ServeHTTP(w, r)
	})
}
