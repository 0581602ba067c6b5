package resilience

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sentinel-gateway/sentinel/internal/kv"
)

const ratelimitPrefix = "ratelimit:"

// RateLimiterConfig sizes the token bucket.
type RateLimiterConfig struct {
	// Capacity is the burst size and sustained requests per window.
	Capacity int
	// Window is the refill period: a drained bucket refills fully in one window.
	Window time.Duration
}

// DefaultRateLimiterConfig returns the production defaults.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Capacity: 60,
		Window:   time.Minute,
	}
}

// LimitResult is the outcome of one admission check.
type LimitResult struct {
	Allowed bool
	// Limit is the bucket capacity, surfaced in X-RateLimit-Limit.
	Limit int
	// Remaining is the whole tokens left after this request.
	Remaining int
	// ResetAt is the unix time at which the bucket is full again, or, on a
	// denial, at which the next token arrives.
	ResetAt int64
	// RetryAfter is the whole seconds until the next token, zero when allowed.
	RetryAfter int
}

// RateLimiter is a distributed token bucket keyed by caller identity.
// Bucket state lives in the shared store so every gateway replica enforces
// the same budget. Storage faults fail open: availability of the gateway
// outranks strict enforcement.
type RateLimiter struct {
	store  *kv.Store
	cfg    atomic.Pointer[RateLimiterConfig]
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewRateLimiter creates a limiter backed by the shared store.
func NewRateLimiter(store *kv.Store, cfg RateLimiterConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	rl := &RateLimiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	rl.SetConfig(cfg)
	return rl
}

// SetConfig swaps the bucket sizing. Called on config hot reload; stored
// bucket state carries over and a shrunk capacity takes effect through the
// refill cap.
func (rl *RateLimiter) SetConfig(cfg RateLimiterConfig) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	rl.cfg.Store(&cfg)
}

// Allow checks and consumes one token for the given caller key.
func (rl *RateLimiter) Allow(ctx context.Context, key string) LimitResult {
	countKey := ratelimitPrefix + key + ":count"
	resetKey := ratelimitPrefix + key + ":reset"

	cfg := rl.cfg.Load()
	now := rl.now()
	capacity := float64(cfg.Capacity)
	refillPerSec := capacity / cfg.Window.Seconds()

	tokens := capacity
	vals, err := rl.store.GetMulti(ctx, []string{countKey, resetKey})
	if err != nil {
		// Fail open: a degraded store must not take the gateway down.
		rl.logger.Warn("rate limiter store unavailable, failing open", "key", key, "error", err)
		return rl.openResult(now)
	}

	if countStr, ok := vals[countKey]; ok {
		stored, perr := strconv.ParseFloat(countStr, 64)
		if perr == nil {
			tokens = stored
			if lastStr, ok := vals[resetKey]; ok {
				if last, perr := strconv.ParseFloat(lastStr, 64); perr == nil {
					elapsed := float64(now.Unix()) - last
					if elapsed > 0 {
						tokens = math.Min(capacity, tokens+elapsed*refillPerSec)
					}
				}
			}
		}
	}

	if tokens < 1 {
		// A denied check consumes nothing and writes nothing.
		wait := int64(math.Ceil((1 - tokens) / refillPerSec))
		if wait < 1 {
			wait = 1
		}
		return LimitResult{
			Allowed:    false,
			Limit:      cfg.Capacity,
			Remaining:  int(tokens),
			ResetAt:    now.Unix() + wait,
			RetryAfter: int(wait),
		}
	}
	tokens--

	ttl := 2 * cfg.Window
	werr := rl.store.SetMultiEx(ctx, []kv.Entry{
		{Key: countKey, Value: strconv.FormatFloat(tokens, 'f', -1, 64), TTL: ttl},
		{Key: resetKey, Value: strconv.FormatInt(now.Unix(), 10), TTL: ttl},
	})
	if werr != nil {
		rl.logger.Warn("rate limiter write failed, failing open", "key", key, "error", werr)
		return rl.openResult(now)
	}

	return LimitResult{
		Allowed:   true,
		Limit:     cfg.Capacity,
		Remaining: int(tokens),
		ResetAt:   now.Unix() + int64(math.Ceil((capacity-tokens)/refillPerSec)),
	}
}

// Reset drops the bucket state for a caller, restoring a full budget.
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	_, err := rl.store.Del(ctx,
		ratelimitPrefix+key+":count",
		ratelimitPrefix+key+":reset",
	)
	return err
}

func (rl *RateLimiter) openResult(now time.Time) LimitResult {
	cfg := rl.cfg.Load()
	return LimitResult{
		Allowed:   true,
		Limit:     cfg.Capacity,
		Remaining: cfg.Capacity - 1,
		ResetAt:   now.Add(cfg.Window).Unix(),
	}
}
