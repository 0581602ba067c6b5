package resilience

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sentinel-gateway/sentinel/internal/kv"
)

const (
	// LockPrefix namespaces single-flight lock keys in the store.
	LockPrefix = "sentinel:lock:"

	// DefaultLockTTL bounds how long a crashed winner can stall followers.
	DefaultLockTTL = 30 * time.Second
)

// LockKey derives the single-flight lock key for a prompt/model pair.
// The NUL separator keeps distinct pairs from colliding.
func LockKey(prompt, model string) string {
	sum := sha256.Sum256([]byte(prompt + "\x00" + model))
	return LockPrefix + hex.EncodeToString(sum[:])
}

// FlightLock collapses concurrent identical generations to one upstream
// call. The winner generates and writes back; losers poll the cache until
// the result lands or the lock TTL elapses.
type FlightLock struct {
	store  *kv.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewFlightLock creates a lock manager over the shared store.
func NewFlightLock(store *kv.Store, ttl time.Duration, logger *slog.Logger) *FlightLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FlightLock{store: store, ttl: ttl, logger: logger}
}

// TTL returns the lock expiry, which is also the losers' polling ceiling.
func (fl *FlightLock) TTL() time.Duration {
	return fl.ttl
}

// TryAcquire attempts to take the lock for a prompt/model pair. Storage
// faults fail open as a win: one duplicate upstream call beats stalling
// every caller behind a broken store.
func (fl *FlightLock) TryAcquire(ctx context.Context, prompt, model string) (key string, won bool) {
	key = LockKey(prompt, model)
	token := uuid.NewString()

	won, err := fl.store.SetNXEx(ctx, key, token, fl.ttl)
	if err != nil {
		fl.logger.Warn("lock acquire failed, proceeding as winner", "error", err)
		return key, true
	}
	return key, won
}

// Release drops the lock. Failure is non-fatal: the TTL reclaims it.
func (fl *FlightLock) Release(ctx context.Context, key string) {
	if _, err := fl.store.Del(ctx, key); err != nil {
		fl.logger.Warn("lock release failed, ttl will reclaim", "key", key, "error", err)
	}
}
