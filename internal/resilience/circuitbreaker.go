// Package resilience provides the protective layers between the gateway and
// its upstreams: a circuit breaker around the generator, a distributed token
// bucket for per-key rate limiting, and a single-flight lock that collapses
// concurrent identical generations.
package resilience

import (
	"sync"
	"time"

	gwerrors "github.com/sentinel-gateway/sentinel/pkg/errors"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed allows requests to pass through normally.
	StateClosed CircuitState = iota
	// StateOpen blocks all requests until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits a probe to test recovery.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig contains configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before admitting a probe.
	Cooldown time.Duration
	// HalfOpenMaxProbes is the max in-flight probes in half-open state.
	HalfOpenMaxProbes int
}

// DefaultCircuitBreakerConfig returns the production defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:  5,
		Cooldown:          60 * time.Second,
		HalfOpenMaxProbes: 2,
	}
}

// CircuitBreaker guards the generator with consecutive-failure tracking.
// A single success closes the circuit again; any half-open failure reopens
// it with a fresh cooldown.
type CircuitBreaker struct {
	mu              sync.Mutex
	name            string
	state           CircuitState
	failureCount    int
	probeCount      int
	lastFailureTime time.Time
	config          CircuitBreakerConfig
	onStateChange   func(name string, from, to CircuitState)
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if cfg.HalfOpenMaxProbes <= 0 {
		cfg.HalfOpenMaxProbes = 2
	}
	return &CircuitBreaker{
		name:   name,
		state:  StateClosed,
		config: cfg,
	}
}

// OnStateChange sets a callback for state transitions.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Allow checks whether a request may proceed. A blocked request receives a
// typed circuit-open error carrying the remaining cooldown as a retry hint.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if !cb.lastFailureTime.IsZero() && time.Since(cb.lastFailureTime) >= cb.config.Cooldown {
			cb.transitionTo(StateHalfOpen)
			cb.probeCount = 1
			return nil
		}
		return gwerrors.NewCircuitOpen(cb.retryAfterLocked())

	case StateHalfOpen:
		if cb.probeCount < cb.config.HalfOpenMaxProbes {
			cb.probeCount++
			return nil
		}
		return gwerrors.NewCircuitOpen(cb.retryAfterLocked())

	default:
		return gwerrors.NewCircuitOpen(cb.retryAfterLocked())
	}
}

// RecordSuccess records a successful request. In half-open state one success
// is enough to close the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0

	case StateHalfOpen:
		cb.transitionTo(StateClosed)
		cb.failureCount = 0
		cb.probeCount = 0
	}
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.transitionTo(StateOpen)
		}

	case StateHalfOpen:
		// A failed probe reopens the circuit with a fresh cooldown.
		cb.transitionTo(StateOpen)
		cb.probeCount = 0
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the circuit breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset forces the circuit back to closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transitionTo(StateClosed)
	cb.failureCount = 0
	cb.probeCount = 0
}

// retryAfterLocked reports the remaining cooldown in whole seconds, never
// below one so Retry-After headers stay meaningful.
func (cb *CircuitBreaker) retryAfterLocked() int {
	if cb.lastFailureTime.IsZero() {
		return int(cb.config.Cooldown.Seconds())
	}
	remaining := cb.config.Cooldown - time.Since(cb.lastFailureTime)
	sec := int(remaining.Seconds() + 0.999)
	if sec < 1 {
		sec = 1
	}
	return sec
}

func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState

	if cb.onStateChange != nil {
		// Call callback without holding the lock.
		go cb.onStateChange(cb.name, oldState, newState)
	}
}
