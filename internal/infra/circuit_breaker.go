package infra

import (
	"log/slog"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // writes flow
	StateOpen                  // writes rejected until the cool-down passes
	StateHalfOpen              // probing the backend
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for creating a circuit breaker.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // half-open successes before closing
	Timeout          time.Duration // cool-down before half-open
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// BreakerConfig builds the store breaker config from the storage section.
func (c *Config) BreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: c.Storage.Breaker.FailureThreshold,
		SuccessThreshold: c.Storage.Breaker.SuccessThreshold,
		Timeout:          time.Duration(c.Storage.Breaker.TimeoutSec) * time.Second,
	}
}

// BreakerStats is a point-in-time view of a breaker.
type BreakerStats struct {
	State    State
	Trips    uint64 // transitions into OPEN
	Rejected uint64 // Allow calls refused while OPEN
}

// CircuitBreaker isolates a failing storage backend so the hot path fails fast.
// Safe for concurrent use.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	trips     uint64
	rejected  uint64
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to State, reason string) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.successes = 0
	switch to {
	case StateOpen:
		cb.trips++
		cb.openedAt = cb.now()
		slog.Warn("Circuit breaker OPEN",
			slog.String("name", cb.cfg.Name),
			slog.String("reason", reason),
			slog.Int("failures", cb.failures))
	case StateClosed:
		cb.failures = 0
		slog.Info("Circuit breaker CLOSED", slog.String("name", cb.cfg.Name), slog.String("reason", reason))
	case StateHalfOpen:
		slog.Info("Circuit breaker HALF_OPEN", slog.String("name", cb.cfg.Name), slog.String("from", from.String()))
	}
}

// Allow reports whether a write may be attempted.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.Timeout {
			cb.rejected++
			return false
		}
		cb.transition(StateHalfOpen, "")
	}
	return true
}

// RecordSuccess records a successful write.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.transition(StateClosed, "recovered")
		}
	}
}

// RecordFailure records a failed write.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen, "failures exceeded threshold")
		}
	case StateHalfOpen:
		cb.transition(StateOpen, "half-open probe failed")
	}
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns the state and counters.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{State: cb.state, Trips: cb.trips, Rejected: cb.rejected}
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed, "reset")
	cb.failures = 0
}
