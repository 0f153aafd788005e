// Package circuitbreaker implements the per-model cooldown breaker used by
// the health tracker. Each model owns its own CircuitBreaker instance.
//
// State transitions:
//
//	Closed → Open     when failures ≥ FailureThreshold (failures reset to 0)
//	Open   → Closed   once Cooldown elapses, or on any recorded success
//
// A success while closed decrements the failure count by one instead of
// clearing it, so a flapping model recovers gradually.
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the circuit breaker's current state.
type State int

const (
	// StateClosed is normal operation. The model is eligible for dispatch.
	StateClosed State = iota
	// StateOpen means the model is cooling down and must not be dispatched to.
	StateOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Default thresholds.
const (
	DefaultFailureThreshold = 3
	DefaultCooldown         = 2 * time.Minute
)

// CircuitBreaker guards a single downstream model.
type CircuitBreaker struct {
	mu               sync.Mutex
	failureCount     int
	failureThreshold int
	cooldown         time.Duration
	openUntil        time.Time
	now              func() time.Time
}

// New creates a CircuitBreaker with the given threshold and cooldown.
// Defaults are applied for zero/negative values.
func New(failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.now = now
	return cb
}

// State returns Open while the cooldown window is in the future.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateAt(cb.now())
}

// stateAt must be called with cb.mu held.
func (cb *CircuitBreaker) stateAt(now time.Time) State {
	if !cb.openUntil.IsZero() && cb.openUntil.After(now) {
		return StateOpen
	}
	return StateClosed
}

// Allow reports whether the model may be dispatched to at instant now.
func (cb *CircuitBreaker) Allow(now time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateAt(now) != StateOpen
}

// Failures returns the failure count accumulated since the last trip.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

// OpenUntil returns the cooldown expiry, or the zero time when never tripped
// or cleared by a success.
func (cb *CircuitBreaker) OpenUntil() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.openUntil
}

// Cooldown returns the configured open duration.
func (cb *CircuitBreaker) Cooldown() time.Duration { return cb.cooldown }

// RecordSuccess notifies the breaker that a call succeeded.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.failureCount > 0 {
		cb.failureCount--
	}
	cb.openUntil = time.Time{}
}

// RecordFailure notifies the breaker that a call failed. It returns true when
// this failure tripped the breaker.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	if cb.failureCount < cb.failureThreshold {
		return false
	}
	cb.openUntil = cb.now().Add(cb.cooldown)
	cb.failureCount = 0
	return true
}
