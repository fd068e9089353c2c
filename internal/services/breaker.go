package services

import (
	"sync/atomic"
	"time"
)

// CircuitBreakerState counts consecutive failed generation attempts. Once
// the count reaches the threshold, Allow refuses calls until the cooldown
// has elapsed since the most recent failure. The next allowed call acts as
// a probe: a success closes the breaker and a failure restarts the cooldown.
//
// All fields are atomics so one instance can be shared by concurrent
// sourcing requests.
type CircuitBreakerState struct {
	threshold int64
	cooldown  time.Duration

	failures    atomic.Int64
	lastFailure atomic.Int64 // unix nanos, 0 when never
	lastSuccess atomic.Int64
}

// BreakerSnapshot is a point-in-time copy of the breaker for logs and tests
type BreakerSnapshot struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailure         time.Time `json:"last_failure,omitzero"`
	LastSuccess         time.Time `json:"last_success,omitzero"`
	Open                bool      `json:"open"`
}

// NewCircuitBreakerState returns a closed breaker. A threshold <= 0 never opens.
func NewCircuitBreakerState(threshold int, cooldown time.Duration) *CircuitBreakerState {
	return &CircuitBreakerState{threshold: int64(threshold), cooldown: cooldown}
}

// Allow reports whether a call may go out at now
func (b *CircuitBreakerState) Allow(now time.Time) bool {
	return !b.open(now)
}

func (b *CircuitBreakerState) open(now time.Time) bool {
	if b.threshold <= 0 || b.failures.Load() < b.threshold {
		return false
	}
	last := b.lastFailure.Load()
	return now.Sub(time.Unix(0, last)) < b.cooldown
}

// RecordSuccess closes the breaker
func (b *CircuitBreakerState) RecordSuccess(now time.Time) {
	b.failures.Store(0)
	b.lastSuccess.Store(now.UnixNano())
}

// RecordFailure counts one more failure and returns the new count
func (b *CircuitBreakerState) RecordFailure(now time.Time) int {
	b.lastFailure.Store(now.UnixNano())
	return int(b.failures.Add(1))
}

// Failures returns the current consecutive failure count
func (b *CircuitBreakerState) Failures() int {
	return int(b.failures.Load())
}

// Snapshot copies the current state
func (b *CircuitBreakerState) Snapshot(now time.Time) BreakerSnapshot {
	s := BreakerSnapshot{
		ConsecutiveFailures: b.Failures(),
		Open:                b.open(now),
	}
	if ns := b.lastFailure.Load(); ns != 0 {
		s.LastFailure = time.Unix(0, ns)
	}
	if ns := b.lastSuccess.Load(); ns != 0 {
		s.LastSuccess = time.Unix(0, ns)
	}
	return s
}
