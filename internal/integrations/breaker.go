package integrations

import (
	"sync"
	"time"
)

// CircuitState represents the circuit breaker state.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal: requests flow through
	CircuitOpen                         // Tripped: requests fail fast
	CircuitHalfOpen                     // Probe: one request allowed to test recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker opens after threshold failures within window and fails calls fast
// until the window has passed, then lets a single probe through.
// Only transport errors and 5xx responses count as failures.
type Breaker struct {
	mu            sync.Mutex
	threshold     int
	window        time.Duration
	failures      []time.Time
	state         CircuitState
	openedAt      time.Time
	probeInFlight bool
	now           func() time.Time
}

// NewBreaker creates a breaker. Non-positive values select 5 failures in 30s.
func NewBreaker(threshold int, window time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = 30 * time.Second
	}
	return &Breaker{threshold: threshold, window: window, now: time.Now}
}

// Allow returns ErrCircuitOpen while the circuit is open or a probe is in
// flight.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.now().Sub(b.openedAt) > b.window {
			b.state = CircuitHalfOpen
			b.probeInFlight = true
			return nil
		}
		return ErrCircuitOpen
	case CircuitHalfOpen:
		if b.probeInFlight {
			return ErrCircuitOpen
		}
		b.probeInFlight = true
	}
	return nil
}

// RecordFailure counts a failed call. A failed probe reopens the circuit
// immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.state == CircuitHalfOpen {
		b.state = CircuitOpen
		b.openedAt = now
		b.probeInFlight = false
		return
	}

	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = append(kept, now)
	if len(b.failures) >= b.threshold {
		b.state = CircuitOpen
		b.openedAt = now
	}
}

// RecordSuccess closes a half-open circuit and clears the failure history.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = CircuitClosed
	b.failures = nil
	b.probeInFlight = false
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
