package llm

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker guards one provider: 5 consecutive failures within 60s
// opens it for 30s; a half-open probe allows exactly one request through,
// closing the breaker on success or reopening it on failure.
type CircuitBreaker struct {
	mu sync.Mutex

	state            breakerState
	consecutiveFails int
	windowStart      time.Time
	openedAt         time.Time
	probeInFlight    bool

	failureThreshold int
	failureWindow    time.Duration
	openDuration     time.Duration
}

func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		state:            breakerClosed,
		failureThreshold: 5,
		failureWindow:    60 * time.Second,
		openDuration:     30 * time.Second,
	}
}

// Allow reports whether a call may proceed right now, and if so whether it
// is the half-open probe (the caller must report its outcome via Report).
func (b *CircuitBreaker) Allow() (allowed bool, isProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true, false
	case breakerOpen:
		if time.Since(b.openedAt) >= b.openDuration {
			b.state = breakerHalfOpen
			b.probeInFlight = true
			return true, true
		}
		return false, false
	case breakerHalfOpen:
		if b.probeInFlight {
			return false, false
		}
		b.probeInFlight = true
		return true, true
	default:
		return false, false
	}
}

// Report records the outcome of a call previously admitted by Allow.
func (b *CircuitBreaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerHalfOpen {
		b.probeInFlight = false
		if success {
			b.state = breakerClosed
			b.consecutiveFails = 0
			return
		}
		b.state = breakerOpen
		b.openedAt = time.Now()
		return
	}

	if success {
		b.consecutiveFails = 0
		return
	}

	now := time.Now()
	if b.consecutiveFails == 0 || now.Sub(b.windowStart) > b.failureWindow {
		b.windowStart = now
		b.consecutiveFails = 1
		return
	}
	b.consecutiveFails++
	if b.consecutiveFails >= b.failureThreshold {
		b.state = breakerOpen
		b.openedAt = now
		b.consecutiveFails = 0
	}
}

// IsOpen reports the breaker's current externally-visible state, used by
// the dispatcher to skip a provider during ordering without consuming a
// probe slot.
func (b *CircuitBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerOpen && time.Since(b.openedAt) >= b.openDuration {
		return false
	}
	return b.state == breakerOpen
}
