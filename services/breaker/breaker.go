package breaker

import (
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed passes requests through normally.
	StateClosed State = iota

	// StateOpen short-circuits every request without a network attempt.
	StateOpen

	// StateHalfOpen admits a limited number of trial requests.
	StateHalfOpen
)

// String returns the lowercase state name for logs and health output.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the breaker thresholds.
type Config struct {
	// FailureThreshold is the consecutive provider-side failure count
	// that opens the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before trial
	// requests are admitted.
	RecoveryTimeout time.Duration

	// HalfOpenMaxCalls is the number of trial requests admitted in
	// half-open state before the circuit decides closed or open.
	HalfOpenMaxCalls int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenMaxCalls: 2,
	}
}

// Breaker tracks the health of a single provider. The breaker cycles
// closed -> open -> half-open indefinitely; there is no terminal state.
// Transitions are infrequent, so a plain mutex is sufficient.
type Breaker struct {
	mu               sync.Mutex
	cfg              Config
	state            State
	failures         int
	openedAt         time.Time
	halfOpenAdmitted int
	halfOpenSuccess  int

	now func() time.Time // test hook
}

// New creates a breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultConfig().RecoveryTimeout
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = DefaultConfig().HalfOpenMaxCalls
	}
	return &Breaker{cfg: cfg, state: StateClosed, now: time.Now}
}

// Allow reports whether a request may proceed. In half-open state a true
// return also consumes one trial slot, so callers must follow up with
// RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.RecoveryTimeout {
			return false
		}
		b.state = StateHalfOpen
		b.halfOpenAdmitted = 1
		b.halfOpenSuccess = 0
		return true
	case StateHalfOpen:
		if b.halfOpenAdmitted >= b.cfg.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenAdmitted++
		return true
	default:
		return false
	}
}

// RecordSuccess notes a successful call. Completing the half-open trial
// quota closes the circuit and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.cfg.HalfOpenMaxCalls {
			b.state = StateClosed
			b.failures = 0
		}
	}
}

// RecordFailure notes a provider-side failure. Only callers that have
// classified the error as provider-side should invoke this; client errors
// must not advance the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.open()
		}
	case StateHalfOpen:
		// Any trial failure reopens and restarts the recovery timer.
		b.open()
	}
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.halfOpenAdmitted = 0
	b.halfOpenSuccess = 0
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
