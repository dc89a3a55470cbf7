// Package resilience provides retry and circuit breaker primitives for
// upstream API calls.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the current mode of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed passes requests through normally.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests without calling the upstream.
	CircuitOpen
	// CircuitHalfOpen lets probe requests through to test recovery.
	CircuitHalfOpen
)

var stateNames = map[CircuitState]string{
	CircuitClosed:   "closed",
	CircuitOpen:     "open",
	CircuitHalfOpen: "half-open",
}

func (s CircuitState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ErrCircuitOpen is returned when the breaker rejects a call outright.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls when the breaker trips and recovers.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit. Default 5.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before probing.
	// Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMaxProbes is how many probes must succeed before the
	// circuit closes again. Default 1.
	HalfOpenMaxProbes int

	// ShouldTrip decides which errors count toward the threshold. Nil
	// means every non-nil error counts.
	ShouldTrip func(err error) bool

	// OnStateChange observes transitions, if set.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the defaults used by upstream clients.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:  5,
		ResetTimeout:      30 * time.Second,
		HalfOpenMaxProbes: 1,
	}
}

// CircuitBreaker guards a single upstream service.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu          sync.Mutex
	state       CircuitState
	failures    int
	probesOK    int
	lastFailure time.Time

	now func() time.Time
}

// NewCircuitBreaker builds a closed breaker, filling in config defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxProbes <= 0 {
		cfg.HalfOpenMaxProbes = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the circuit is open. The fn error is passed
// through unchanged; ErrCircuitOpen means fn never ran.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteVal(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteVal is Execute for calls that return a value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !cb.admit() {
		return zero, ErrCircuitOpen
	}

	val, err := fn(ctx)
	cb.observe(err)
	return val, err
}

// State reports the effective state, accounting for an elapsed reset
// timeout on an open circuit.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.resetElapsed() {
		return CircuitHalfOpen
	}
	return cb.state
}

// Reset forces the circuit closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	prev := cb.state
	cb.state = CircuitClosed
	cb.failures = 0
	cb.probesOK = 0
	if prev != CircuitClosed {
		cb.notify(prev, CircuitClosed)
	}
}

// Counters exposes the failure count and raw state for logging.
func (cb *CircuitBreaker) Counters() (consecutiveFailures int, state CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures, cb.state
}

// admit reports whether a request may proceed, moving an open circuit to
// half-open once the reset timeout has elapsed.
func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return true
	}
	if cb.resetElapsed() {
		cb.setState(CircuitHalfOpen)
		return true
	}
	return false
}

func (cb *CircuitBreaker) observe(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	trips := err != nil
	if cb.cfg.ShouldTrip != nil {
		trips = trips && cb.cfg.ShouldTrip(err)
	}
	if trips {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.probesOK++
		if cb.probesOK >= cb.cfg.HalfOpenMaxProbes {
			cb.failures = 0
			cb.probesOK = 0
			cb.setState(CircuitClosed)
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailure = cb.now()

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.setState(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.probesOK = 0
		cb.setState(CircuitOpen)
	}
}

func (cb *CircuitBreaker) resetElapsed() bool {
	return cb.now().Sub(cb.lastFailure) >= cb.cfg.ResetTimeout
}

func (cb *CircuitBreaker) setState(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.notify(from, to)
}

func (cb *CircuitBreaker) notify(from, to CircuitState) {
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}
