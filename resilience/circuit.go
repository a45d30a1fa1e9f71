package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// CircuitState is one of the three states a CircuitBreaker can be in.
type CircuitState int

const (
	// StateWorking passes every call through, counting failures.
	StateWorking CircuitState = iota
	// StateFailing rejects every call with ErrCircuitOpen until ResetTimeout
	// elapses since the last failure.
	StateFailing
	// StateRecovering lets a bounded number of probe calls through; enough
	// consecutive successes closes the circuit, any failure reopens it.
	StateRecovering
)

// String returns the state name used in logs and metrics labels.
func (s CircuitState) String() string {
	switch s {
	case StateWorking:
		return "working"
	case StateFailing:
		return "failing"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// CircuitBreakerListener observes state transitions and call outcomes.
type CircuitBreakerListener interface {
	OnStateChange(from, to CircuitState)
	OnReject()
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures (in StateWorking) before
	// tripping to StateFailing. Default: 5.
	FailureThreshold int

	// ResetTimeout is how long StateFailing holds before admitting probes in
	// StateRecovering. Default: 30s.
	ResetTimeout time.Duration

	// RecoverySuccessThreshold is how many *consecutive* successful probes
	// in StateRecovering are required to close the circuit back to
	// StateWorking. Default: 1.
	RecoverySuccessThreshold int

	// MaxRecoveryProbes bounds how many concurrent probe calls StateRecovering
	// admits at once. Default: 1.
	MaxRecoveryProbes int

	// IsFailure decides whether an error counts against the threshold.
	// Default: every non-nil error counts.
	IsFailure func(err error) bool

	Clock Clock

	// Disabled starts the breaker in a bypass state: Execute runs op
	// directly, tripping no state machine. Default: false (enabled). Flip
	// at runtime with Enable/Disable.
	Disabled bool

	Listeners       []CircuitBreakerListener
	GlobalListeners *ListenerRegistry
}

// CircuitBreaker implements the three-state Working/Recovering/Failing
// circuit breaker: it trips from Working to Failing after FailureThreshold
// consecutive failures, waits ResetTimeout, then admits probes in
// Recovering until RecoverySuccessThreshold consecutive probes succeed (back
// to Working) or any probe fails (back to Failing).
type CircuitBreaker struct {
	config  CircuitBreakerConfig
	clock   Clock
	events  *dispatcher[CircuitBreakerListener]
	enabled atomic.Bool

	mu                 sync.Mutex
	state              CircuitState
	consecutiveFailures int
	consecutiveSuccesses int
	lastFailureAt      time.Time
	probesInFlight     int
}

// NewCircuitBreaker creates a CircuitBreaker, applying spec defaults.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.RecoverySuccessThreshold <= 0 {
		config.RecoverySuccessThreshold = 1
	}
	if config.MaxRecoveryProbes <= 0 {
		config.MaxRecoveryProbes = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	if config.Clock == nil {
		config.Clock = systemClock
	}

	cb := &CircuitBreaker{
		config: config,
		clock:  config.Clock,
		state:  StateWorking,
		events: newDispatcher(config.Listeners),
	}
	cb.enabled.Store(!config.Disabled)
	attach(cb.events, config.GlobalListeners, cb)
	return cb
}

// Enable flips the breaker back on.
func (cb *CircuitBreaker) Enable() { cb.enabled.Store(true) }

// Disable puts the breaker into bypass: Execute runs op directly without
// consulting or updating the state machine.
func (cb *CircuitBreaker) Disable() { cb.enabled.Store(false) }

// Enabled reports whether the breaker is currently applying admission
// control.
func (cb *CircuitBreaker) Enabled() bool { return cb.enabled.Load() }

// Execute runs op through the breaker: rejects immediately with
// ErrCircuitOpen while Failing or while Recovering's probe slots are full,
// otherwise runs op and feeds the outcome back into the state machine.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if !cb.enabled.Load() {
		return op(ctx)
	}

	if !cb.admit() {
		cb.events.each(func(l CircuitBreakerListener) { l.OnReject() })
		return ErrCircuitOpen
	}

	err := op(ctx)
	cb.report(err)
	return err
}

// State returns the current state, first applying the Failing->Recovering
// timeout transition if due.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked()
}

// Reset forces the breaker back to StateWorking, clearing all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(StateWorking)
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.probesInFlight = 0
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentStateLocked() {
	case StateFailing:
		return false
	case StateRecovering:
		if cb.probesInFlight >= cb.config.MaxRecoveryProbes {
			return false
		}
		cb.probesInFlight++
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) report(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	isFailure := cb.config.IsFailure(err)

	switch cb.state {
	case StateWorking:
		if isFailure {
			cb.consecutiveFailures++
			cb.consecutiveSuccesses = 0
			cb.lastFailureAt = cb.clock.Now()
			if cb.consecutiveFailures >= cb.config.FailureThreshold {
				cb.transitionLocked(StateFailing)
			}
		} else {
			cb.consecutiveFailures = 0
			cb.consecutiveSuccesses++
		}

	case StateRecovering:
		cb.probesInFlight--
		if isFailure {
			cb.lastFailureAt = cb.clock.Now()
			cb.consecutiveSuccesses = 0
			cb.transitionLocked(StateFailing)
		} else {
			cb.consecutiveSuccesses++
			if cb.consecutiveSuccesses >= cb.config.RecoverySuccessThreshold {
				cb.transitionLocked(StateWorking)
				cb.consecutiveFailures = 0
				cb.consecutiveSuccesses = 0
			}
		}
	}
}

// currentStateLocked applies the Failing->Recovering timeout transition.
// Must be called with mu held.
func (cb *CircuitBreaker) currentStateLocked() CircuitState {
	if cb.state == StateFailing && cb.clock.Now().Sub(cb.lastFailureAt) >= cb.config.ResetTimeout {
		cb.transitionLocked(StateRecovering)
		cb.probesInFlight = 0
		cb.consecutiveSuccesses = 0
	}
	return cb.state
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.events.each(func(l CircuitBreakerListener) { l.OnStateChange(from, to) })
}

// UpdateConfig applies a live re-tune for the control-plane's config-update
// surface: a positive failureThreshold or resetTimeout replaces the
// corresponding parameter, a zero or negative value leaves it untouched.
// Does not reset counters or force a state transition.
func (cb *CircuitBreaker) UpdateConfig(failureThreshold int, resetTimeout time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if failureThreshold > 0 {
		cb.config.FailureThreshold = failureThreshold
	}
	if resetTimeout > 0 {
		cb.config.ResetTimeout = resetTimeout
	}
}

// Metrics returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerMetrics{
		State:                cb.currentStateLocked(),
		ConsecutiveFailures:  cb.consecutiveFailures,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
		LastFailureAt:        cb.lastFailureAt,
	}
}

// CircuitBreakerMetrics is a point-in-time snapshot for health/control-plane
// reporting.
type CircuitBreakerMetrics struct {
	State                CircuitState
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastFailureAt        time.Time
}
