package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// RetryListener observes a RetryManager's attempts.
type RetryListener interface {
	// OnRetry fires before each retry sleep, in source order for a single
	// call: attempt k precedes attempt k+1.
	OnRetry(attempt int, err error, delay time.Duration)
	// OnSuccess fires once, on the attempt that finally succeeded.
	OnSuccess(attempt int)
	// OnAttemptsExceeded fires once, as the terminal event of a call whose
	// budget ran out.
	OnAttemptsExceeded()
}

// RetryConfig configures a RetryManager.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	// MaxAttempts <= 0 means unbounded.
	MaxAttempts int

	// Backoff computes the delay between attempts. Default: a constant
	// 100ms.
	Backoff Backoff

	// RetryIf decides whether an error should trigger another attempt.
	// Default: every non-nil error is retried.
	RetryIf func(err error) bool

	// Limiter, if set, must admit before every attempt (including the
	// first). A rejection counts as that attempt's failure, subject to
	// RetryIf/MaxAttempts like any other error.
	Limiter *RateLimiter

	// Listeners are invoked in declaration order for every event of a call.
	Listeners []RetryListener
	// GlobalListeners, if set, supplies factory-produced listeners shared
	// across all RetryManagers (see ListenerRegistry).
	GlobalListeners *ListenerRegistry

	// Disabled starts the manager in a bypass state: Execute calls op once
	// and returns, with no retries. Default: false (enabled). Flip at
	// runtime with Enable/Disable.
	Disabled bool
}

// RetryManager executes an operation up to MaxAttempts times, sleeping on
// Backoff between attempts, retrying only errors RetryIf accepts.
type RetryManager struct {
	config  RetryConfig
	events  *dispatcher[RetryListener]
	enabled atomic.Bool

	mu sync.Mutex // guards config.MaxAttempts/Backoff against UpdateConfig
}

// NewRetryManager creates a RetryManager, applying spec defaults.
func NewRetryManager(config RetryConfig) *RetryManager {
	if config.Backoff == nil {
		config.Backoff = ConstantBackoff(100 * time.Millisecond)
	}
	if config.RetryIf == nil {
		config.RetryIf = func(err error) bool { return err != nil }
	}

	m := &RetryManager{
		config: config,
		events: newDispatcher(config.Listeners),
	}
	m.enabled.Store(!config.Disabled)
	attach(m.events, config.GlobalListeners, m)
	return m
}

// Enable flips the manager back on.
func (m *RetryManager) Enable() { m.enabled.Store(true) }

// Disable puts the manager into bypass: Execute calls op exactly once.
func (m *RetryManager) Disable() { m.enabled.Store(false) }

// Enabled reports whether the manager is currently applying retries.
func (m *RetryManager) Enabled() bool { return m.enabled.Load() }

// UpdateConfig applies a live re-tune for the control-plane's config-update
// surface: a positive maxAttempts replaces MaxAttempts, a non-nil backoff
// replaces Backoff. Zero/nil values leave the corresponding parameter
// untouched.
func (m *RetryManager) UpdateConfig(maxAttempts int, backoff Backoff) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if maxAttempts > 0 {
		m.config.MaxAttempts = maxAttempts
	}
	if backoff != nil {
		m.config.Backoff = backoff
	}
}

func (m *RetryManager) maxAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config.MaxAttempts
}

func (m *RetryManager) backoff() Backoff {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config.Backoff
}

// Execute runs op, retrying per configuration. The number of calls to op
// equals min(MaxAttempts, 1+watchedFailures) when MaxAttempts > 0, or
// exactly 1+watchedFailures when unbounded. While disabled, op runs exactly
// once and its result is returned without retry bookkeeping.
func (m *RetryManager) Execute(ctx context.Context, op func(context.Context) error) error {
	if !m.enabled.Load() {
		return op(ctx)
	}

	var lastErr error

	for attempt := 1; ; attempt++ {
		if m.config.Limiter != nil {
			if err := m.config.Limiter.Acquire(ctx, ""); err != nil {
				lastErr = err
				if !m.retryDecision(ctx, attempt, err, &lastErr) {
					return lastErr
				}
				continue
			}
		}

		err := op(ctx)
		if err == nil {
			m.events.each(func(l RetryListener) { l.OnSuccess(attempt) })
			return nil
		}
		lastErr = err

		if !m.retryDecision(ctx, attempt, err, &lastErr) {
			return lastErr
		}
	}
}

// retryDecision returns true if the caller should try again (having already
// slept), or false if Execute must return *outErr now. On a hard stop driven
// by exhausted attempts it rewrites *outErr to ErrAttemptsExceeded and fires
// OnAttemptsExceeded; on a non-retryable error it leaves *outErr as err and
// returns false without firing any terminal event (the caller propagates the
// original error, per spec §7: retry never swallows an error it did not
// cause).
func (m *RetryManager) retryDecision(ctx context.Context, attempt int, err error, outErr *error) bool {
	if !m.config.RetryIf(err) {
		return false
	}
	if maxAttempts := m.maxAttempts(); maxAttempts > 0 && attempt >= maxAttempts {
		m.events.each(func(l RetryListener) { l.OnAttemptsExceeded() })
		*outErr = ErrAttemptsExceeded
		return false
	}

	delay := m.backoff()(attempt)
	m.events.each(func(l RetryListener) { l.OnRetry(attempt, err, delay) })

	select {
	case <-ctx.Done():
		*outErr = ctx.Err()
		return false
	case <-time.After(delay):
		return true
	}
}
