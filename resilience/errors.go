package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for resilience operations. Use errors.Is to check kind;
// RateLimitExceededError additionally carries the suggested wait.
var (
	// ErrCircuitOpen is returned when the circuit breaker is in the Failing state.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is failing")

	// ErrAttemptsExceeded is returned when a retry's attempt budget is exhausted.
	ErrAttemptsExceeded = errors.New("resilience: attempts exceeded")

	// ErrRateLimitExceeded is the sentinel wrapped by RateLimitExceededError.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrBulkheadFull is returned when the bulkhead is at capacity and the wait
	// queue (if any) is also full.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an operation exceeds its configured duration.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrFailFastOpen is returned while a FailFast guard is open.
	ErrFailFastOpen = errors.New("resilience: fail-fast open")

	// ErrFeatureDisabled is returned when a FeatureToggle is off or its
	// predicate rejected the call.
	ErrFeatureDisabled = errors.New("resilience: feature disabled")

	// ErrHedgeAllFailed is returned when every hedge attempt failed.
	ErrHedgeAllFailed = errors.New("resilience: all hedge attempts failed")

	// ErrHedgeTimeout is returned when the caller's context deadline passes
	// before any hedge attempt has returned. HedgeConfig has no timeout of
	// its own; if an attempt already failed, that error is returned instead.
	ErrHedgeTimeout = errors.New("resilience: hedge timed out")

	// ErrCacheMiss is not returned by any function in this package;
	// cache.Manager.Get reports a miss with the cache package's own ErrCacheMiss.
	ErrCacheMiss = errors.New("resilience: cache miss")

	// errEmptyBucket is an internal TokenBucket signal. It is never returned
	// to a RateLimiter caller; RateLimiter converts it to
	// RateLimitExceededError.
	errEmptyBucket = errors.New("resilience: token bucket empty")
)

// RateLimitExceededError carries the calculated Retry-After delay alongside
// the rejection. Callers that need the HTTP wire representation (§6) should
// use RetryAfterSeconds/RetryAfterMillis.
type RateLimitExceededError struct {
	// RetryAfter is how long the caller should wait before retrying.
	RetryAfter time.Duration
	// ClientID is the client that was rejected, if tracked.
	ClientID string
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("resilience: rate limit exceeded, retry after %s", e.RetryAfter)
}

func (e *RateLimitExceededError) Unwrap() error {
	return ErrRateLimitExceeded
}

// RetryAfterMillis rounds the retry delay to whole milliseconds.
func (e *RateLimitExceededError) RetryAfterMillis() int64 {
	if e.RetryAfter <= 0 {
		return 0
	}
	return e.RetryAfter.Milliseconds()
}

// RetryAfterSeconds rounds the retry delay UP to whole seconds, with a
// minimum of 1 whenever the delay is positive but under a second — this
// matches the HTTP Retry-After header contract in spec §6.
func (e *RateLimitExceededError) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	secs := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}
