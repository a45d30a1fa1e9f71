// Package resilience provides composable reliability patterns for
// protecting calls to unreliable or rate-constrained dependencies.
//
// It implements the core set of patterns used to keep a caller healthy when
// a downstream collaborator is slow, flaky, or overloaded. Patterns compose
// independently or through Executor, which wires them into a single
// request pipeline.
//
// # Patterns
//
//   - [RetryManager]: retries a failing call using a pluggable [Backoff]
//     strategy (constant, sequence, exponential with jitter, fibonacci),
//     optionally gated by a rate limiter admission check per attempt.
//
//   - [CircuitBreaker]: a three-state breaker (Working, Failing,
//     Recovering) that trips after consecutive failures, cools down, then
//     probes recovery before fully reopening.
//
//   - [FailFast]: trips immediately on one qualifying failure and stays
//     tripped for a fixed cooldown — no threshold, no probing.
//
//   - [FeatureToggle]: gates a call behind a boolean switch plus an
//     optional per-context predicate, for runtime kill-switches and
//     percentage rollouts.
//
//   - [Hedge]: races staggered parallel attempts of the same call and
//     returns the first success, cancelling the rest.
//
//   - [Timeout]: bounds a call's execution time with context cancellation.
//
//   - [Bulkhead]: bounds concurrent in-flight calls, optionally queueing a
//     fixed number of additional waiters before rejecting.
//
//   - [Fallback]: substitutes an alternative operation when the primary
//     fails in a qualifying way.
//
//   - [RateLimiter]: token-bucket admission control with a pluggable
//     [RetryAfterCalculator] (fixed, proportional, utilization-aware,
//     jittered, exponential-per-client, or hybrid backpressure) computing
//     how long a rejected caller should wait.
//
// # Execution order
//
// [Executor] composes whichever patterns are configured, outermost first:
//
//  1. FeatureToggle  - gates the call entirely
//  2. RateLimiter    - limits request rate
//  3. Bulkhead       - limits concurrency
//  4. CircuitBreaker - prevents cascading failures
//  5. FailFast       - short-circuits after a recent failure
//  6. Retry          - retries on failure
//  7. Hedge          - races parallel attempts
//  8. Timeout        - bounds execution time (innermost)
//
// # Quick start
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	    FailureThreshold: 5,
//	    ResetTimeout:     time.Minute,
//	})
//
//	err := cb.Execute(ctx, func(ctx context.Context) error {
//	    return callDownstream(ctx)
//	})
//
//	executor := resilience.NewExecutor(
//	    resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
//	        Rate:  100,
//	        Burst: 10,
//	    })),
//	    resilience.WithCircuitBreaker(cb),
//	    resilience.WithRetry(resilience.NewRetryManager(resilience.RetryConfig{
//	        MaxAttempts: 3,
//	        Backoff:     resilience.ExponentialBackoff(100*time.Millisecond, 5*time.Second, 2, resilience.FullJitter()),
//	    })),
//	)
//
//	err = executor.Execute(ctx, func(ctx context.Context) error {
//	    return callDownstream(ctx)
//	})
//
// # Events
//
// Every pattern accepts listeners at construction (the Listeners field) and
// can additionally pull factory-produced listeners from a shared
// [ListenerRegistry] (GlobalListeners), so a single observability bridge can
// be wired once and reused across every manager in a process. Listener
// panics are recovered — a misbehaving observer never breaks the protected
// call.
//
// # Thread safety
//
// All exported types are safe for concurrent use after construction.
// Blocking work (sleeps, context waits) is never performed while a pattern's
// internal mutex is held.
//
// # Errors
//
// Use errors.Is against the sentinels in errors.go: [ErrCircuitOpen],
// [ErrAttemptsExceeded], [ErrRateLimitExceeded] (or unwrap a
// [RateLimitExceededError] for the suggested wait), [ErrBulkheadFull],
// [ErrTimeout], [ErrFailFastOpen], [ErrFeatureDisabled],
// [ErrHedgeAllFailed], [ErrHedgeTimeout].
package resilience
