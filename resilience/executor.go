package resilience

import "context"

// Executor composes resilience patterns into a single pipeline.
type Executor struct {
	featureToggle  *FeatureToggle
	rateLimiter    *RateLimiter
	bulkhead       *Bulkhead
	circuitBreaker *CircuitBreaker
	failFast       *FailFast
	retry          *RetryManager
	hedge          *Hedge
	timeout        *Timeout

	clientID string
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a resilience pipeline from the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithFeatureToggle gates the whole pipeline behind a FeatureToggle.
func WithFeatureToggle(t *FeatureToggle) ExecutorOption {
	return func(e *Executor) { e.featureToggle = t }
}

// WithRateLimiter adds rate limiting to the executor.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) { e.rateLimiter = rl }
}

// WithClientID tags every RateLimiter admission made by this executor with
// clientID, for per-client tracking.
func WithClientID(clientID string) ExecutorOption {
	return func(e *Executor) { e.clientID = clientID }
}

// WithBulkhead adds bulkhead isolation to the executor.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) { e.bulkhead = b }
}

// WithCircuitBreaker adds a circuit breaker to the executor.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.circuitBreaker = cb }
}

// WithFailFast adds a fail-fast guard to the executor.
func WithFailFast(f *FailFast) ExecutorOption {
	return func(e *Executor) { e.failFast = f }
}

// WithRetry adds retry logic to the executor.
func WithRetry(r *RetryManager) ExecutorOption {
	return func(e *Executor) { e.retry = r }
}

// WithHedge adds hedged parallel attempts to the executor.
func WithHedge(h *Hedge) ExecutorOption {
	return func(e *Executor) { e.hedge = h }
}

// WithTimeout adds a bounded duration to the executor's innermost call.
func WithTimeout(t *Timeout) ExecutorOption {
	return func(e *Executor) { e.timeout = t }
}

// Execute runs op through every configured pattern, outermost first:
//
//  1. FeatureToggle  - gates the call entirely
//  2. RateLimiter    - limits request rate
//  3. Bulkhead       - limits concurrency
//  4. CircuitBreaker - prevents cascading failures
//  5. FailFast       - short-circuits after a recent failure
//  6. Retry          - retries on failure
//  7. Hedge          - races parallel attempts
//  8. Timeout        - bounds execution time (innermost)
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	execute := op

	if e.timeout != nil {
		inner := execute
		execute = func(ctx context.Context) error { return e.timeout.Execute(ctx, inner) }
	}
	if e.hedge != nil {
		inner := execute
		execute = func(ctx context.Context) error { return e.hedge.Execute(ctx, inner) }
	}
	if e.retry != nil {
		inner := execute
		execute = func(ctx context.Context) error { return e.retry.Execute(ctx, inner) }
	}
	if e.failFast != nil {
		inner := execute
		execute = func(ctx context.Context) error { return e.failFast.Execute(ctx, inner) }
	}
	if e.circuitBreaker != nil {
		inner := execute
		execute = func(ctx context.Context) error { return e.circuitBreaker.Execute(ctx, inner) }
	}
	if e.bulkhead != nil {
		inner := execute
		execute = func(ctx context.Context) error { return e.bulkhead.Execute(ctx, inner) }
	}
	if e.rateLimiter != nil {
		inner := execute
		clientID := e.clientID
		execute = func(ctx context.Context) error { return e.rateLimiter.Execute(ctx, clientID, inner) }
	}
	if e.featureToggle != nil {
		inner := execute
		execute = func(ctx context.Context) error { return e.featureToggle.Execute(ctx, inner) }
	}

	return execute(ctx)
}
