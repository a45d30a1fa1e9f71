package observe

import (
	"context"
	"time"

	"github.com/jonwraymond/failsafe/resilience"
)

// ListenerBridge adapts an Observer into every per-pattern listener
// interface the resilience package defines, so a single instance can be
// passed to each pattern's Listeners slice (or registered once via a
// resilience.ListenerRegistry factory) and have every event logged through
// the Observer's logger. The bridge records log lines only; it does not
// record any metrics.
//
// name identifies the guarded operation in log fields; it is typically the
// pattern's call site (e.g. "upstream-api.search").
type ListenerBridge struct {
	logger Logger
	name   string
}

// NewListenerBridge creates a ListenerBridge that logs through obs.Logger(),
// scoped to name.
func NewListenerBridge(obs Observer, name string) *ListenerBridge {
	return &ListenerBridge{
		logger: obs.Logger().WithOperation(OperationMeta{Name: name}),
		name:   name,
	}
}

func (b *ListenerBridge) field(k string, v any) Field { return Field{Key: k, Value: v} }

// OnRetry implements resilience.RetryListener.
func (b *ListenerBridge) OnRetry(attempt int, err error, delay time.Duration) {
	b.logger.Warn(context.Background(), "retry scheduled",
		b.field("attempt", attempt), b.field("delay_ms", delay.Milliseconds()), b.field("error", err.Error()))
}

// OnSuccess implements resilience.RetryListener.
func (b *ListenerBridge) OnSuccess(attempt int) {
	b.logger.Debug(context.Background(), "retry succeeded", b.field("attempt", attempt))
}

// OnAttemptsExceeded implements resilience.RetryListener.
func (b *ListenerBridge) OnAttemptsExceeded() {
	b.logger.Error(context.Background(), "retry attempts exceeded")
}

// OnStateChange implements resilience.CircuitBreakerListener.
func (b *ListenerBridge) OnStateChange(from, to resilience.CircuitState) {
	b.logger.Warn(context.Background(), "circuit breaker state change",
		b.field("from", from.String()), b.field("to", to.String()))
}

// OnReject implements resilience.CircuitBreakerListener and
// resilience.RateLimiterListener (the latter via the adapter methods below).
func (b *ListenerBridge) OnReject() {
	b.logger.Warn(context.Background(), "call rejected")
}

// OnAllow implements resilience.RateLimiterListener.
func (b *ListenerBridge) OnAllow(clientID string) {
	b.logger.Debug(context.Background(), "admitted", b.field("client_id", clientID))
}

// OnRejectClient implements the per-client variant of
// resilience.RateLimiterListener.OnReject (distinguished by arity from
// CircuitBreaker's OnReject via a dedicated adapter type below).
func (b *ListenerBridge) OnRejectClient(clientID string, retryAfter time.Duration) {
	b.logger.Warn(context.Background(), "rate limited",
		b.field("client_id", clientID), b.field("retry_after_ms", retryAfter.Milliseconds()))
}

// OnTimeout implements resilience.TimeoutListener.
func (b *ListenerBridge) OnTimeout() {
	b.logger.Warn(context.Background(), "operation timed out")
}

// OnAcquire implements resilience.BulkheadListener.
func (b *ListenerBridge) OnAcquire(waited bool) {
	b.logger.Debug(context.Background(), "bulkhead slot acquired", b.field("waited", waited))
}

// OnTrip implements resilience.FailFastListener.
func (b *ListenerBridge) OnTrip(err error) {
	b.logger.Error(context.Background(), "fail-fast tripped", b.field("error", err.Error()))
}

// OnClear implements resilience.FailFastListener.
func (b *ListenerBridge) OnClear() {
	b.logger.Debug(context.Background(), "fail-fast cleared")
}

// OnDisabled implements resilience.FeatureToggleListener.
func (b *ListenerBridge) OnDisabled() {
	b.logger.Debug(context.Background(), "feature disabled, call skipped")
}

// OnHedge implements resilience.HedgeListener.
func (b *ListenerBridge) OnHedge(attempt int) {
	b.logger.Debug(context.Background(), "hedge attempt launched", b.field("attempt", attempt))
}

// OnWinner implements resilience.HedgeListener.
func (b *ListenerBridge) OnWinner(attempt int) {
	b.logger.Debug(context.Background(), "hedge winner", b.field("attempt", attempt))
}

// OnFallback implements resilience.FallbackListener.
func (b *ListenerBridge) OnFallback(err error) {
	b.logger.Warn(context.Background(), "fallback engaged", b.field("error", err.Error()))
}

// rateLimiterAdapter narrows ListenerBridge to resilience.RateLimiterListener,
// whose two-argument OnReject(clientID, retryAfter) would otherwise collide
// with CircuitBreakerListener's zero-argument OnReject() on the same
// receiver.
type rateLimiterAdapter struct{ *ListenerBridge }

func (a rateLimiterAdapter) OnReject(clientID string, retryAfter time.Duration) {
	a.OnRejectClient(clientID, retryAfter)
}

// AsRateLimiterListener returns a resilience.RateLimiterListener view of b.
func (b *ListenerBridge) AsRateLimiterListener() resilience.RateLimiterListener {
	return rateLimiterAdapter{b}
}

var (
	_ resilience.RetryListener          = (*ListenerBridge)(nil)
	_ resilience.CircuitBreakerListener = (*ListenerBridge)(nil)
	_ resilience.TimeoutListener        = (*ListenerBridge)(nil)
	_ resilience.BulkheadListener       = (*ListenerBridge)(nil)
	_ resilience.FailFastListener       = (*ListenerBridge)(nil)
	_ resilience.FeatureToggleListener  = (*ListenerBridge)(nil)
	_ resilience.HedgeListener          = (*ListenerBridge)(nil)
	_ resilience.FallbackListener       = (*ListenerBridge)(nil)
	_ resilience.RateLimiterListener    = rateLimiterAdapter{}
)
