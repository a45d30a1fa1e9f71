package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/failsafe/resilience"
)

// CircuitBreakerChecker adapts a resilience.CircuitBreaker into a Checker,
// so its Failing/Recovering/Working state surfaces on /readyz and /health
// alongside every other dependency check.
type CircuitBreakerChecker struct {
	name    string
	breaker *resilience.CircuitBreaker
}

// NewCircuitBreakerChecker creates a Checker named name that reports
// breaker's current state.
func NewCircuitBreakerChecker(name string, breaker *resilience.CircuitBreaker) *CircuitBreakerChecker {
	return &CircuitBreakerChecker{name: name, breaker: breaker}
}

// Name implements Checker.
func (c *CircuitBreakerChecker) Name() string { return c.name }

// Check implements Checker: Working maps to healthy, Recovering to
// degraded (the dependency is suspect but being probed), Failing to
// unhealthy.
func (c *CircuitBreakerChecker) Check(ctx context.Context) Result {
	metrics := c.breaker.Metrics()
	state := c.breaker.State()

	details := map[string]any{
		"consecutive_failures":  metrics.ConsecutiveFailures,
		"consecutive_successes": metrics.ConsecutiveSuccesses,
	}

	switch state {
	case resilience.StateWorking:
		return Healthy(fmt.Sprintf("%s circuit working", c.name)).WithDetails(details)
	case resilience.StateRecovering:
		return Degraded(fmt.Sprintf("%s circuit recovering", c.name)).WithDetails(details)
	default:
		return Unhealthy(fmt.Sprintf("%s circuit failing", c.name), resilience.ErrCircuitOpen).WithDetails(details)
	}
}

var _ Checker = (*CircuitBreakerChecker)(nil)
