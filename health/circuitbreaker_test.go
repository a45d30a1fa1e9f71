package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/failsafe/resilience"
)

func TestCircuitBreakerChecker_Name(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})
	c := NewCircuitBreakerChecker("downstream", cb)

	if c.Name() != "downstream" {
		t.Errorf("Name() = %q, want %q", c.Name(), "downstream")
	}
}

func TestCircuitBreakerChecker_WorkingIsHealthy(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})
	c := NewCircuitBreakerChecker("downstream", cb)

	result := c.Check(context.Background())
	if result.Status != StatusHealthy {
		t.Errorf("Status = %v, want StatusHealthy", result.Status)
	}
	if result.Error != nil {
		t.Errorf("Error = %v, want nil", result.Error)
	}
}

func TestCircuitBreakerChecker_FailingIsUnhealthy(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 1})
	c := NewCircuitBreakerChecker("downstream", cb)

	boom := errors.New("boom")
	_ = cb.Execute(context.Background(), func(context.Context) error { return boom })

	result := c.Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want StatusUnhealthy", result.Status)
	}
	if !errors.Is(result.Error, resilience.ErrCircuitOpen) {
		t.Errorf("Error = %v, want ErrCircuitOpen", result.Error)
	}
}

func TestCircuitBreakerChecker_RecoveringIsDegraded(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Second,
		Clock:            clock,
	})
	c := NewCircuitBreakerChecker("downstream", cb)

	boom := errors.New("boom")
	_ = cb.Execute(context.Background(), func(context.Context) error { return boom })

	clock.now = clock.now.Add(2 * time.Second)

	result := c.Check(context.Background())
	if result.Status != StatusDegraded {
		t.Errorf("Status = %v, want StatusDegraded (recovering probes admitted)", result.Status)
	}
}

func TestCircuitBreakerChecker_DetailsReportConsecutiveCounts(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 5})
	c := NewCircuitBreakerChecker("downstream", cb)

	_ = cb.Execute(context.Background(), func(context.Context) error { return nil })
	_ = cb.Execute(context.Background(), func(context.Context) error { return nil })

	result := c.Check(context.Background())
	if result.Details["consecutive_successes"] != 2 {
		t.Errorf("consecutive_successes = %v, want 2", result.Details["consecutive_successes"])
	}
	if result.Details["consecutive_failures"] != 0 {
		t.Errorf("consecutive_failures = %v, want 0", result.Details["consecutive_failures"])
	}
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }
