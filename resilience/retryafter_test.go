package resilience

import (
	"testing"
	"time"
)

func TestFixedCalculator(t *testing.T) {
	c := NewFixedCalculator()

	got := c.Calculate(5, 10, 1, 250*time.Millisecond, 3, "client")
	if got != 250*time.Millisecond {
		t.Errorf("Calculate() = %v, want 250ms", got)
	}
}

func TestProportionalCalculator(t *testing.T) {
	c := NewProportionalCalculator(3)

	// Full bucket (util=1): multiplier = 1
	got := c.Calculate(10, 10, 1, 100*time.Millisecond, 0, "")
	if got != 100*time.Millisecond {
		t.Errorf("full bucket: got %v, want 100ms", got)
	}

	// Empty bucket (util=0): multiplier = MaxMultiplier
	got = c.Calculate(0, 10, 1, 100*time.Millisecond, 0, "")
	if got != 300*time.Millisecond {
		t.Errorf("empty bucket: got %v, want 300ms", got)
	}

	// Half full: multiplier = 1 + 0.5*(3-1) = 2
	got = c.Calculate(5, 10, 1, 100*time.Millisecond, 0, "")
	if got != 200*time.Millisecond {
		t.Errorf("half bucket: got %v, want 200ms", got)
	}
}

func TestNewProportionalCalculator_DefaultMultiplier(t *testing.T) {
	c := NewProportionalCalculator(0)
	if c.MaxMultiplier != 3 {
		t.Errorf("MaxMultiplier = %v, want 3", c.MaxMultiplier)
	}
}

func TestProportionalCalculator_ZeroCapacity(t *testing.T) {
	c := NewProportionalCalculator(3)
	got := c.Calculate(0, 0, 1, 50*time.Millisecond, 0, "")
	if got != 50*time.Millisecond {
		t.Errorf("zero capacity: got %v, want timeUntilNext unchanged", got)
	}
}

func TestUtilizationCalculator(t *testing.T) {
	c := NewUtilizationCalculator()

	cases := []struct {
		name    string
		current float64
		want    time.Duration
	}{
		{"normal (>= 0.8)", 9, 0},
		{"warning (>= 0.5)", 6, 100 * time.Millisecond},
		{"aggressive band (>= 0.2)", 3, 200 * time.Millisecond},
		{"below aggressive", 1, 400 * time.Millisecond},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Calculate(tt.current, 10, 1, 100*time.Millisecond, 0, "")
			if got != tt.want {
				t.Errorf("Calculate(%v/10) = %v, want %v", tt.current, got, tt.want)
			}
		})
	}
}

func TestUtilizationCalculator_ZeroCapacity(t *testing.T) {
	c := NewUtilizationCalculator()
	got := c.Calculate(0, 0, 1, 50*time.Millisecond, 0, "")
	if got != 50*time.Millisecond {
		t.Errorf("zero capacity: got %v, want timeUntilNext unchanged", got)
	}
}

func TestJitteredCalculator_Full(t *testing.T) {
	c := NewJitteredCalculator(100*time.Millisecond, JitterFull)

	for i := 0; i < 20; i++ {
		got := c.Calculate(0, 0, 0, 50*time.Millisecond, 0, "")
		if got < 50*time.Millisecond || got >= 150*time.Millisecond {
			t.Fatalf("Calculate() = %v, want in [50ms, 150ms)", got)
		}
	}
}

func TestJitteredCalculator_Equal(t *testing.T) {
	c := NewJitteredCalculator(100*time.Millisecond, JitterEqual)

	for i := 0; i < 20; i++ {
		got := c.Calculate(0, 0, 0, 50*time.Millisecond, 0, "")
		if got < 100*time.Millisecond || got >= 150*time.Millisecond {
			t.Fatalf("Calculate() = %v, want in [100ms, 150ms)", got)
		}
	}
}

func TestNewJitteredCalculator_DefaultRange(t *testing.T) {
	c := NewJitteredCalculator(0, JitterFull)
	if c.JitterRange != time.Second {
		t.Errorf("JitterRange = %v, want 1s", c.JitterRange)
	}
}

func TestExponentialCalculator_NoClientID(t *testing.T) {
	c := NewExponentialCalculator(2, time.Minute)

	got := c.Calculate(0, 0, 0, 100*time.Millisecond, 3, "")
	want := 800 * time.Millisecond // 100ms * 2^3
	if got != want {
		t.Errorf("Calculate() = %v, want %v", got, want)
	}
}

func TestExponentialCalculator_WithClientID(t *testing.T) {
	c := NewExponentialCalculator(2, time.Minute)

	first := c.Calculate(0, 0, 0, 100*time.Millisecond, 0, "alice")
	second := c.Calculate(0, 0, 0, 100*time.Millisecond, 0, "alice")
	third := c.Calculate(0, 0, 0, 100*time.Millisecond, 0, "alice")

	// Per-client counter ignores the passed rejectionCount and tracks its own streak.
	if first != 200*time.Millisecond {
		t.Errorf("first = %v, want 200ms (count=1)", first)
	}
	if second != 400*time.Millisecond {
		t.Errorf("second = %v, want 400ms (count=2)", second)
	}
	if third != 800*time.Millisecond {
		t.Errorf("third = %v, want 800ms (count=3)", third)
	}
}

func TestExponentialCalculator_CapsAtMaxBackoff(t *testing.T) {
	c := NewExponentialCalculator(2, 500*time.Millisecond)

	got := c.Calculate(0, 0, 0, 100*time.Millisecond, 10, "")
	if got != 500*time.Millisecond {
		t.Errorf("Calculate() = %v, want 500ms (capped)", got)
	}
}

func TestExponentialCalculator_ResetClient(t *testing.T) {
	c := NewExponentialCalculator(2, time.Minute)

	_ = c.Calculate(0, 0, 0, 100*time.Millisecond, 0, "alice")
	_ = c.Calculate(0, 0, 0, 100*time.Millisecond, 0, "alice")
	c.resetClient("alice")

	got := c.Calculate(0, 0, 0, 100*time.Millisecond, 0, "alice")
	if got != 200*time.Millisecond {
		t.Errorf("after reset, Calculate() = %v, want 200ms (count restarted at 1)", got)
	}
}

func TestNewExponentialCalculator_Defaults(t *testing.T) {
	c := NewExponentialCalculator(0, 0)
	if c.Factor != 2 {
		t.Errorf("Factor = %v, want 2", c.Factor)
	}
	if c.MaxBackoff != 60*time.Second {
		t.Errorf("MaxBackoff = %v, want 60s", c.MaxBackoff)
	}
}
