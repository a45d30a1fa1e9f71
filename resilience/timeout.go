package resilience

import (
	"context"
	"sync/atomic"
	"time"
)

// TimeoutListener observes timeout outcomes.
type TimeoutListener interface {
	OnTimeout()
}

// TimeoutConfig configures a Timeout.
type TimeoutConfig struct {
	// Duration is the maximum time allowed for the operation. Default: 30s.
	Duration time.Duration

	// Disabled starts the guard in a bypass state: Execute runs op with no
	// deadline attached. Default: false (enabled). Flip at runtime with
	// Enable/Disable.
	Disabled bool

	Listeners       []TimeoutListener
	GlobalListeners *ListenerRegistry
}

// Timeout bounds an operation's execution time, returning ErrTimeout if it
// runs past Duration. The operation's goroutine is abandoned (not killed)
// when it times out — callers must make op respect ctx cancellation to
// avoid a leaked goroutine.
type Timeout struct {
	events   *dispatcher[TimeoutListener]
	enabled  atomic.Bool
	duration atomic.Int64 // time.Duration, swapped live by UpdateConfig
}

// NewTimeout creates a Timeout, applying spec defaults.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Duration <= 0 {
		config.Duration = 30 * time.Second
	}
	t := &Timeout{events: newDispatcher(config.Listeners)}
	t.duration.Store(int64(config.Duration))
	t.enabled.Store(!config.Disabled)
	attach(t.events, config.GlobalListeners, t)
	return t
}

// Enable flips the guard back on.
func (t *Timeout) Enable() { t.enabled.Store(true) }

// Disable puts the guard into bypass: Execute runs op with no deadline.
func (t *Timeout) Disable() { t.enabled.Store(false) }

// Enabled reports whether the guard is currently bounding op's wall time.
func (t *Timeout) Enabled() bool { return t.enabled.Load() }

// UpdateConfig applies a live re-tune for the control-plane's config-update
// surface: a positive duration replaces Duration.
func (t *Timeout) UpdateConfig(duration time.Duration) {
	if duration > 0 {
		t.duration.Store(int64(duration))
	}
}

// Execute runs op, bounded by the configured Duration, or unbounded when
// disabled.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	if !t.enabled.Load() {
		return op(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(t.duration.Load()))
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			t.events.each(func(l TimeoutListener) { l.OnTimeout() })
			return ErrTimeout
		}
		return ctx.Err()
	}
}

// ExecuteWithTimeout is a convenience one-shot wrapper around Timeout.
func ExecuteWithTimeout(ctx context.Context, duration time.Duration, op func(context.Context) error) error {
	t := NewTimeout(TimeoutConfig{Duration: duration})
	return t.Execute(ctx, op)
}
