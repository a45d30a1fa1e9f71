package resilience

import (
	"context"
	"sync/atomic"
)

// FallbackListener observes fallback activations.
type FallbackListener interface {
	OnFallback(err error)
}

// FallbackConfig configures a Fallback.
type FallbackConfig struct {
	// ShouldFallback decides whether an error from the primary operation
	// should be swallowed in favor of running Alternative. Default: every
	// non-nil error falls back.
	ShouldFallback func(err error) bool

	// Disabled starts the fallback in a bypass state: Execute runs primary
	// only, never substituting alternative. Default: false (enabled). Flip
	// at runtime with Enable/Disable.
	Disabled bool

	Listeners       []FallbackListener
	GlobalListeners *ListenerRegistry
}

// Fallback runs a primary operation and, if it fails in a way
// ShouldFallback accepts, replaces the result with an alternative
// operation's outcome instead.
type Fallback struct {
	config  FallbackConfig
	events  *dispatcher[FallbackListener]
	enabled atomic.Bool
}

// NewFallback creates a Fallback, applying spec defaults.
func NewFallback(config FallbackConfig) *Fallback {
	if config.ShouldFallback == nil {
		config.ShouldFallback = func(err error) bool { return err != nil }
	}
	f := &Fallback{config: config, events: newDispatcher(config.Listeners)}
	f.enabled.Store(!config.Disabled)
	attach(f.events, config.GlobalListeners, f)
	return f
}

// Enable flips the fallback back on.
func (f *Fallback) Enable() { f.enabled.Store(true) }

// Disable puts the fallback into bypass: Execute runs primary only.
func (f *Fallback) Disable() { f.enabled.Store(false) }

// Enabled reports whether the fallback is currently eligible to substitute
// alternative for a qualifying primary failure.
func (f *Fallback) Enabled() bool { return f.enabled.Load() }

// Execute runs primary; on a qualifying failure it runs alternative instead
// and returns that result. A non-qualifying failure is returned as-is. While
// disabled, primary's result is always returned as-is.
func (f *Fallback) Execute(ctx context.Context, primary, alternative func(context.Context) error) error {
	err := primary(ctx)
	if !f.enabled.Load() {
		return err
	}
	if err == nil || !f.config.ShouldFallback(err) {
		return err
	}
	f.events.each(func(l FallbackListener) { l.OnFallback(err) })
	return alternative(ctx)
}
