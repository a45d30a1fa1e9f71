package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// FailFastListener observes a FailFast guard's transitions.
type FailFastListener interface {
	OnTrip(err error)
	OnClear()
}

// FailFastConfig configures a FailFast guard.
type FailFastConfig struct {
	// Cooldown is how long the guard stays tripped after a qualifying
	// failure before admitting calls again. Default: 10s.
	Cooldown time.Duration

	// ShouldTrip decides whether an error trips the guard. Default: every
	// non-nil error trips it.
	ShouldTrip func(err error) bool

	Clock Clock

	// Disabled starts the guard in a bypass state: Execute runs op directly
	// and never trips. Default: false (enabled). Flip at runtime with
	// Enable/Disable.
	Disabled bool

	Listeners       []FailFastListener
	GlobalListeners *ListenerRegistry
}

// FailFast is the simplest resilience gate: one qualifying failure trips
// it immediately, rejecting every call with ErrFailFastOpen until Cooldown
// elapses — no failure threshold, no probe state, unlike CircuitBreaker.
type FailFast struct {
	config  FailFastConfig
	clock   Clock
	events  *dispatcher[FailFastListener]
	enabled atomic.Bool

	mu        sync.Mutex
	trippedAt time.Time
	tripped   bool
}

// NewFailFast creates a FailFast guard, applying spec defaults.
func NewFailFast(config FailFastConfig) *FailFast {
	if config.Cooldown <= 0 {
		config.Cooldown = 10 * time.Second
	}
	if config.ShouldTrip == nil {
		config.ShouldTrip = func(err error) bool { return err != nil }
	}
	if config.Clock == nil {
		config.Clock = systemClock
	}
	f := &FailFast{config: config, clock: config.Clock, events: newDispatcher(config.Listeners)}
	f.enabled.Store(!config.Disabled)
	attach(f.events, config.GlobalListeners, f)
	return f
}

// Enable flips the guard back on.
func (f *FailFast) Enable() { f.enabled.Store(true) }

// Disable puts the guard into bypass: Execute runs op directly and never
// trips.
func (f *FailFast) Disable() { f.enabled.Store(false) }

// Enabled reports whether the guard is currently applying its trip logic.
func (f *FailFast) Enabled() bool { return f.enabled.Load() }

// Execute rejects immediately with ErrFailFastOpen while tripped, otherwise
// runs op and trips the guard if its error qualifies. While disabled, op
// runs directly and the trip state is neither consulted nor updated.
func (f *FailFast) Execute(ctx context.Context, op func(context.Context) error) error {
	if !f.enabled.Load() {
		return op(ctx)
	}

	if f.isTripped() {
		return ErrFailFastOpen
	}

	err := op(ctx)
	if err != nil && f.config.ShouldTrip(err) {
		f.trip(err)
	}
	return err
}

func (f *FailFast) isTripped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.tripped {
		return false
	}
	if f.clock.Now().Sub(f.trippedAt) >= f.config.Cooldown {
		f.tripped = false
		f.events.each(func(l FailFastListener) { l.OnClear() })
		return false
	}
	return true
}

func (f *FailFast) trip(err error) {
	f.mu.Lock()
	f.tripped = true
	f.trippedAt = f.clock.Now()
	f.mu.Unlock()
	f.events.each(func(l FailFastListener) { l.OnTrip(err) })
}

// Reset clears a tripped guard immediately, ignoring Cooldown.
func (f *FailFast) Reset() {
	f.mu.Lock()
	wasTripped := f.tripped
	f.tripped = false
	f.mu.Unlock()
	if wasTripped {
		f.events.each(func(l FailFastListener) { l.OnClear() })
	}
}
