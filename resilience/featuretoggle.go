package resilience

import (
	"context"
	"sync/atomic"
)

// FeatureToggleListener observes gate decisions.
type FeatureToggleListener interface {
	OnDisabled()
}

// FeatureToggleConfig configures a FeatureToggle.
type FeatureToggleConfig struct {
	// Enabled is the toggle's initial state. Default: false (the zero value),
	// so a toggle built from an empty config rejects every call.
	Enabled bool

	// Predicate, if set, is consulted in addition to Enabled: both must
	// allow the call for it to proceed. Useful for percentage rollouts or
	// per-context gating; receives the call's context.
	Predicate func(ctx context.Context) bool

	Listeners       []FeatureToggleListener
	GlobalListeners *ListenerRegistry
}

// FeatureToggle gates a call behind a boolean switch (flippable at runtime
// via Enable/Disable) and an optional per-call predicate.
type FeatureToggle struct {
	enabled   atomic.Bool
	predicate func(ctx context.Context) bool
	events    *dispatcher[FeatureToggleListener]
}

// NewFeatureToggle creates a FeatureToggle.
func NewFeatureToggle(config FeatureToggleConfig) *FeatureToggle {
	t := &FeatureToggle{predicate: config.Predicate, events: newDispatcher(config.Listeners)}
	t.enabled.Store(config.Enabled)
	attach(t.events, config.GlobalListeners, t)
	return t
}

// Execute runs op if the toggle is enabled and its predicate (if any)
// allows it, otherwise returns ErrFeatureDisabled.
func (t *FeatureToggle) Execute(ctx context.Context, op func(context.Context) error) error {
	if !t.enabled.Load() || (t.predicate != nil && !t.predicate(ctx)) {
		t.events.each(func(l FeatureToggleListener) { l.OnDisabled() })
		return ErrFeatureDisabled
	}
	return op(ctx)
}

// Enable flips the toggle on.
func (t *FeatureToggle) Enable() { t.enabled.Store(true) }

// Disable flips the toggle off.
func (t *FeatureToggle) Disable() { t.enabled.Store(false) }

// Enabled reports the toggle's current boolean state (ignoring Predicate).
func (t *FeatureToggle) Enabled() bool { return t.enabled.Load() }
