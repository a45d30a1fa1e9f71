package resilience

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// BulkheadListener observes admission and rejection at a Bulkhead.
type BulkheadListener interface {
	OnAcquire(waited bool)
	OnReject()
}

// BulkheadConfig configures a Bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the number of operations allowed to run at once.
	// Default: 10.
	MaxConcurrent int

	// MaxWaiting bounds the FIFO queue of callers waiting for a slot once
	// MaxConcurrent is saturated. A caller arriving when the queue is also
	// full is rejected immediately with ErrBulkheadFull instead of queueing.
	// Default: 0 (no waiting — saturated callers are rejected immediately).
	MaxWaiting int

	// Disabled starts the bulkhead in a bypass state: Acquire/Execute admit
	// immediately without touching the semaphore or wait queue. Default:
	// false (enabled). Flip at runtime with Enable/Disable.
	Disabled bool

	Listeners       []BulkheadListener
	GlobalListeners *ListenerRegistry
}

// Bulkhead limits concurrent operations to MaxConcurrent, queueing up to
// MaxWaiting additional callers FIFO before rejecting. Slot admission is
// delegated to golang.org/x/sync/semaphore, whose Acquire already folds
// context cancellation into the wait; Bulkhead layers a count-bounded wait
// queue on top, since semaphore.Weighted alone has no concept of "too many
// waiters".
type Bulkhead struct {
	config  BulkheadConfig
	sem     *semaphore.Weighted
	events  *dispatcher[BulkheadListener]
	enabled atomic.Bool

	mu        sync.Mutex
	active    int
	maxActive int
	waiting   int
	rejected  int64
}

// NewBulkhead creates a Bulkhead, applying spec defaults.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	b := &Bulkhead{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrent)),
		events: newDispatcher(config.Listeners),
	}
	b.enabled.Store(!config.Disabled)
	attach(b.events, config.GlobalListeners, b)
	return b
}

// Enable flips the bulkhead back on.
func (b *Bulkhead) Enable() { b.enabled.Store(true) }

// Disable puts the bulkhead into bypass: Acquire/Execute admit immediately
// without touching the semaphore or wait queue.
func (b *Bulkhead) Disable() { b.enabled.Store(false) }

// Enabled reports whether the bulkhead is currently applying admission
// control.
func (b *Bulkhead) Enabled() bool { return b.enabled.Load() }

// Acquire reserves a slot, queueing (up to MaxWaiting) if none is free.
// Returns ErrBulkheadFull when both the slots and the wait queue are full.
// While disabled it returns nil without reserving a slot; callers that pair
// a bypassed Acquire with Release must guard that call the same way Execute
// does.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	if !b.enabled.Load() {
		return nil
	}

	if b.sem.TryAcquire(1) {
		b.onAcquired(false)
		return nil
	}

	if !b.reserveWaitSlot() {
		b.mu.Lock()
		b.rejected++
		b.mu.Unlock()
		b.events.each(func(l BulkheadListener) { l.OnReject() })
		return ErrBulkheadFull
	}
	defer b.releaseWaitSlot()

	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	b.onAcquired(true)
	return nil
}

func (b *Bulkhead) onAcquired(waited bool) {
	b.mu.Lock()
	b.active++
	if b.active > b.maxActive {
		b.maxActive = b.active
	}
	b.mu.Unlock()
	b.events.each(func(l BulkheadListener) { l.OnAcquire(waited) })
}

// reserveWaitSlot claims one of MaxWaiting queue positions, returning false
// if the queue is already full (or MaxWaiting is 0).
func (b *Bulkhead) reserveWaitSlot() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.waiting >= b.config.MaxWaiting {
		return false
	}
	b.waiting++
	return true
}

func (b *Bulkhead) releaseWaitSlot() {
	b.mu.Lock()
	b.waiting--
	b.mu.Unlock()
}

// Release frees a slot acquired via Acquire.
func (b *Bulkhead) Release() {
	b.sem.Release(1)
	b.mu.Lock()
	b.active--
	b.mu.Unlock()
}

// Execute runs op within the bulkhead, or directly (no slot accounting) when
// disabled.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if !b.enabled.Load() {
		return op(ctx)
	}

	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()

	return op(ctx)
}

// UpdateConfig applies a live re-tune for the control-plane's config-update
// surface. MaxWaiting takes effect immediately; MaxConcurrent cannot be
// resized without replacing the underlying semaphore out from under
// in-flight holders, so it is left untouched here.
func (b *Bulkhead) UpdateConfig(maxWaiting int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if maxWaiting >= 0 {
		b.config.MaxWaiting = maxWaiting
	}
}

// Metrics returns a snapshot of bulkhead occupancy.
func (b *Bulkhead) Metrics() BulkheadMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BulkheadMetrics{
		Active:        b.active,
		MaxActive:     b.maxActive,
		Waiting:       b.waiting,
		Available:     b.config.MaxConcurrent - b.active,
		MaxConcurrent: b.config.MaxConcurrent,
		MaxWaiting:    b.config.MaxWaiting,
		Rejected:      b.rejected,
	}
}

// BulkheadMetrics is a point-in-time snapshot of a Bulkhead.
type BulkheadMetrics struct {
	Active        int
	MaxActive     int
	Waiting       int
	Available     int
	MaxConcurrent int
	MaxWaiting    int
	Rejected      int64
}
