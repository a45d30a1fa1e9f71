package resilience

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// HedgeListener observes hedge attempts.
type HedgeListener interface {
	// OnHedge fires each time an additional attempt is launched (attempt 2
	// and onward — attempt 1 is the primary and does not trigger this).
	OnHedge(attempt int)
	// OnWinner fires once, naming the attempt whose result was used.
	OnWinner(attempt int)
}

// HedgeConfig configures a Hedge.
type HedgeConfig struct {
	// MaxAttempts is the total number of attempts that may run, including
	// the primary. Default: 2.
	MaxAttempts int

	// Delay is how long to wait after launching an attempt before launching
	// the next one, provided no attempt has succeeded yet. Default: 0 (every
	// attempt up to MaxAttempts launches immediately, with no stagger).
	Delay time.Duration

	// Disabled starts the hedge in a bypass state: Execute runs op exactly
	// once, with no racing attempts. Default: false (enabled). Flip at
	// runtime with Enable/Disable.
	Disabled bool

	Listeners       []HedgeListener
	GlobalListeners *ListenerRegistry
}

// Hedge runs up to MaxAttempts copies of an operation in parallel,
// staggered by Delay, and returns the first success; the rest are
// cancelled. If every launched attempt fails, it returns the last error
// wrapped by ErrHedgeAllFailed.
type Hedge struct {
	config  HedgeConfig
	events  *dispatcher[HedgeListener]
	enabled atomic.Bool
}

// NewHedge creates a Hedge, applying spec defaults.
func NewHedge(config HedgeConfig) *Hedge {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 2
	}
	if config.Delay < 0 {
		config.Delay = 0
	}
	h := &Hedge{config: config, events: newDispatcher(config.Listeners)}
	h.enabled.Store(!config.Disabled)
	attach(h.events, config.GlobalListeners, h)
	return h
}

// Enable flips the hedge back on.
func (h *Hedge) Enable() { h.enabled.Store(true) }

// Disable puts the hedge into bypass: Execute runs op exactly once.
func (h *Hedge) Disable() { h.enabled.Store(false) }

// Enabled reports whether the hedge is currently racing attempts.
func (h *Hedge) Enabled() bool { return h.enabled.Load() }

type hedgeResult struct {
	attempt int
	err     error
}

// Execute races up to MaxAttempts invocations of op against each other, or
// runs op exactly once when disabled.
func (h *Hedge) Execute(ctx context.Context, op func(context.Context) error) error {
	if !h.enabled.Load() {
		return op(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan hedgeResult, h.config.MaxAttempts)
	var wg sync.WaitGroup

	launch := func(attempt int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := op(ctx)
			select {
			case results <- hedgeResult{attempt, err}:
			case <-ctx.Done():
			}
		}()
	}

	launch(1)

	var failures int
	var lastErr error
	attemptsLaunched := 1

	timer := time.NewTimer(h.config.Delay)
	defer timer.Stop()

	for {
		select {
		case res := <-results:
			if res.err == nil {
				cancel()
				h.events.each(func(l HedgeListener) { l.OnWinner(res.attempt) })
				wg.Wait()
				return nil
			}
			failures++
			lastErr = res.err
			if failures >= attemptsLaunched && attemptsLaunched >= h.config.MaxAttempts {
				wg.Wait()
				return fmt.Errorf("%w: %v", ErrHedgeAllFailed, lastErr)
			}

		case <-timer.C:
			if attemptsLaunched < h.config.MaxAttempts {
				attemptsLaunched++
				h.events.each(func(l HedgeListener) { l.OnHedge(attemptsLaunched) })
				launch(attemptsLaunched)
				timer.Reset(h.config.Delay)
			}

		case <-ctx.Done():
			wg.Wait()
			if lastErr != nil {
				return lastErr
			}
			if ctx.Err() == context.DeadlineExceeded {
				return ErrHedgeTimeout
			}
			return ctx.Err()
		}
	}
}
