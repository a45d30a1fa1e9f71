package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// RateLimiterListener observes admission decisions.
type RateLimiterListener interface {
	// OnAllow fires for every admitted request.
	OnAllow(clientID string)
	// OnReject fires for every rejected request, with the computed
	// Retry-After delay.
	OnReject(clientID string, retryAfter time.Duration)
}

// RateLimiterConfig configures a RateLimiter.
type RateLimiterConfig struct {
	// Rate is the number of tokens restored per second. Default: 100.
	Rate float64
	// Burst is the bucket capacity (also the starting token count).
	// Default: 10.
	Burst int

	// PerClient, when true, gives every distinct clientID passed to Acquire
	// its own TokenBucket (sized from Rate/Burst) instead of sharing one
	// global bucket.
	PerClient bool

	// RetryAfter computes the wait surfaced on rejection. Default:
	// FixedCalculator.
	RetryAfter RetryAfterCalculator

	// WaitOnLimit blocks Acquire until a token is available (bounded by
	// MaxWait) instead of returning immediately on rejection.
	WaitOnLimit bool
	// MaxWait bounds a WaitOnLimit wait. Default: 1s.
	MaxWait time.Duration

	Clock Clock

	// Disabled starts the limiter in a bypass state: Acquire admits
	// immediately without touching any bucket. Default: false (enabled).
	// Flip at runtime with Enable/Disable.
	Disabled bool

	Listeners       []RateLimiterListener
	GlobalListeners *ListenerRegistry
}

type clientBucket struct {
	bucket          *TokenBucket
	rejectionCount  int
	lastAccess      time.Time
}

// RateLimiter wraps one or more TokenBuckets with a pluggable
// RetryAfterCalculator, optionally keyed per client.
type RateLimiter struct {
	config  RateLimiterConfig
	clock   Clock
	events  *dispatcher[RateLimiterListener]
	enabled atomic.Bool

	global *TokenBucket

	mu        sync.Mutex
	perClient map[string]*clientBucket
	lastSweep time.Time
}

// NewRateLimiter creates a RateLimiter, applying spec defaults.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 100
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.RetryAfter == nil {
		config.RetryAfter = NewFixedCalculator()
	}
	if config.MaxWait <= 0 {
		config.MaxWait = time.Second
	}
	if config.Clock == nil {
		config.Clock = systemClock
	}

	rl := &RateLimiter{
		config: config,
		clock:  config.Clock,
		events: newDispatcher(config.Listeners),
	}
	if !config.PerClient {
		rl.global = NewTokenBucket(float64(config.Burst), config.Rate, config.Clock)
	} else {
		rl.perClient = make(map[string]*clientBucket)
	}
	rl.enabled.Store(!config.Disabled)
	attach(rl.events, config.GlobalListeners, rl)
	return rl
}

// Enable flips the limiter back on.
func (rl *RateLimiter) Enable() { rl.enabled.Store(true) }

// Disable puts the limiter into bypass: Acquire admits immediately without
// consulting any bucket.
func (rl *RateLimiter) Disable() { rl.enabled.Store(false) }

// Enabled reports whether the limiter is currently applying admission
// control.
func (rl *RateLimiter) Enabled() bool { return rl.enabled.Load() }

// Acquire admits one request for clientID (ignored unless PerClient is
// set), returning nil when admitted. On rejection it returns a
// *RateLimitExceededError carrying the computed Retry-After, unless
// WaitOnLimit is set, in which case it blocks up to MaxWait for a token
// before giving up with the same error kind.
func (rl *RateLimiter) Acquire(ctx context.Context, clientID string) error {
	if !rl.enabled.Load() {
		return nil
	}

	ok, retryAfter, _ := rl.tryTake(clientID)
	if ok {
		rl.resetRejections(clientID)
		rl.events.each(func(l RateLimiterListener) { l.OnAllow(clientID) })
		return nil
	}

	if !rl.config.WaitOnLimit {
		rl.events.each(func(l RateLimiterListener) { l.OnReject(clientID, retryAfter) })
		return &RateLimitExceededError{RetryAfter: retryAfter, ClientID: clientID}
	}

	wait := retryAfter
	if wait > rl.config.MaxWait {
		wait = rl.config.MaxWait
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}

	if ok, retryAfter2, _ := rl.tryTake(clientID); ok {
		rl.resetRejections(clientID)
		rl.events.each(func(l RateLimiterListener) { l.OnAllow(clientID) })
		return nil
	} else {
		retryAfter = retryAfter2
	}
	rl.events.each(func(l RateLimiterListener) { l.OnReject(clientID, retryAfter) })
	return &RateLimitExceededError{RetryAfter: retryAfter, ClientID: clientID}
}

// tryTake attempts one debit and, on failure, computes the Retry-After via
// the configured calculator.
func (rl *RateLimiter) tryTake(clientID string) (ok bool, retryAfter time.Duration, rejections int) {
	bucket, rejections := rl.bucketFor(clientID)

	admitted, timeUntilNext := bucket.Take()
	if admitted {
		return true, 0, rejections
	}

	rejections = rl.bumpRejections(clientID)
	retryAfter = rl.calculator().Calculate(
		bucket.Tokens(), bucket.Capacity(), bucket.Rate(), timeUntilNext, rejections, clientID)
	return false, retryAfter, rejections
}

// calculator returns the currently configured RetryAfterCalculator,
// synchronized against UpdateConfig.
func (rl *RateLimiter) calculator() RetryAfterCalculator {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.config.RetryAfter
}

func (rl *RateLimiter) bucketFor(clientID string) (*TokenBucket, int) {
	if !rl.config.PerClient || clientID == "" {
		return rl.global, 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	st, ok := rl.perClient[clientID]
	if !ok {
		st = &clientBucket{bucket: NewTokenBucket(float64(rl.config.Burst), rl.config.Rate, rl.clock)}
		rl.perClient[clientID] = st
	}
	st.lastAccess = now
	rl.sweepLocked(now)
	return st.bucket, st.rejectionCount
}

func (rl *RateLimiter) bumpRejections(clientID string) int {
	if !rl.config.PerClient || clientID == "" {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	st, ok := rl.perClient[clientID]
	if !ok {
		return 0
	}
	st.rejectionCount++
	return st.rejectionCount
}

func (rl *RateLimiter) resetRejections(clientID string) {
	if ec, ok := rl.calculator().(*ExponentialCalculator); ok {
		ec.resetClient(clientID)
	}
	if !rl.config.PerClient || clientID == "" {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if st, ok := rl.perClient[clientID]; ok {
		st.rejectionCount = 0
	}
}

// sweepLocked bounds the per-client map under the same TTL/hard-cap
// discipline as BackpressureCalculator. Must be called with mu held.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.lastSweep) < clientSweepInterval && len(rl.perClient) <= maxClientEntries {
		return
	}
	rl.lastSweep = now
	for id, st := range rl.perClient {
		if now.Sub(st.lastAccess) > clientStateTTL {
			delete(rl.perClient, id)
		}
	}
}

// Execute runs op if admission succeeds.
func (rl *RateLimiter) Execute(ctx context.Context, clientID string, op func(context.Context) error) error {
	if err := rl.Acquire(ctx, clientID); err != nil {
		return err
	}
	return op(ctx)
}

// Config returns a snapshot of the limiter's current configuration,
// synchronized against concurrent UpdateConfig calls. Used by the
// control-plane config-update handler to preserve fields a partial PUT
// leaves unspecified.
func (rl *RateLimiter) Config() RateLimiterConfig {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.config
}

// UpdateConfig applies a live re-tune for the control-plane's config-update
// surface. A positive rate or burst replaces the corresponding parameter and
// invalidates the underlying TokenBucket(s) so tokens re-initialize to full
// capacity (in PerClient mode, every client's bucket is rebuilt lazily on
// its next access); a zero or negative value leaves that parameter
// untouched. waitOnLimit is always applied; a non-nil calc replaces the
// calculator and a positive maxWait replaces MaxWait.
func (rl *RateLimiter) UpdateConfig(rate float64, burst int, calc RetryAfterCalculator, waitOnLimit bool, maxWait time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rebuild := false
	if rate > 0 {
		rl.config.Rate = rate
		rebuild = true
	}
	if burst > 0 {
		rl.config.Burst = burst
		rebuild = true
	}
	if calc != nil {
		rl.config.RetryAfter = calc
	}
	rl.config.WaitOnLimit = waitOnLimit
	if maxWait > 0 {
		rl.config.MaxWait = maxWait
	}

	if rebuild {
		if !rl.config.PerClient {
			rl.global = NewTokenBucket(float64(rl.config.Burst), rl.config.Rate, rl.clock)
		} else {
			rl.perClient = make(map[string]*clientBucket)
		}
	}
}
