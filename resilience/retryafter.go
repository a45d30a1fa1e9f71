package resilience

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// RetryAfterCalculator computes how long a rejected caller should wait
// before retrying. Implementations must be pure given their inputs plus
// their own internal state, and must never block.
//
// current is the bucket's token count at rejection time, capacity is the
// bucket size, rate is tokens/second, timeUntilNext is how long until the
// next whole token, rejectionCount is how many consecutive times this
// client (or the caller, if clientID is empty) has been rejected, and
// clientID identifies the caller when per-client tracking is enabled.
type RetryAfterCalculator interface {
	Calculate(current, capacity, rate float64, timeUntilNext time.Duration, rejectionCount int, clientID string) time.Duration
}

// FixedCalculator waits exactly until the next token becomes available.
// Simple and efficient, but can cause a thundering herd since every
// rejected client wakes at the same instant.
type FixedCalculator struct{}

// NewFixedCalculator returns a FixedCalculator.
func NewFixedCalculator() *FixedCalculator { return &FixedCalculator{} }

func (*FixedCalculator) Calculate(_, _, _ float64, timeUntilNext time.Duration, _ int, _ string) time.Duration {
	return timeUntilNext
}

// ProportionalCalculator scales the wait inversely with remaining capacity:
// a fuller bucket waits close to timeUntilNext, an emptier one waits up to
// MaxMultiplier times as long.
type ProportionalCalculator struct {
	// MaxMultiplier bounds the scaling at zero utilization. Default: 3.
	MaxMultiplier float64
}

// NewProportionalCalculator creates a ProportionalCalculator with the given
// multiplier cap; maxMultiplier <= 0 defaults to 3.
func NewProportionalCalculator(maxMultiplier float64) *ProportionalCalculator {
	if maxMultiplier <= 0 {
		maxMultiplier = 3
	}
	return &ProportionalCalculator{MaxMultiplier: maxMultiplier}
}

func (c *ProportionalCalculator) Calculate(current, capacity, _ float64, timeUntilNext time.Duration, _ int, _ string) time.Duration {
	base := float64(timeUntilNext)
	if capacity <= 0 {
		return timeUntilNext
	}
	util := current / capacity
	multiplier := 1.0 + ((1.0 - util) * (c.MaxMultiplier - 1.0))
	return time.Duration(base * multiplier)
}

// UtilizationCalculator (a.k.a. Adaptive) applies a piecewise multiplier
// based on how full the bucket still is, slowing clients progressively as
// it drains instead of waiting for a hard cutoff.
type UtilizationCalculator struct {
	// NormalThreshold: utilization at/above this passes through with no wait. Default 0.8.
	NormalThreshold float64
	// WarningThreshold: utilization at/above this (below Normal) waits 1x. Default 0.5.
	WarningThreshold float64
	// AggressiveThreshold: utilization at/above this (below Warning) waits 2x. Default 0.2.
	AggressiveThreshold float64
	// WarningMultiplier is applied in the [Aggressive, Warning) band. Default 2.
	WarningMultiplier float64
	// AggressiveMultiplier is applied below AggressiveThreshold. Default 4.
	AggressiveMultiplier float64
}

// NewUtilizationCalculator returns a UtilizationCalculator with spec
// defaults (0.8/0.5/0.2 thresholds, 2x/4x multipliers).
func NewUtilizationCalculator() *UtilizationCalculator {
	return &UtilizationCalculator{
		NormalThreshold:      0.8,
		WarningThreshold:     0.5,
		AggressiveThreshold:  0.2,
		WarningMultiplier:    2,
		AggressiveMultiplier: 4,
	}
}

func (c *UtilizationCalculator) Calculate(current, capacity, _ float64, timeUntilNext time.Duration, _ int, _ string) time.Duration {
	if capacity <= 0 {
		return timeUntilNext
	}
	util := current / capacity
	switch {
	case util >= c.NormalThreshold:
		return 0
	case util >= c.WarningThreshold:
		return timeUntilNext
	case util >= c.AggressiveThreshold:
		return time.Duration(float64(timeUntilNext) * c.WarningMultiplier)
	default:
		return time.Duration(float64(timeUntilNext) * c.AggressiveMultiplier)
	}
}

// JitterMode selects how JitteredCalculator spreads its random component.
type JitterMode int

const (
	// JitterFull samples uniformly in [0, JitterRange).
	JitterFull JitterMode = iota
	// JitterEqual samples in [JitterRange/2, JitterRange) — "at least half
	// of the configured range plus a uniform remainder", as opposed to
	// "centered around half": see SPEC_FULL.md §9 for why this reading was
	// chosen over the alternative.
	JitterEqual
)

// JitteredCalculator adds random jitter on top of the fixed wait to avoid
// every rejected client retrying at the same instant.
type JitteredCalculator struct {
	// JitterRange bounds the random component. Default 1s.
	JitterRange time.Duration
	Mode        JitterMode
}

// NewJitteredCalculator creates a JitteredCalculator. jitterRange <= 0
// defaults to 1 second.
func NewJitteredCalculator(jitterRange time.Duration, mode JitterMode) *JitteredCalculator {
	if jitterRange <= 0 {
		jitterRange = time.Second
	}
	return &JitteredCalculator{JitterRange: jitterRange, Mode: mode}
}

func (c *JitteredCalculator) Calculate(_, _, _ float64, timeUntilNext time.Duration, _ int, _ string) time.Duration {
	var jitter time.Duration
	switch c.Mode {
	case JitterEqual:
		jitter = c.JitterRange/2 + randDuration(c.JitterRange/2)
	default:
		jitter = randDuration(c.JitterRange)
	}
	return timeUntilNext + jitter
}

func randDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}

// ExponentialCalculator penalizes clients that keep getting rejected,
// multiplying the base wait by Factor^rejectionCount up to MaxBackoff. When
// clientID is non-empty it keeps a calculator-local per-client rejection
// counter instead of trusting the caller's count, periodically resetting
// idle entries.
type ExponentialCalculator struct {
	// Factor is the exponential base. Default 2.
	Factor float64
	// MaxBackoff caps the computed wait. Default 60s.
	MaxBackoff time.Duration

	mu      sync.Mutex
	clients map[string]*exponentialClientState
}

type exponentialClientState struct {
	count      int
	lastAccess time.Time
}

// NewExponentialCalculator creates an ExponentialCalculator. factor <= 0
// defaults to 2; maxBackoff <= 0 defaults to 60s.
func NewExponentialCalculator(factor float64, maxBackoff time.Duration) *ExponentialCalculator {
	if factor <= 0 {
		factor = 2
	}
	if maxBackoff <= 0 {
		maxBackoff = 60 * time.Second
	}
	return &ExponentialCalculator{
		Factor:     factor,
		MaxBackoff: maxBackoff,
		clients:    make(map[string]*exponentialClientState),
	}
}

func (c *ExponentialCalculator) Calculate(_, _, _ float64, timeUntilNext time.Duration, rejectionCount int, clientID string) time.Duration {
	count := rejectionCount
	if clientID != "" {
		count = c.bumpClientLocked(clientID)
	}

	wait := float64(timeUntilNext) * math.Pow(c.Factor, float64(count))
	if wait > float64(c.MaxBackoff) {
		wait = float64(c.MaxBackoff)
	}
	return time.Duration(wait)
}

func (c *ExponentialCalculator) bumpClientLocked(clientID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	st, ok := c.clients[clientID]
	if !ok {
		st = &exponentialClientState{}
		c.clients[clientID] = st
	}
	st.count++
	st.lastAccess = now
	sweepExponentialClientsLocked(c.clients, now)
	return st.count
}

// resetClient clears a single client's rejection streak, called by
// RateLimiter on an admitted request.
func (c *ExponentialCalculator) resetClient(clientID string) {
	if clientID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, clientID)
}

func sweepExponentialClientsLocked(clients map[string]*exponentialClientState, now time.Time) {
	if len(clients) <= maxClientEntries {
		return
	}
	for id, st := range clients {
		if now.Sub(st.lastAccess) > clientStateTTL {
			delete(clients, id)
		}
	}
}

var (
	_ RetryAfterCalculator = (*FixedCalculator)(nil)
	_ RetryAfterCalculator = (*ProportionalCalculator)(nil)
	_ RetryAfterCalculator = (*UtilizationCalculator)(nil)
	_ RetryAfterCalculator = (*JitteredCalculator)(nil)
	_ RetryAfterCalculator = (*ExponentialCalculator)(nil)
)
