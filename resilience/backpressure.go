package resilience

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

const (
	// backpressureWindowSize (W) is the size of the recent-latency ring used
	// for both components of the backpressure score.
	backpressureWindowSize = 100

	// backpressureHistorySize bounds the slower-moving ring used only for
	// baseline re-estimation.
	backpressureHistorySize = 5000

	// baselineUpdateProbability is how often a recorded latency is even
	// considered for baseline adaptation. Kept low and stochastic so a
	// load spike cannot train the SLO baseline upward quickly — see
	// SPEC_FULL.md §9.
	baselineUpdateProbability = 0.1

	// baselineHistoryMinSamples gates baseline updates until there is enough
	// history to compute a meaningful p95.
	baselineHistoryMinSamples = 50

	// baselineEMAWeight is the weight given to the freshly observed p95 in
	// the exponential moving average.
	baselineEMAWeight = 0.05

	// clientStateTTL is how long a per-client state may sit idle before it is
	// considered stale and eligible for sweeping.
	clientStateTTL = time.Hour

	// clientSweepInterval bounds how often a stale sweep actually runs,
	// amortizing its cost across mutating calls.
	clientSweepInterval = 5 * time.Minute

	// maxClientEntries is the hard cap on per-client maps, independent of
	// the TTL, to bound memory under unbounded distinct-client traffic
	// (spec §9 "per-client state explosion").
	maxClientEntries = 100000
)

// ring is a fixed-capacity circular buffer of float64 samples.
type ring struct {
	buf   []float64
	next  int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]float64, capacity)}
}

func (r *ring) add(x float64) {
	r.buf[r.next] = x
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *ring) values() []float64 {
	return append([]float64(nil), r.buf[:r.count]...)
}

func (r *ring) len() int { return r.count }

func (r *ring) mean() float64 {
	if r.count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < r.count; i++ {
		sum += r.buf[i]
	}
	return sum / float64(r.count)
}

// countAbove returns how many stored samples exceed threshold.
func (r *ring) countAbove(threshold float64) int {
	n := 0
	for i := 0; i < r.count; i++ {
		if r.buf[i] > threshold {
			n++
		}
	}
	return n
}

// p95 returns the 95th percentile via nearest-rank on a sorted copy.
func (r *ring) p95() float64 {
	if r.count == 0 {
		return 0
	}
	vals := r.values()
	sort.Float64s(vals)
	idx := (len(vals)*95+99)/100 - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(vals) {
		idx = len(vals) - 1
	}
	return vals[idx]
}

// ClientBackpressureState tracks the recent-latency ring for one client.
type ClientBackpressureState struct {
	recent     *ring
	lastAccess time.Time
}

// BackpressureCalculator implements the hybrid P95/latency-gradient
// Retry-After strategy: the worse of a service-quality signal (how often
// recent latencies blow through the SLO baseline) and a queue-congestion
// signal (how far the recent average latency sits above the bare-minimum
// floor) drives the wait.
//
// All mutable state is protected by a single mutex; no blocking call is ever
// made while it is held.
type BackpressureCalculator struct {
	// MinRetryDelay/MaxRetryPenalty/GradientSensitivity parameterize the
	// final wait formula: retrySeconds = (MinRetryDelay +
	// MaxRetryPenalty*bp) * U(0.8, 1.2), where bp is the worse of BP_P95 and
	// BP_Gradient. The internal p95Baseline (SLO target, default 0.2s) and
	// minLatency (queueing floor, default 0.05s) are not exported: the SLO
	// baseline evolves through RecordLatency's EMA and must not be poked
	// directly.
	MinRetryDelay       time.Duration
	MaxRetryPenalty     time.Duration
	GradientSensitivity float64

	// PerClientTracking enables a bounded map of per-client rings; when
	// false, record/backpressure always use the global window.
	PerClientTracking bool

	clock Clock

	mu          sync.Mutex
	p95Baseline float64
	minLatency  float64
	recent      *ring
	historical  *ring
	curve       [backpressureWindowSize + 1]float64
	clients     map[string]*ClientBackpressureState
	lastSweep   time.Time
}

// NewBackpressureCalculator creates a calculator with default settings: SLO
// baseline 0.2s, latency floor 0.05s, gradient sensitivity 1.0, minimum
// retry delay 100ms and maximum retry penalty 2s (chosen so the worst-case
// wait under full backpressure settles in the low-second range without ever
// starving a fully healthy client).
func NewBackpressureCalculator(clock Clock, perClientTracking bool) *BackpressureCalculator {
	if clock == nil {
		clock = systemClock
	}
	c := &BackpressureCalculator{
		MinRetryDelay:       100 * time.Millisecond,
		MaxRetryPenalty:     2 * time.Second,
		GradientSensitivity: 1.0,
		PerClientTracking:   perClientTracking,
		clock:               clock,
		p95Baseline:         0.2,
		minLatency:          0.05,
		recent:              newRing(backpressureWindowSize),
		historical:          newRing(backpressureHistorySize),
		clients:             make(map[string]*ClientBackpressureState),
	}
	for i := 0; i <= backpressureWindowSize; i++ {
		frac := float64(i) / float64(backpressureWindowSize)
		c.curve[i] = frac * frac * frac
	}
	return c
}

// RecordLatency appends a latency sample (seconds) to the global rings,
// possibly nudges the SLO baseline, and — if per-client tracking is
// enabled and clientID is non-empty — to that client's ring too. It also
// opportunistically sweeps stale client entries.
func (c *BackpressureCalculator) RecordLatency(seconds float64, clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recent.add(seconds)
	c.historical.add(seconds)
	c.maybeUpdateBaselineLocked()

	if c.PerClientTracking && clientID != "" {
		now := c.clock.Now()
		st, ok := c.clients[clientID]
		if !ok {
			st = &ClientBackpressureState{recent: newRing(backpressureWindowSize)}
			c.clients[clientID] = st
		}
		st.recent.add(seconds)
		st.lastAccess = now
		c.sweepClientsLocked(now)
	}
}

func (c *BackpressureCalculator) maybeUpdateBaselineLocked() {
	if c.historical.len() < baselineHistoryMinSamples {
		return
	}
	if rand.Float64() >= baselineUpdateProbability {
		return
	}
	p95 := c.historical.p95()
	c.p95Baseline = (1-baselineEMAWeight)*c.p95Baseline + baselineEMAWeight*p95
}

func (c *BackpressureCalculator) sweepClientsLocked(now time.Time) {
	if now.Sub(c.lastSweep) < clientSweepInterval && len(c.clients) <= maxClientEntries {
		return
	}
	c.lastSweep = now
	for id, st := range c.clients {
		if now.Sub(st.lastAccess) > clientStateTTL {
			delete(c.clients, id)
		}
	}
	if len(c.clients) <= maxClientEntries {
		return
	}
	c.evictOldestLocked()
}

// evictOldestLocked removes oldest-by-last-access entries until the map is
// back under the hard cap. Must be called with mu held.
func (c *BackpressureCalculator) evictOldestLocked() {
	type entry struct {
		id   string
		last time.Time
	}
	entries := make([]entry, 0, len(c.clients))
	for id, st := range c.clients {
		entries = append(entries, entry{id, st.lastAccess})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].last.Before(entries[j].last) })
	excess := len(entries) - maxClientEntries
	for i := 0; i < excess; i++ {
		delete(c.clients, entries[i].id)
	}
}

// windowLocked returns the ring to read from for clientID: the client's own
// ring when tracking is enabled and populated, otherwise the global window.
// Must be called with mu held.
func (c *BackpressureCalculator) windowLocked(clientID string) *ring {
	if c.PerClientTracking && clientID != "" {
		if st, ok := c.clients[clientID]; ok {
			return st.recent
		}
	}
	return c.recent
}

func (c *BackpressureCalculator) scoreLocked(clientID string) (bpP95, bpGradient float64) {
	w := c.windowLocked(clientID)

	outliers := w.countAbove(c.p95Baseline)
	if outliers > backpressureWindowSize {
		outliers = backpressureWindowSize
	}
	bpP95 = c.curve[outliers]

	if w.len() < 5 {
		return bpP95, 0
	}
	avg := w.mean()
	if avg <= c.minLatency || c.minLatency <= 0 {
		return bpP95, 0
	}
	sensitivity := c.GradientSensitivity
	if sensitivity <= 0 {
		sensitivity = 1.0
	}
	bpGradient = (avg - c.minLatency) / (c.minLatency * sensitivity)
	if bpGradient > 1 {
		bpGradient = 1
	}
	return bpP95, bpGradient
}

// GetBackpressure returns max(BP_P95, BP_Gradient) in [0, 1] for the given
// client (or the global window when clientID is empty or untracked). This
// is the value surfaced as the X-Backpressure header.
func (c *BackpressureCalculator) GetBackpressure(clientID string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	p95, gradient := c.scoreLocked(clientID)
	return max(p95, gradient)
}

// Calculate implements RetryAfterCalculator. rejectionCount and the bucket
// fields are accepted for interface conformance but the backpressure score
// dominates the decision; the bucket's timeUntilNext is only used as a
// floor when bp is negligible.
func (c *BackpressureCalculator) Calculate(_, _, _ float64, timeUntilNext time.Duration, _ int, clientID string) time.Duration {
	c.mu.Lock()
	p95, gradient := c.scoreLocked(clientID)
	minDelay := c.MinRetryDelay
	maxPenalty := c.MaxRetryPenalty
	c.mu.Unlock()

	bp := max(p95, gradient)

	if bp < 0.01 {
		wait := timeUntilNext
		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}
		return wait
	}

	jitter := 0.8 + rand.Float64()*0.4 // U(0.8, 1.2)
	retry := (float64(minDelay) + float64(maxPenalty)*bp) * jitter
	return time.Duration(retry)
}

var _ RetryAfterCalculator = (*BackpressureCalculator)(nil)
