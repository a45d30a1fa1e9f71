// Package adaptiveclient provides an egress-side http.RoundTripper that
// cooperates with a server-side resilience.RateLimiter / backpressure
// calculator: it reads the hints a protected server emits (Retry-After,
// X-RateLimit-Retry-After-Ms, X-Backpressure) and throttles itself before
// the server has to reject a request outright.
package adaptiveclient

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Clock is a monotonic time source, mirroring resilience.Clock so tests can
// inject deterministic time instead of sleeping.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// WaitStrategy controls what happens when a server-advertised Retry-After
// window is still active at call time.
type WaitStrategy int

const (
	// StrategyQueue sleeps (bounded by Config.MaxWait) until the
	// Retry-After window elapses, then proceeds.
	StrategyQueue WaitStrategy = iota
	// StrategyReject fails immediately with ErrRetryAfterActive instead of
	// waiting.
	StrategyReject
)

// Config configures a Client.
type Config struct {
	// MaxRetries bounds how many additional attempts follow a 429 response.
	// Default: 5.
	MaxRetries int

	// MaxWait caps both the per-attempt 429 backoff and the queued sleep
	// when a Retry-After window is still active. Default: 30s.
	MaxWait time.Duration

	// Factor is the multiplier applied to the previous wait on each
	// consecutive 429 (last_wait * factor^(attempt-1)). Default: 2.0.
	Factor float64

	// BackpressureThreshold is the X-Backpressure level (0-1) at or above
	// which the client preemptively sleeps before issuing a request.
	// Default: 0.8.
	BackpressureThreshold float64

	// Strategy selects queue-and-wait or reject-immediately behavior when a
	// Retry-After window from a prior response is still active.
	// Default: StrategyQueue.
	Strategy WaitStrategy

	// Transport is the underlying round tripper. Default: http.DefaultTransport.
	Transport http.RoundTripper

	Clock Clock
}

// hostState tracks the most recently observed server hints for one
// destination host.
type hostState struct {
	retryAfterAt time.Time
	backpressure float64
	lastWait     time.Duration
}

// Client is an http.RoundTripper that mirrors server-side rate-limit and
// backpressure signals back into client-side pacing, so a well-behaved
// caller backs off before it is rejected rather than purely reactively
// after.
type Client struct {
	config Config
	clock  Clock

	mu    sync.Mutex
	hosts map[string]*hostState
}

// New creates a Client, applying spec defaults.
func New(config Config) *Client {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}
	if config.MaxWait <= 0 {
		config.MaxWait = 30 * time.Second
	}
	if config.Factor <= 0 {
		config.Factor = 2.0
	}
	if config.BackpressureThreshold <= 0 {
		config.BackpressureThreshold = 0.8
	}
	if config.Transport == nil {
		config.Transport = http.DefaultTransport
	}
	clock := config.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Client{config: config, clock: clock, hosts: make(map[string]*hostState)}
}

// RoundTrip implements http.RoundTripper. On a 429 it retries up to
// MaxRetries times, waiting per retryAfterBackoff between attempts; once
// exhausted it returns the last 429 response rather than an error, the way
// a plain http.Client would.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Host

	if err := c.throttleBeforeCall(req.Context(), host); err != nil {
		return nil, err
	}

	var lastResp *http.Response

	result, err := backoff.Retry(req.Context(), func() (*http.Response, error) {
		resp, err := c.config.Transport.RoundTrip(req)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		c.observe(host, resp)

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		lastResp = resp
		return nil, errTooManyRequests
	},
		backoff.WithBackOff(&retryAfterBackoff{client: c, host: host}),
		backoff.WithMaxTries(uint(c.config.MaxRetries)+1),
	)
	if err != nil {
		if lastResp != nil {
			return lastResp, nil
		}
		return nil, err
	}
	return result, nil
}

// throttleBeforeCall sleeps (or rejects) according to the most recently
// observed backpressure level and retry-after window for host, per §4.17.
func (c *Client) throttleBeforeCall(ctx context.Context, host string) error {
	c.mu.Lock()
	st, ok := c.hosts[host]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	c.mu.Lock()
	bp := st.backpressure
	retryAfterAt := st.retryAfterAt
	c.mu.Unlock()

	if bp >= c.config.BackpressureThreshold {
		if err := sleepCtx(ctx, time.Duration(bp*0.5*float64(time.Second))); err != nil {
			return err
		}
	}

	now := c.clock.Now()
	if retryAfterAt.After(now) {
		wait := retryAfterAt.Sub(now)
		if c.config.Strategy == StrategyReject {
			return ErrRetryAfterActive
		}
		if wait > c.config.MaxWait {
			wait = c.config.MaxWait
		}
		return sleepCtx(ctx, wait)
	}
	return nil
}

// observe updates host's state from resp's rate-limit/backpressure headers.
func (c *Client) observe(host string, resp *http.Response) {
	retryAfter := parseRetryAfter(resp.Header)
	backpressure := parseBackpressure(resp.Header)

	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.hosts[host]
	if !ok {
		st = &hostState{}
		c.hosts[host] = st
	}
	if retryAfter > 0 {
		st.retryAfterAt = c.clock.Now().Add(retryAfter)
	}
	if backpressure >= 0 {
		st.backpressure = backpressure
	}
}

// parseRetryAfter prefers the millisecond-precision header over the
// whole-second Retry-After header when both are present.
func parseRetryAfter(h http.Header) time.Duration {
	if ms := h.Get("X-RateLimit-Retry-After-Ms"); ms != "" {
		if v, err := strconv.ParseInt(strings.TrimSpace(ms), 10, 64); err == nil && v > 0 {
			return time.Duration(v) * time.Millisecond
		}
	}
	if secs := h.Get("Retry-After"); secs != "" {
		if v, err := strconv.ParseInt(strings.TrimSpace(secs), 10, 64); err == nil && v > 0 {
			return time.Duration(v) * time.Second
		}
		return time.Second // per §4.17: non-numeric Retry-After still means "wait"; default 1s
	}
	return 0
}

// parseBackpressure returns -1 when the header is absent, so callers can
// distinguish "not reported" from an explicit zero.
func parseBackpressure(h http.Header) float64 {
	v := h.Get("X-Backpressure")
	if v == "" {
		return -1
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return -1
	}
	return f
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryAfterInitialWait is the wait used for the first 429 retry, before
// the factor^(attempt-1) growth in retryAfterBackoff kicks in.
const retryAfterInitialWait = time.Second

// retryAfterBackoff implements backoff.BackOff per the §4.17 formula:
// last_wait * factor^(attempt-1), capped at MaxWait.
type retryAfterBackoff struct {
	client  *Client
	host    string
	current time.Duration
}

func (b *retryAfterBackoff) NextBackOff() time.Duration {
	if b.current <= 0 {
		b.current = retryAfterInitialWait
	} else {
		b.current = time.Duration(float64(b.current) * b.client.config.Factor)
	}
	if b.current > b.client.config.MaxWait {
		b.current = b.client.config.MaxWait
	}

	b.client.mu.Lock()
	if st, ok := b.client.hosts[b.host]; ok {
		st.lastWait = b.current
	}
	b.client.mu.Unlock()

	return b.current
}

// Reset satisfies backoff.BackOff implementations that expect a Reset
// method; retryAfterBackoff is single-use (one per RoundTrip call) so this
// is a no-op.
func (b *retryAfterBackoff) Reset() {}
