// Package adaptiveclient provides the egress half of the resilience
// fleet's rate-limit contract: an http.RoundTripper that mirrors a remote
// server's own RateLimiter/BackpressureCalculator hints back into
// client-side pacing.
//
// # Overview
//
// After every response, Client reads:
//   - Retry-After (seconds) or X-RateLimit-Retry-After-Ms (milliseconds,
//     preferred when both are present) and records a per-host
//     retry-after deadline.
//   - X-Backpressure (0-1) and records a per-host backpressure level.
//
// Before every request, Client:
//   - Sleeps backpressure*0.5s if the host's last reported backpressure is
//     at or above Config.BackpressureThreshold (default 0.8).
//   - If the host's retry-after deadline has not yet passed, either sleeps
//     until it does (StrategyQueue, bounded by Config.MaxWait) or fails
//     immediately with ErrRetryAfterActive (StrategyReject).
//
// On a 429 response, Client retries up to Config.MaxRetries times, waiting
// last_wait * Config.Factor^(attempt-1) (capped at Config.MaxWait) between
// attempts, via github.com/cenkalti/backoff/v5. Once retries are
// exhausted, the last 429 response is returned rather than an error, as a
// plain http.Client would.
//
// # Quick start
//
//	client := &http.Client{
//	    Transport: adaptiveclient.New(adaptiveclient.Config{
//	        MaxRetries: 5,
//	        MaxWait:    30 * time.Second,
//	    }),
//	}
//	resp, err := client.Get("https://api.example.com/widgets")
//
// # Thread safety
//
// Client is safe for concurrent use; per-host state is guarded by an
// internal mutex.
package adaptiveclient
