package resilience

import (
	"math/rand/v2"
	"time"
)

// Backoff produces the delay to sleep before retry attempt n (1-indexed: the
// delay awaited *after* attempt n fails and before attempt n+1 runs).
type Backoff func(attempt int) time.Duration

// ConstantBackoff always waits the same delay.
func ConstantBackoff(delay time.Duration) Backoff {
	return func(int) time.Duration { return delay }
}

// SequenceBackoff walks a fixed, ordered list of delays; once exhausted it
// keeps returning the last element for every further attempt.
func SequenceBackoff(delays ...time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if len(delays) == 0 {
			return 0
		}
		idx := attempt - 1
		if idx >= len(delays) {
			idx = len(delays) - 1
		}
		if idx < 0 {
			idx = 0
		}
		return delays[idx]
	}
}

// JitterFunc maps a delay to a jittered delay.
type JitterFunc func(d time.Duration) time.Duration

// FullJitter returns a JitterFunc that samples uniformly in [0, d).
func FullJitter() JitterFunc {
	return func(d time.Duration) time.Duration {
		if d <= 0 {
			return 0
		}
		return time.Duration(rand.Int64N(int64(d)))
	}
}

// EqualJitter returns a JitterFunc that samples in [d/2, d).
func EqualJitter() JitterFunc {
	return func(d time.Duration) time.Duration {
		if d <= 0 {
			return 0
		}
		half := d / 2
		return half + time.Duration(rand.Int64N(int64(d-half)))
	}
}

// ExponentialBackoff doubles (or scales by base) the delay each attempt,
// starting at min and capped at max. jitter, when non-nil, is applied to the
// capped delay before it is returned (so the cap bounds the pre-jitter
// value, matching scenario S3 in spec.md: sleeps are bounded by
// min(base^(k-1)*min, max), then jittered).
func ExponentialBackoff(min, max time.Duration, base float64, jitter JitterFunc) Backoff {
	if base <= 1 {
		base = 2
	}
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		delay := float64(min)
		for i := 1; i < attempt; i++ {
			delay *= base
			if delay > float64(max) {
				delay = float64(max)
				break
			}
		}
		d := time.Duration(delay)
		if d > max {
			d = max
		}
		if jitter != nil {
			d = jitter(d)
		}
		return d
	}
}

// FibonacciBackoff scales unit by the Fibonacci sequence (1, 1, 2, 3, 5, ...)
// indexed by attempt, capped at max.
func FibonacciBackoff(unit, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		a, b := 1, 1
		for i := 1; i < attempt; i++ {
			a, b = b, a+b
		}
		d := time.Duration(a) * unit
		if d > max {
			d = max
		}
		return d
	}
}
