package resilience

import (
	"sync"
	"time"
)

// TokenBucket is a continuous-refill token bucket: tokens accrue at Rate
// tokens/second up to Capacity, and are debited one at a time by Take.
// Refill is lazy — it is computed from elapsed wall time whenever Take or
// Tokens is called, not on a background timer.
//
// Contract: 0 <= tokens <= Capacity at all times. Not safe for concurrent
// mutation without the internal mutex; Take and Tokens serialize against
// each other and do no blocking work while holding it.
type TokenBucket struct {
	capacity float64
	rate     float64 // tokens per second
	clock    Clock

	mu           sync.Mutex
	tokens       float64
	lastRefillAt time.Time
	nextRefillAt time.Time // instant the next whole token becomes available
}

// NewTokenBucket creates a bucket with the given capacity and refill rate
// (tokens/sec), starting full. A nil clock uses the real wall clock.
func NewTokenBucket(capacity, rate float64, clock Clock) *TokenBucket {
	if clock == nil {
		clock = systemClock
	}
	now := clock.Now()
	return &TokenBucket{
		capacity:     capacity,
		rate:         rate,
		clock:        clock,
		tokens:       capacity,
		lastRefillAt: now,
		nextRefillAt: now,
	}
}

// Take attempts to debit one token. On success it returns (true, 0). On
// failure it returns (false, timeUntilNext) where timeUntilNext is how long
// until a whole token becomes available.
func (b *TokenBucket) Take() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	if b.tokens >= 1 {
		b.tokens--
		if b.tokens < 1 {
			b.nextRefillAt = b.lastRefillAt.Add(b.timeUntilOneLocked())
		}
		return true, 0
	}

	return false, b.timeUntilOneLocked()
}

// Tokens returns the current token count, advancing refill first.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

// Capacity returns the bucket's maximum token count.
func (b *TokenBucket) Capacity() float64 { return b.capacity }

// Rate returns the bucket's refill rate in tokens/second.
func (b *TokenBucket) Rate() float64 { return b.rate }

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	elapsed := now.Sub(b.lastRefillAt)
	b.lastRefillAt = now
	if elapsed <= 0 || b.rate <= 0 {
		return
	}

	b.tokens += elapsed.Seconds() * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}

// timeUntilOneLocked returns how long until tokens reaches at least 1,
// assuming refillLocked has just run. Must be called with mu held.
func (b *TokenBucket) timeUntilOneLocked() time.Duration {
	if b.rate <= 0 {
		return time.Duration(1<<63 - 1) // effectively never
	}
	deficit := 1 - b.tokens
	if deficit <= 0 {
		return 0
	}
	secs := deficit / b.rate
	if secs < 0 {
		secs = 0
	}
	return time.Duration(secs * float64(time.Second))
}
