package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Listener observes a Manager's hit/miss/set decisions.
type Listener interface {
	OnHit(key string)
	OnMiss(key string)
	OnSet(key string)
}

// KeyFunc derives a cache key of type K from an operation's input.
type KeyFunc[In any, K comparable] func(In) (K, error)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Size is the maximum number of entries the LRU holds. Default: 1000.
	Size int
	// TTL is how long an entry remains valid after being set. TTL<=0 means
	// entries never expire on their own (still subject to LRU eviction).
	TTL time.Duration

	// Disabled starts the manager in a bypass state: Lookup always calls
	// producer, never consulting or populating the LRU. Default: false
	// (enabled). Flip at runtime with Enable/Disable.
	Disabled bool

	Listeners []Listener
}

// Manager is a generic LRU cache policy manager: Lookup runs producer on a
// miss, stores the result (subject to TTL), and returns it; a cached value
// past its TTL is treated as a miss and recomputed.
type Manager[K comparable, V any] struct {
	ttl     time.Duration
	events  []Listener
	enabled atomic.Bool
	mu      sync.Mutex
	lru     *lru.Cache[K, entry[V]]
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewManager creates a Manager, applying spec defaults.
func NewManager[K comparable, V any](config ManagerConfig) *Manager[K, V] {
	if config.Size <= 0 {
		config.Size = 1000
	}
	backing, _ := lru.New[K, entry[V]](config.Size)
	m := &Manager[K, V]{
		ttl:    config.TTL,
		events: config.Listeners,
		lru:    backing,
	}
	m.enabled.Store(!config.Disabled)
	return m
}

// Enable flips the manager back on.
func (m *Manager[K, V]) Enable() { m.enabled.Store(true) }

// Disable puts the manager into bypass: Lookup always calls producer,
// neither consulting nor populating the LRU.
func (m *Manager[K, V]) Disable() { m.enabled.Store(false) }

// Enabled reports whether the manager is currently serving from cache.
func (m *Manager[K, V]) Enabled() bool { return m.enabled.Load() }

// Lookup returns the cached value for key if present and unexpired;
// otherwise it calls producer, stores the result, and returns it. An error
// from producer is never cached. While disabled, producer always runs and
// its result is neither read from nor written to the LRU.
func (m *Manager[K, V]) Lookup(ctx context.Context, key K, producer func(context.Context) (V, error)) (V, error) {
	if !m.enabled.Load() {
		return producer(ctx)
	}

	if v, ok := m.get(key); ok {
		m.notify(func(l Listener) { l.OnHit(keyString(key)) })
		return v, nil
	}
	m.notify(func(l Listener) { l.OnMiss(keyString(key)) })

	v, err := producer(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	m.Set(key, v)
	return v, nil
}

// Get returns the cached value for key without a producer, reporting
// ErrCacheMiss if absent or expired.
func (m *Manager[K, V]) Get(key K) (V, error) {
	if v, ok := m.get(key); ok {
		return v, nil
	}
	var zero V
	return zero, ErrCacheMiss
}

func (m *Manager[K, V]) get(key K) (V, bool) {
	m.mu.Lock()
	e, ok := m.lru.Get(key)
	m.mu.Unlock()

	var zero V
	if !ok {
		return zero, false
	}
	if m.ttl > 0 && time.Now().After(e.expiresAt) {
		m.mu.Lock()
		m.lru.Remove(key)
		m.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Set inserts or replaces the value for key, resetting its TTL.
func (m *Manager[K, V]) Set(key K, value V) {
	e := entry[V]{value: value}
	if m.ttl > 0 {
		e.expiresAt = time.Now().Add(m.ttl)
	}
	m.mu.Lock()
	m.lru.Add(key, e)
	m.mu.Unlock()
	m.notify(func(l Listener) { l.OnSet(keyString(key)) })
}

// Remove evicts key, if present. Idempotent.
func (m *Manager[K, V]) Remove(key K) {
	m.mu.Lock()
	m.lru.Remove(key)
	m.mu.Unlock()
}

// Len returns the number of entries currently held (including not-yet-swept
// expired ones).
func (m *Manager[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

func (m *Manager[K, V]) notify(fn func(Listener)) {
	for _, l := range m.events {
		func() {
			defer func() { _ = recover() }()
			fn(l)
		}()
	}
}

// keyString renders any comparable key for listener callbacks. It is a
// best-effort label, not a canonical serialization.
func keyString(key any) string {
	if s, ok := key.(string); ok {
		return s
	}
	return fmt.Sprint(key)
}
