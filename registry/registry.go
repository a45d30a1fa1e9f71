// Package registry provides the control-plane surface for a resilience
// deployment: a live index of named pattern managers, a YAML-backed
// configuration store with runtime overrides, and the HTTP API that exposes
// both.
package registry

import (
	"sort"
	"sync"
	"time"
	"weak"
)

// weakRef holds a non-owning reference to a pattern manager. Registering a
// manager never keeps it alive past its owner's lifetime — once the owner
// drops its last strong reference, Get reports it gone and the registry
// drops the stale entry on its next sweep.
type weakRef struct {
	get          func() (any, bool)
	registeredAt time.Time
	metadata     map[string]any
}

func newWeakRef[T any](v *T, metadata map[string]any, registeredAt time.Time) weakRef {
	wp := weak.Make(v)
	return weakRef{
		get: func() (any, bool) {
			p := wp.Value()
			if p == nil {
				return nil, false
			}
			return p, true
		},
		registeredAt: registeredAt,
		metadata:     metadata,
	}
}

// PatternRegistry indexes live pattern managers by pattern type and name for
// the control-plane HTTP surface: listing, inspecting, and tuning retry
// policies, circuit breakers, rate limiters, and so on, without each
// pattern needing to know the registry exists. Entries are keyed by
// (patternType, name) rather than name alone, so a "default" rate limiter
// and a "default" circuit breaker never collide.
type PatternRegistry struct {
	mu      sync.RWMutex
	entries map[string]map[string]weakRef // patternType -> name -> ref
}

// NewPatternRegistry creates an empty registry.
func NewPatternRegistry() *PatternRegistry {
	return &PatternRegistry{entries: make(map[string]map[string]weakRef)}
}

// Register indexes manager under (patternType, name), replacing any prior
// entry for that pair. The registry holds a weak reference only: it never
// prevents manager from being garbage collected. metadata is stored
// verbatim and surfaced by List/Entry; pass nil if there is none.
func Register[T any](r *PatternRegistry, patternType, name string, manager *T, metadata map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[patternType] == nil {
		r.entries[patternType] = make(map[string]weakRef)
	}
	r.entries[patternType][name] = newWeakRef(manager, metadata, time.Now())
}

// Lookup returns the manager registered under (patternType, name), or (nil,
// false) if absent or if it has since been garbage collected.
func Lookup[T any](r *PatternRegistry, patternType, name string) (*T, bool) {
	r.mu.RLock()
	byName, ok := r.entries[patternType]
	if !ok {
		r.mu.RUnlock()
		return nil, false
	}
	ref, ok := byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	v, alive := ref.get()
	if !alive {
		return nil, false
	}
	typed, ok := v.(*T)
	return typed, ok
}

// Entry describes one live registration for listing purposes.
type Entry struct {
	PatternType  string
	Name         string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// List returns every currently-alive registration, optionally restricted to
// a single patternType (pass "" to list every type), sorted by
// (PatternType, Name). It opportunistically evicts entries whose manager
// has been collected.
func (r *PatternRegistry) List(patternType string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var entries []Entry
	for pt, byName := range r.entries {
		if patternType != "" && pt != patternType {
			continue
		}
		for name, ref := range byName {
			if _, alive := ref.get(); !alive {
				delete(byName, name)
				continue
			}
			entries = append(entries, Entry{
				PatternType:  pt,
				Name:         name,
				RegisteredAt: ref.registeredAt,
				Metadata:     ref.metadata,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].PatternType != entries[j].PatternType {
			return entries[i].PatternType < entries[j].PatternType
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Unregister removes (patternType, name) unconditionally.
func (r *PatternRegistry) Unregister(patternType, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if byName, ok := r.entries[patternType]; ok {
		delete(byName, name)
	}
}
