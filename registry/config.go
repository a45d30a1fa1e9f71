package registry

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/failsafe/secret"
)

// ConfigStore holds the default configuration for every pattern kind/name,
// as loaded from a YAML defaults file, plus any overrides applied at
// runtime through the control-plane HTTP surface. Keys are organized
// kind -> name -> field, e.g. "circuit_breaker" -> "upstream-api" ->
// "failure_threshold" -> 5.
//
// A ConfigStore does not itself construct pattern managers; registry.http
// reads from it to answer inspection requests and writes to it to record
// accepted overrides, and application code consults it (via Field) when
// constructing or re-tuning a manager.
type ConfigStore struct {
	mu        sync.RWMutex
	defaults  map[string]map[string]map[string]any
	overrides map[string]map[string]map[string]any
	resolver  *secret.Resolver
}

// NewConfigStore creates an empty store. resolver may be nil, in which case
// string values are used as-is without secretref:/${ENV} expansion.
func NewConfigStore(resolver *secret.Resolver) *ConfigStore {
	return &ConfigStore{
		defaults:  make(map[string]map[string]map[string]any),
		overrides: make(map[string]map[string]map[string]any),
		resolver:  resolver,
	}
}

// LoadDefaults reads a YAML defaults file and returns a populated
// ConfigStore. A missing file is not an error: it yields an empty store, so
// a deployment can run entirely on programmatic defaults. resolver (may be
// nil) is used to expand secretref:/${ENV} placeholders found in string
// values at Field lookup time.
//
// The file shape is a three-level map:
//
//	circuit_breaker:
//	  upstream-api:
//	    failure_threshold: 5
//	    reset_timeout: 30s
//	rate_limiter:
//	  default:
//	    rate: 100
//	    burst: 10
func LoadDefaults(path string, resolver *secret.Resolver) (*ConfigStore, error) {
	store := NewConfigStore(resolver)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("registry: read defaults file %q: %w", path, err)
	}

	var raw map[string]map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("registry: parse defaults file %q: %w", path, err)
	}
	if raw == nil {
		raw = make(map[string]map[string]map[string]any)
	}
	store.defaults = raw
	return store, nil
}

// Field resolves a single configuration field for kind/name, checking
// overrides first and falling back to defaults. The returned bool is false
// when neither layer has the field. String values are passed through the
// store's secret.Resolver, if one is configured.
func (s *ConfigStore) Field(ctx context.Context, kind, name, field string) (any, bool, error) {
	s.mu.RLock()
	value, ok := lookupField(s.overrides, kind, name, field)
	if !ok {
		value, ok = lookupField(s.defaults, kind, name, field)
	}
	resolver := s.resolver
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	str, isString := value.(string)
	if !isString || resolver == nil {
		return value, true, nil
	}
	resolved, err := resolver.ResolveValue(ctx, str)
	if err != nil {
		return nil, false, fmt.Errorf("registry: resolve %s/%s/%s: %w", kind, name, field, err)
	}
	return resolved, true, nil
}

func lookupField(tree map[string]map[string]map[string]any, kind, name, field string) (any, bool) {
	byName, ok := tree[kind]
	if !ok {
		return nil, false
	}
	fields, ok := byName[name]
	if !ok {
		return nil, false
	}
	value, ok := fields[field]
	return value, ok
}

// SetOverride records a runtime override for kind/name/field, taking
// precedence over any value loaded from the defaults file. This is the
// write path the control-plane HTTP surface uses to apply tuning requests.
func (s *ConfigStore) SetOverride(kind, name, field string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.overrides[kind] == nil {
		s.overrides[kind] = make(map[string]map[string]any)
	}
	if s.overrides[kind][name] == nil {
		s.overrides[kind][name] = make(map[string]any)
	}
	s.overrides[kind][name][field] = value
}

// ClearOverride removes a single override, reverting kind/name/field to its
// default file value (or to "absent" if no default exists).
func (s *ConfigStore) ClearOverride(kind, name, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if byName, ok := s.overrides[kind]; ok {
		if fields, ok := byName[name]; ok {
			delete(fields, field)
		}
	}
}

// Snapshot returns the effective configuration for kind/name: defaults
// merged with overrides, without secret resolution. Intended for the
// control-plane inspection endpoint.
func (s *ConfigStore) Snapshot(kind, name string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	merged := make(map[string]any)
	for k, v := range s.defaults[kind][name] {
		merged[k] = v
	}
	for k, v := range s.overrides[kind][name] {
		merged[k] = v
	}
	return merged
}

// Defaults returns a copy of the raw defaults tree loaded from the YAML
// file, for the control-plane's bare GET /config endpoint.
func (s *ConfigStore) Defaults() map[string]map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]map[string]any, len(s.defaults))
	for kind, byName := range s.defaults {
		outByName := make(map[string]map[string]any, len(byName))
		for name, fields := range byName {
			outFields := make(map[string]any, len(fields))
			for k, v := range fields {
				outFields[k] = v
			}
			outByName[name] = outFields
		}
		out[kind] = outByName
	}
	return out
}
