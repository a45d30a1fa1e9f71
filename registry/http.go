package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonwraymond/failsafe/resilience"
)

// Version is the control-plane surface's reported build version.
const Version = "0.1.0"

// entryResponse is the JSON shape of one live registration returned by the
// listing endpoint.
type entryResponse struct {
	PatternType  string         `json:"pattern_type"`
	Name         string         `json:"name"`
	RegisteredAt time.Time      `json:"registered_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func toEntryResponse(e Entry) entryResponse {
	return entryResponse{
		PatternType:  e.PatternType,
		Name:         e.Name,
		RegisteredAt: e.RegisteredAt,
		Metadata:     e.Metadata,
	}
}

// registered reports whether (patternType, name) has a live registration,
// without needing to know the manager's concrete type.
func registered(reg *PatternRegistry, patternType, name string) bool {
	for _, e := range reg.List(patternType) {
		if e.Name == name {
			return true
		}
	}
	return false
}

// HealthHandler returns an HTTP handler for GET /health: overall liveness
// plus a count of active registrations.
func HealthHandler(reg *PatternRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":          "ok",
			"timestamp":       time.Now().UTC().Format(time.RFC3339),
			"patterns_active": len(reg.List("")),
			"version":         Version,
		})
	}
}

// LivenessHandler returns an HTTP handler for GET /liveness: a bare process
// pulse, independent of the registry's contents.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "alive",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ListHandler returns an HTTP handler that lists every live registration in
// reg as JSON, optionally restricted by a ?pattern_type= query parameter.
func ListHandler(reg *PatternRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := reg.List(r.URL.Query().Get("pattern_type"))
		out := make([]entryResponse, len(entries))
		for i, e := range entries {
			out[i] = toEntryResponse(e)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

// ConfigUpdateRequest is the JSON body accepted by ConfigHandler's PUT path.
// Only the fields relevant to the target pattern_type need be set; an absent
// field is left untouched both in the live manager and in the ConfigStore.
type ConfigUpdateRequest struct {
	// rate_limiter
	MaxExecutions *float64 `json:"max_executions,omitempty"`
	PerTimeSecs   *float64 `json:"per_time_secs,omitempty"`
	BucketSize    *int     `json:"bucket_size,omitempty"`
	WaitOnLimit   *bool    `json:"wait_on_limit,omitempty"`
	MaxWaitMS     *int64   `json:"max_wait_ms,omitempty"`

	// circuit_breaker
	FailureThreshold *int     `json:"failure_threshold,omitempty"`
	TimeoutSeconds   *float64 `json:"timeout_seconds,omitempty"`

	// retry
	Attempts  *int   `json:"attempts,omitempty"`
	BackoffMS *int64 `json:"backoff_ms,omitempty"`

	// bulkhead (MaxConcurrent is recorded but cannot be applied live; see
	// resilience.Bulkhead.UpdateConfig)
	MaxConcurrent *int `json:"max_concurrent,omitempty"`
	MaxWaiting    *int `json:"max_waiting,omitempty"`

	// timeout
	Seconds *float64 `json:"seconds,omitempty"`
}

// applyConfigUpdate looks up the live manager for (patternType, name) and
// pushes the fields of req into it through the pattern's UpdateConfig
// method, per §4.15's update interface. Returns ErrNotFound if no live
// manager answers to (patternType, name). Pattern types with no live update
// interface (fail_fast, fallback, hedge, feature_toggle, cache) still 404 on
// an unregistered name but otherwise accept the PUT as a store-only update.
func applyConfigUpdate(reg *PatternRegistry, patternType, name string, req ConfigUpdateRequest) error {
	switch patternType {
	case "rate_limiter":
		rl, ok := Lookup[resilience.RateLimiter](reg, patternType, name)
		if !ok {
			return ErrNotFound
		}
		cur := rl.Config()

		rate := cur.Rate
		if req.MaxExecutions != nil && req.PerTimeSecs != nil && *req.PerTimeSecs > 0 {
			rate = *req.MaxExecutions / *req.PerTimeSecs
		}
		burst := 0
		if req.BucketSize != nil {
			burst = *req.BucketSize
		}
		waitOnLimit := cur.WaitOnLimit
		if req.WaitOnLimit != nil {
			waitOnLimit = *req.WaitOnLimit
		}
		maxWait := cur.MaxWait
		if req.MaxWaitMS != nil {
			maxWait = time.Duration(*req.MaxWaitMS) * time.Millisecond
		}
		rl.UpdateConfig(rate, burst, nil, waitOnLimit, maxWait)
		return nil

	case "circuit_breaker":
		cb, ok := Lookup[resilience.CircuitBreaker](reg, patternType, name)
		if !ok {
			return ErrNotFound
		}
		var threshold int
		if req.FailureThreshold != nil {
			threshold = *req.FailureThreshold
		}
		var resetTimeout time.Duration
		if req.TimeoutSeconds != nil {
			resetTimeout = time.Duration(*req.TimeoutSeconds * float64(time.Second))
		}
		cb.UpdateConfig(threshold, resetTimeout)
		return nil

	case "retry":
		rm, ok := Lookup[resilience.RetryManager](reg, patternType, name)
		if !ok {
			return ErrNotFound
		}
		var attempts int
		if req.Attempts != nil {
			attempts = *req.Attempts
		}
		var backoff resilience.Backoff
		if req.BackoffMS != nil {
			backoff = resilience.ConstantBackoff(time.Duration(*req.BackoffMS) * time.Millisecond)
		}
		rm.UpdateConfig(attempts, backoff)
		return nil

	case "bulkhead":
		b, ok := Lookup[resilience.Bulkhead](reg, patternType, name)
		if !ok {
			return ErrNotFound
		}
		maxWaiting := -1
		if req.MaxWaiting != nil {
			maxWaiting = *req.MaxWaiting
		}
		b.UpdateConfig(maxWaiting)
		return nil

	case "timeout":
		t, ok := Lookup[resilience.Timeout](reg, patternType, name)
		if !ok {
			return ErrNotFound
		}
		var duration time.Duration
		if req.Seconds != nil {
			duration = time.Duration(*req.Seconds * float64(time.Second))
		}
		t.UpdateConfig(duration)
		return nil

	default:
		if !registered(reg, patternType, name) {
			return ErrNotFound
		}
		return nil
	}
}

// storeConfigUpdate persists every field req sets as an override on store,
// keyed by the same field names the request uses, independent of whether
// applyConfigUpdate found a live manager to push it into.
func storeConfigUpdate(store *ConfigStore, patternType, name string, req ConfigUpdateRequest) {
	set := func(field string, value any) { store.SetOverride(patternType, name, field, value) }

	if req.MaxExecutions != nil {
		set("max_executions", *req.MaxExecutions)
	}
	if req.PerTimeSecs != nil {
		set("per_time_secs", *req.PerTimeSecs)
	}
	if req.BucketSize != nil {
		set("bucket_size", *req.BucketSize)
	}
	if req.WaitOnLimit != nil {
		set("wait_on_limit", *req.WaitOnLimit)
	}
	if req.MaxWaitMS != nil {
		set("max_wait_ms", *req.MaxWaitMS)
	}
	if req.FailureThreshold != nil {
		set("failure_threshold", *req.FailureThreshold)
	}
	if req.TimeoutSeconds != nil {
		set("timeout_seconds", *req.TimeoutSeconds)
	}
	if req.Attempts != nil {
		set("attempts", *req.Attempts)
	}
	if req.BackoffMS != nil {
		set("backoff_ms", *req.BackoffMS)
	}
	if req.MaxConcurrent != nil {
		set("max_concurrent", *req.MaxConcurrent)
	}
	if req.MaxWaiting != nil {
		set("max_waiting", *req.MaxWaiting)
	}
	if req.Seconds != nil {
		set("seconds", *req.Seconds)
	}
}

// ConfigHandler returns an HTTP handler exposing a ConfigStore's effective
// configuration for patternType/name (GET) and applying a live re-tune (PUT,
// JSON body decoded as ConfigUpdateRequest): accepted fields are pushed into
// the live manager via applyConfigUpdate and recorded as overrides via
// storeConfigUpdate in the same request. PUT 404s if patternType/name has no
// live registration.
func ConfigHandler(reg *PatternRegistry, store *ConfigStore, patternType, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"pattern_type": patternType,
				"name":         name,
				"config":       store.Snapshot(patternType, name),
				"timestamp":    time.Now().UTC().Format(time.RFC3339),
			})

		case http.MethodPut:
			var req ConfigUpdateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
			if err := applyConfigUpdate(reg, patternType, name, req); err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			storeConfigUpdate(store, patternType, name, req)
			w.WriteHeader(http.StatusNoContent)

		default:
			w.Header().Set("Allow", "GET, PUT")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// AllConfigHandler returns an HTTP handler for the bare GET /config route:
// every live registration's effective configuration, alongside the raw
// defaults tree loaded from YAML.
func AllConfigHandler(reg *PatternRegistry, store *ConfigStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		configs := make(map[string]map[string]map[string]any)
		for _, e := range reg.List("") {
			if configs[e.PatternType] == nil {
				configs[e.PatternType] = make(map[string]map[string]any)
			}
			configs[e.PatternType][e.Name] = store.Snapshot(e.PatternType, e.Name)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"configs":   configs,
			"defaults":  store.Defaults(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// metricsFor dispatches to the named pattern's metrics snapshot.
// CircuitBreaker and Bulkhead carry dedicated Metrics() types; every other
// registered pattern reports a minimal payload, since the rest of the
// pattern set has no dedicated metrics struct.
func metricsFor(reg *PatternRegistry, patternType, name string) (any, error) {
	switch patternType {
	case "circuit_breaker":
		cb, ok := Lookup[resilience.CircuitBreaker](reg, patternType, name)
		if !ok {
			return nil, ErrNotFound
		}
		return cb.Metrics(), nil
	case "bulkhead":
		b, ok := Lookup[resilience.Bulkhead](reg, patternType, name)
		if !ok {
			return nil, ErrNotFound
		}
		return b.Metrics(), nil
	default:
		if !registered(reg, patternType, name) {
			return nil, ErrNotFound
		}
		return map[string]any{"pattern_type": patternType, "name": name}, nil
	}
}

// resetPattern clears the named pattern's counters, where the pattern
// supports it. CircuitBreaker and FailFast expose a Reset; every other
// pattern type still 404s on an unregistered name but otherwise no-ops,
// since it has no counters to clear.
func resetPattern(reg *PatternRegistry, patternType, name string) error {
	switch patternType {
	case "circuit_breaker":
		cb, ok := Lookup[resilience.CircuitBreaker](reg, patternType, name)
		if !ok {
			return ErrNotFound
		}
		cb.Reset()
		return nil
	case "fail_fast":
		f, ok := Lookup[resilience.FailFast](reg, patternType, name)
		if !ok {
			return ErrNotFound
		}
		f.Reset()
		return nil
	default:
		if !registered(reg, patternType, name) {
			return ErrNotFound
		}
		return nil
	}
}

// MetricsHandler returns an HTTP handler for GET (snapshot) and DELETE
// (reset) on /metrics/{pattern_type}/{name}.
func MetricsHandler(reg *PatternRegistry, patternType, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			metrics, err := metricsFor(reg, patternType, name)
			if err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(metrics)

		case http.MethodDelete:
			if err := resetPattern(reg, patternType, name); err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			w.Header().Set("Allow", "GET, DELETE")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// AllMetricsHandler returns an HTTP handler for the bare GET /metrics route:
// every live registration's metrics snapshot, grouped by pattern type.
func AllMetricsHandler(reg *PatternRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := make(map[string]map[string]any)
		for _, e := range reg.List("") {
			metrics, err := metricsFor(reg, e.PatternType, e.Name)
			if err != nil {
				// Collected between List and metricsFor; skip rather than fail
				// the whole snapshot.
				continue
			}
			if out[e.PatternType] == nil {
				out[e.PatternType] = make(map[string]any)
			}
			out[e.PatternType][e.Name] = metrics
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

// enabler is implemented by every PolicyManager that supports the
// control-plane's generic enable/disable surface.
type enabler interface {
	Enable()
	Disable()
}

// setEnabled dispatches a POST /control action to the named manager.
// cache.Manager is deliberately excluded: its two type parameters make it
// unaddressable through this non-generic, string-keyed dispatch (see
// DESIGN.md).
func setEnabled(reg *PatternRegistry, patternType, name, action string) error {
	var (
		e  enabler
		ok bool
	)
	switch patternType {
	case "rate_limiter":
		e, ok = Lookup[resilience.RateLimiter](reg, patternType, name)
	case "circuit_breaker":
		e, ok = Lookup[resilience.CircuitBreaker](reg, patternType, name)
	case "retry":
		e, ok = Lookup[resilience.RetryManager](reg, patternType, name)
	case "bulkhead":
		e, ok = Lookup[resilience.Bulkhead](reg, patternType, name)
	case "timeout":
		e, ok = Lookup[resilience.Timeout](reg, patternType, name)
	case "fail_fast":
		e, ok = Lookup[resilience.FailFast](reg, patternType, name)
	case "fallback":
		e, ok = Lookup[resilience.Fallback](reg, patternType, name)
	case "hedge":
		e, ok = Lookup[resilience.Hedge](reg, patternType, name)
	case "feature_toggle":
		e, ok = Lookup[resilience.FeatureToggle](reg, patternType, name)
	default:
		return ErrNotFound
	}
	if !ok {
		return ErrNotFound
	}

	switch action {
	case "enable":
		e.Enable()
	case "disable":
		e.Disable()
	default:
		return fmt.Errorf("registry: unknown control action %q", action)
	}
	return nil
}

// ControlHandler returns an HTTP handler for
// POST /control/{pattern_type}/{name}/{enable|disable}.
func ControlHandler(reg *PatternRegistry, patternType, name, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := setEnabled(reg, patternType, name, action); err != nil {
			if errors.Is(err, ErrNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RegisterHandlers mounts the full control-plane surface on mux under
// prefix, which defaults to "/failsafe" when empty:
//
//	GET    {prefix}/health
//	GET    {prefix}/liveness
//	GET    {prefix}/patterns[?pattern_type=...]
//	GET    {prefix}/config
//	GET    {prefix}/config/{pattern_type}/{name}
//	PUT    {prefix}/config/{pattern_type}/{name}
//	GET    {prefix}/metrics
//	GET    {prefix}/metrics/{pattern_type}/{name}
//	DELETE {prefix}/metrics/{pattern_type}/{name}
//	POST   {prefix}/control/{pattern_type}/{name}/{enable|disable}
func RegisterHandlers(mux *http.ServeMux, reg *PatternRegistry, store *ConfigStore, prefix string) {
	if prefix == "" {
		prefix = "/failsafe"
	}
	prefix = strings.TrimSuffix(prefix, "/")

	mux.HandleFunc(prefix+"/health", HealthHandler(reg))
	mux.HandleFunc(prefix+"/liveness", LivenessHandler())
	mux.HandleFunc(prefix+"/patterns", ListHandler(reg))

	mux.HandleFunc(prefix+"/config", AllConfigHandler(reg, store))
	mux.HandleFunc(prefix+"/config/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, prefix+"/config/")
		patternType, name, ok := strings.Cut(rest, "/")
		if !ok || patternType == "" || name == "" {
			http.NotFound(w, r)
			return
		}
		ConfigHandler(reg, store, patternType, name)(w, r)
	})

	mux.HandleFunc(prefix+"/metrics", AllMetricsHandler(reg))
	mux.HandleFunc(prefix+"/metrics/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, prefix+"/metrics/")
		patternType, name, ok := strings.Cut(rest, "/")
		if !ok || patternType == "" || name == "" {
			http.NotFound(w, r)
			return
		}
		MetricsHandler(reg, patternType, name)(w, r)
	})

	mux.HandleFunc(prefix+"/control/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, prefix+"/control/")
		parts := strings.Split(rest, "/")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			http.NotFound(w, r)
			return
		}
		ControlHandler(reg, parts[0], parts[1], parts[2])(w, r)
	})
}

// ClientIDFromRequest derives the identity used to key per-client rate
// limiting from an inbound request, trying in order:
//
//  1. The X-Client-Id header, verbatim.
//  2. The first 16 hex characters of SHA-256(Authorization), so the raw
//     bearer credential never ends up as a map key or log field.
//  3. The leftmost address in X-Forwarded-For.
//  4. r.RemoteAddr.
//  5. The literal string "anonymous" if none of the above yield anything.
func ClientIDFromRequest(r *http.Request) string {
	if h := r.Header.Get("X-Client-Id"); h != "" {
		return h
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		return hashClientID(auth)
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if addr := strings.TrimSpace(first); addr != "" {
			return addr
		}
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "anonymous"
}

// hashClientID returns the first 16 hex characters of SHA-256(id), matching
// the wire contract's "SHA-256(Authorization), 16 hex" client-id rule.
func hashClientID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:16]
}
