// Package registry provides the control-plane surface for a fleet of
// resilience pattern managers: a live, weak-referenced index of named
// managers, a YAML-backed configuration store with runtime overrides, and
// the HTTP handlers that expose both for operational inspection and
// tuning.
//
// # Components
//
//   - [PatternRegistry]: indexes live pattern managers (*resilience.CircuitBreaker,
//     *resilience.RetryManager, *resilience.RateLimiter, ...) by pattern type
//     and name, using weak pointers so registering a manager never extends
//     its lifetime. Register and Lookup are free functions parameterized
//     over the manager type, since Go methods cannot be generic.
//
//   - [ConfigStore]: holds default configuration loaded from a YAML file
//     (tolerant of a missing file) plus runtime overrides applied through
//     the HTTP surface. String values pass through a secret.Resolver so
//     defaults files can reference secretref:/${ENV} placeholders instead
//     of embedding credentials.
//
//   - HTTP handlers ([RegisterHandlers], [ListHandler], [ConfigHandler],
//     [AllConfigHandler], [MetricsHandler], [AllMetricsHandler],
//     [ControlHandler], [HealthHandler], [LivenessHandler]): expose the
//     registry and config store over net/http, mirroring the health
//     package's handler style (plain functions returning http.HandlerFunc,
//     mounted on a caller-supplied *http.ServeMux) under a configurable
//     route prefix (default "/failsafe").
//
//   - [ClientIDFromRequest]: derives a per-client rate-limiting identity
//     from an inbound request (header, hashed; then X-Forwarded-For; then
//     RemoteAddr; then "anonymous").
//
// # Quick start
//
//	reg := registry.NewPatternRegistry()
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 5})
//	registry.Register(reg, "circuit_breaker", "upstream-api", cb, nil)
//
//	store, err := registry.LoadDefaults("resilience.yaml", secretResolver)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	mux := http.NewServeMux()
//	registry.RegisterHandlers(mux, reg, store, "")
//
// # Thread safety
//
// PatternRegistry and ConfigStore are safe for concurrent use.
package registry
