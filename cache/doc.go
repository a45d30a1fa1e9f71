// Package cache provides deterministic caching for protected operation
// results.
//
// It provides a Cache interface with memory implementation, SHA-256-based
// key derivation, TTL policies with unsafe-tag handling, and the generic
// [Manager], which wraps an LRU cache keyed by an arbitrary comparable type
// instead of a byte-slice/string Cache.
//
// # Ecosystem Position
//
// cache sits between a caller and the operation it invokes, intercepting
// requests to avoid redundant computation:
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│                   Operation Execution Flow                      │
//	├─────────────────────────────────────────────────────────────────┤
//	│                                                                 │
//	│   caller             cache               downstream             │
//	│   ┌──────┐         ┌─────────┐          ┌─────────┐            │
//	│   │ Call │────────▶│Middleware│─────────▶│Executor │            │
//	│   └──────┘         │         │          │         │            │
//	│       ▲            │ ┌─────┐ │   miss   └─────────┘            │
//	│       │            │ │Keyer│ │              │                   │
//	│       │            │ ├─────┤ │              │                   │
//	│       │            │ │Cache│◀──────────────┘                   │
//	│       │            │ ├─────┤ │   store                         │
//	│       │    hit     │ │Policy│ │                                 │
//	│       └────────────│ └─────┘ │                                 │
//	│                    └─────────┘                                 │
//	│                                                                 │
//	└─────────────────────────────────────────────────────────────────┘
//
// # Core Components
//
//   - [Cache]: Interface for caching operation results (Get/Set/Delete)
//   - [MemoryCache]: Thread-safe in-memory cache with TTL support
//   - [Keyer]: Interface for deterministic cache key generation
//   - [DefaultKeyer]: SHA-256 based keyer with canonical JSON serialization
//   - [Policy]: Configures TTL defaults, maximums, and unsafe tag handling
//   - [CacheMiddleware]: Transparent caching wrapper for operation execution
//   - [Manager]: Generic get-or-produce LRU cache over
//     hashicorp/golang-lru/v2, for callers that want a typed value instead
//     of a byte slice.
//
// # Quick Start
//
//	// Create cache with policy
//	policy := cache.DefaultPolicy() // 5min TTL, 1hr max
//	memCache := cache.NewMemoryCache(policy)
//	keyer := cache.NewDefaultKeyer()
//
//	// Create middleware
//	mw := cache.NewCacheMiddleware(memCache, keyer, policy, nil)
//
//	// Execute with caching
//	result, err := mw.Execute(ctx, "upstream.search", input, tags,
//	    func(ctx context.Context, operationID string, input any) ([]byte, error) {
//	        return actualExecutor(ctx, operationID, input)
//	    })
//
// Or, for a typed value instead of []byte:
//
//	mgr := cache.NewManager[string, Widget](cache.ManagerConfig{Size: 1000, TTL: 5 * time.Minute})
//	widget, err := mgr.Lookup(ctx, "widget:42", func(ctx context.Context) (Widget, error) {
//	    return fetchWidget(ctx, 42)
//	})
//
// # Key Generation
//
// The [DefaultKeyer] generates deterministic cache keys using:
//
//	cache:<operationID>:<hash>
//
// Where hash is the first 16 hex characters of SHA-256(canonical JSON(input)).
// Canonical JSON ensures map keys are sorted for deterministic serialization.
//
// # TTL Policies
//
// The [Policy] type controls caching behavior:
//
//   - DefaultTTL: Applied when no specific TTL is provided
//   - MaxTTL: Upper bound for any TTL (prevents excessive caching)
//   - AllowUnsafe: Whether to cache operations with unsafe tags
//
// Preset policies:
//
//   - [DefaultPolicy]: 5 minute default, 1 hour max, unsafe=false
//   - [NoCachePolicy]: Disabled (0 TTL)
//
// # Unsafe Tag Handling
//
// Operations with certain tags should not be cached because they have side
// effects:
//
//   - write, danger, unsafe, mutation, delete
//
// The [DefaultSkipRule] checks for these tags (case-insensitive) and skips
// caching. Override via [NewCacheMiddleware]'s skipRule parameter.
//
// # Thread Safety
//
// All exported types are safe for concurrent use:
//
//   - [MemoryCache]: sync.RWMutex protects all operations
//   - [DefaultKeyer]: Stateless, concurrent-safe
//   - [CacheMiddleware]: Delegates to thread-safe Cache/Keyer
//   - [Policy]: Immutable struct, concurrent-safe
//   - [Manager]: Internal mutex protects the underlying LRU cache
//
// # Error Handling
//
// Sentinel errors (use errors.Is for checking):
//
//   - [ErrNilCache]: Cache is nil
//   - [ErrInvalidKey]: Key is empty, whitespace-only, or contains newlines
//   - [ErrKeyTooLong]: Key exceeds MaxKeyLength (512 characters)
//   - [ErrCacheMiss]: Manager.Get found no entry for the key
//
// Note: Cache.Get never returns errors - it returns (nil, false) on miss.
// Key validation is performed via [ValidateKey] function.
//
// # Integration with the rest of the module
//
//   - resilience: Combine with retry/circuit breaker for robust caching
//     around the same call a Manager or CacheMiddleware wraps.
//   - observe: Log cache hits/misses via Manager's Listener hook or the
//     cache middleware's surrounding observability wrapper.
package cache
