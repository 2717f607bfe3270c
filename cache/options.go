package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bellirodrigo2/flexcache/policy"
)

// Eviction policy names accepted by Options.Eviction.
const (
	EvictionLRU    = "lru"
	EvictionFIFO   = "fifo"
	EvictionRandom = "random"
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictPolicy — removed by the active policy to satisfy MaxItems.
	EvictPolicy EvictReason = iota
	// EvictTTL — expired (lazily on Get, or during a sweep).
	EvictTTL
	// EvictCapacity — removed to satisfy the MaxBytes budget.
	EvictCapacity
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int, bytes int64)
}

// Clock provides time in nanoseconds; useful for deterministic tests.
// Deadlines and the periodic-scan timestamp are all readings of this
// clock. The default clock is monotonic, so wall-clock adjustments cannot
// resurrect expired entries.
type Clock interface{ NowUnixNano() int64 }

// Options configures the cache behavior. Zero values are safe; defaults
// are applied in New():
//   - empty Eviction => "lru"
//   - nil Metrics    => NoopMetrics
//   - nil Logger     => no logging
//
// New validates the rest and fails with an ErrBadArgument-wrapped error
// on an unknown eviction name or a negative limit/interval. All fields
// are immutable after construction.
type Options[V any] struct {
	// Eviction selects the victim ordering: "lru" (default), "fifo" or
	// "random". Ignored when Policy is set.
	Eviction string

	// Policy plugs in a custom eviction policy directly, overriding
	// Eviction. Nil means "use Eviction".
	Policy policy.Policy[V]

	// MaxItems is the entry count limit; 0 disables the cap.
	MaxItems int

	// MaxBytes is the total weight limit; 0 disables the cap. A single
	// value whose weight alone exceeds MaxBytes is still admitted once
	// the ordering has been drained.
	MaxBytes int64

	// ScanInterval is the periodic sweep cadence. When positive, every
	// Set and Get checks whether a sweep is due and runs it inline; 0
	// disables periodic sweeping (expiration is still enforced lazily
	// on Get and by explicit Scan calls).
	ScanInterval time.Duration

	// Cost overrides the value's size capability for weight accounting.
	// Nil means: use the Sizer capability if present, else weight 1.
	Cost func(v V) int

	// Loader fetches a value on cache miss. Used by GetOrLoad.
	Loader func(ctx context.Context, key string) (V, error)

	// OnEvict is called for every eviction and expiration, under the
	// cache lock; keep callbacks lightweight. Explicit Delete and Clear
	// do not fire it (the value's close capability still runs).
	OnEvict func(key string, v V, reason EvictReason)

	// Metrics receives Hit/Miss/Evict/Size signals.
	Metrics Metrics

	// Logger receives out-of-band reports, currently recovered panics
	// from close hooks. Nil disables logging.
	Logger *zerolog.Logger

	// Clock allows overriding the time source (tests). Nil => the
	// monotonic clock (nanoseconds since package initialization).
	Clock Clock
}
