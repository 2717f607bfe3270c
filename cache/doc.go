// Package cache provides a generic in-memory key/value cache with
// pluggable eviction policies (LRU by default), per-entry TTL with
// periodic and on-access sweeping, byte-weight capacity, optional
// singleflight loading, and lightweight metrics hooks.
//
// Design
//
//   - Concurrency: one cache runs all operations under a single
//     exclusive critical section guarding the entry table, the policy
//     ordering, the TTL heap and the counters as one unit. The core is
//     small enough that finer-grained locking would only expose
//     invariant violations; independent caches run in parallel.
//
//   - Storage: a map[string]*entry for lookups plus an intrusive
//     doubly linked list for the LRU/FIFO orderings. All operations are
//     O(1) expected; deadline bookkeeping adds O(log n) heap work.
//
//   - Policies: eviction is pluggable via the policy package. LRU is
//     the default; FIFO and uniform-random are provided, and custom
//     policies plug in through Options.Policy without changing the
//     engine.
//
//   - Semantics: Set inserts only — a second Set on a live key fails
//     with ErrDuplicateKey and changes nothing; delete first to
//     replace. Empty keys are rejected.
//
//   - TTL: deadlines are absolute nanosecond timestamps on the cache
//     clock. Expiration is enforced lazily on Get, by explicit Scan
//     calls, and by the periodic sweep that Set/Get trigger when
//     ScanInterval has elapsed. Expired entries still count toward
//     Len/Bytes until physically removed.
//
//   - Weights/MaxBytes: each value's weight is taken once, at
//     insertion, from its Sizer capability (or Options.Cost); values
//     without either weigh 1. Inserts evict until both the entry count
//     and the byte budget are satisfied; a single value heavier than
//     the whole budget is still admitted once the cache is empty.
//
//   - Values: the cache never inspects value contents. The optional
//     Sizer and Closer capabilities are resolved once at insertion;
//     Closer fires exactly once when the value leaves the cache, on
//     every removal path.
//
//   - GetOrLoad: coalesces concurrent loads for the same key using
//     singleflight. If Loader is nil, GetOrLoad returns ErrNoLoader.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals.
//     By default NoopMetrics is used; plug a Prometheus adapter to
//     export metrics.
//
// Basic usage
//
//	c, err := cache.New[[]byte](cache.Options[[]byte]{MaxItems: 10_000})
//	if err != nil {
//	    // unknown eviction name or negative limit
//	}
//	if err := c.Set("a", []byte("1")); err != nil {
//	    // ErrDuplicateKey, ErrEmptyKey, ...
//	}
//	if v, ok := c.Get("a"); ok {
//	    _ = v // use value
//	}
//	c.Delete("a")
//
// With TTL
//
//	c, _ := cache.New[string](cache.Options[string]{ScanInterval: time.Second})
//	_ = c.SetWithTTL("tmp", "v", 200*time.Millisecond)
//	time.Sleep(300 * time.Millisecond)
//	_, ok := c.Get("tmp") // ok == false (expired)
//
// With byte weights
//
//	// Values implementing cache.Sizer are weighed at insertion.
//	c, _ := cache.New[*Blob](cache.Options[*Blob]{MaxBytes: 64 << 20})
//
// Using an alternative policy
//
//	c, _ := cache.New[string](cache.Options[string]{Eviction: cache.EvictionFIFO})
//
// Exporting metrics (example Prometheus adapter)
//
//	m := prom.New(nil, "flexcache", "demo", nil) // implements Metrics
//	c, _ := cache.New[[]byte](cache.Options[[]byte]{
//	    MaxItems: 10_000,
//	    Metrics:  m,
//	})
//
// See cache/options.go for all available Options fields and package
// policy for the Policy/Hooks interfaces used to implement custom
// strategies.
package cache
