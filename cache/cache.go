package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bellirodrigo2/flexcache/internal/singleflight"
	"github.com/bellirodrigo2/flexcache/internal/util"
	"github.com/bellirodrigo2/flexcache/policy"
	"github.com/bellirodrigo2/flexcache/policy/fifo"
	"github.com/bellirodrigo2/flexcache/policy/lru"
	"github.com/bellirodrigo2/flexcache/policy/random"
)

// cache is the single-lock engine behind the Cache interface. One
// RWMutex guards the entry table, the intrusive ordering list, the TTL
// heap and both counters as one unit, so every invariant between them
// holds on operation exit.
type cache[V any] struct {
	// ---- guarded by mu ----
	mu       sync.RWMutex
	m        map[string]*entry[V]
	head     *entry[V] // most recent
	tail     *entry[V] // oldest
	count    int
	bytes    int64
	ttl      *ttlTracker
	pol      policy.CachePolicy[V]
	lastScan int64

	closed atomic.Bool
	opt    Options[V]
	log    zerolog.Logger

	// singleflight group for coalescing concurrent loads in GetOrLoad.
	sf singleflight.Group[V]

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_       util.CacheLinePad
	hits    util.PaddedAtomicInt64
	misses  util.PaddedAtomicInt64
	evicts  util.PaddedAtomicUint64
	expired util.PaddedAtomicUint64
}

// New constructs a cache with the provided Options.
// Defaults:
//   - empty Eviction -> "lru"
//   - nil Metrics    -> NoopMetrics
//   - nil Logger     -> disabled logger
//
// Construction fails with an ErrBadArgument-wrapped error on an unknown
// eviction name or a negative MaxItems/MaxBytes/ScanInterval.
func New[V any](opt Options[V]) (Cache[V], error) {
	if opt.MaxItems < 0 {
		return nil, fmt.Errorf("%w: MaxItems %d", ErrBadArgument, opt.MaxItems)
	}
	if opt.MaxBytes < 0 {
		return nil, fmt.Errorf("%w: MaxBytes %d", ErrBadArgument, opt.MaxBytes)
	}
	if opt.ScanInterval < 0 {
		return nil, fmt.Errorf("%w: ScanInterval %v", ErrBadArgument, opt.ScanInterval)
	}

	fac := opt.Policy
	if fac == nil {
		var err error
		if fac, err = policyFor[V](opt.Eviction); err != nil {
			return nil, err
		}
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	logger := zerolog.Nop()
	if opt.Logger != nil {
		logger = *opt.Logger
	}

	c := &cache[V]{
		m:   make(map[string]*entry[V]),
		ttl: newTTLTracker(),
		opt: opt,
		log: logger,
	}
	// Bind the policy to this cache's ordering list. The policy identity
	// is fixed here; switching is not supported.
	c.pol = fac.New(cacheHooks[V]{c: c})
	c.lastScan = c.now()
	return c, nil
}

// policyFor maps an eviction name to its policy factory.
func policyFor[V any](name string) (policy.Policy[V], error) {
	switch name {
	case "", EvictionLRU:
		return lru.New[V](), nil
	case EvictionFIFO:
		return fifo.New[V](), nil
	case EvictionRandom:
		return random.New[V](), nil
	default:
		return nil, fmt.Errorf("%w: unknown eviction policy %q", ErrBadArgument, name)
	}
}

// ---- Cache[V] implementation ----

// Set inserts key→v with no deadline.
func (c *cache[V]) Set(key string, v V) error {
	return c.set(key, v, 0)
}

// SetWithTTL inserts key→v with a relative deadline. A non-positive ttl
// disables expiration for this entry.
func (c *cache[V]) SetWithTTL(key string, v V, ttl time.Duration) error {
	return c.set(key, v, c.deadlineIn(ttl))
}

// SetAt inserts key→v with an absolute wall-clock deadline. The wall
// instant is converted onto the cache clock once, here; a past instant
// yields a deadline strictly before now.
func (c *cache[V]) SetAt(key string, v V, at time.Time) error {
	return c.set(key, v, c.deadlineAt(at))
}

// Get returns the value for key and a presence flag. Runs a due
// periodic sweep first, then enforces the entry's own deadline lazily.
func (c *cache[V]) Get(key string) (V, bool) {
	var zero V
	if c.closed.Load() {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeSweepLocked()

	e, ok := c.m[key]
	if !ok {
		c.misses.Add(1)
		c.opt.Metrics.Miss()
		return zero, false
	}
	if c.expiredLocked(e) {
		c.expireLocked(e)
		c.opt.Metrics.Size(c.count, c.bytes)
		c.misses.Add(1)
		c.opt.Metrics.Miss()
		return zero, false
	}

	c.pol.OnAccess(e)
	c.hits.Add(1)
	c.opt.Metrics.Hit()
	return e.val, true
}

// GetOrLoad returns the value for key; on miss it loads via
// Options.Loader, coalescing concurrent loads for the same key.
func (c *cache[V]) GetOrLoad(ctx context.Context, key string) (V, error) {
	// fast path
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	if c.opt.Loader == nil {
		var zero V
		return zero, ErrNoLoader
	}

	return c.sf.Do(ctx, key, func() (V, error) {
		// double-check after flight join
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := c.opt.Loader(ctx, key)
		if err == nil {
			// A concurrent Set may have won the key (ErrDuplicateKey);
			// the freshly loaded value still serves this call.
			_ = c.Set(key, v)
		}
		return v, err
	})
}

// Delete removes key if present and reports whether a removal occurred.
func (c *cache[V]) Delete(key string) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.m[key]
	if !ok {
		return false
	}
	c.removeEntryLocked(e)
	c.opt.Metrics.Size(c.count, c.bytes)
	// Note: explicit Delete is not counted as an eviction in metrics.
	return true
}

// Scan sweeps the TTL tracker now and returns the number of removed entries.
func (c *cache[V]) Scan() int {
	if c.closed.Load() {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

// Clear removes every entry, firing each close capability once, and
// resets the counters to zero.
func (c *cache[V]) Clear() {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// Len returns the number of resident entries (expired-but-unswept included).
func (c *cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

// Bytes returns the total recorded weight of resident entries.
func (c *cache[V]) Bytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bytes
}

// Close marks the cache as closed and releases every resident value.
// Future operations are ignored.
func (c *cache[V]) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	return nil
}

// -------------------- internals (mu held) --------------------

// set is the single insertion path. deadline is absolute on the cache
// clock; 0 means never. Order matters: validation and weighing happen
// before the capacity governor, so a failed set has no side effects.
func (c *cache[V]) set(key string, v V, deadline int64) error {
	if c.closed.Load() {
		return nil
	}
	if key == "" {
		return ErrEmptyKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.m[key]; exists {
		return ErrDuplicateKey
	}
	w, err := c.weigh(v)
	if err != nil {
		return err
	}

	// Capacity governor: item cap first, then the byte budget. If the
	// ordering drains and the new value alone still exceeds MaxBytes,
	// the insertion proceeds: the single oversize entry is accepted.
	for c.opt.MaxItems > 0 && c.count+1 > c.opt.MaxItems {
		if !c.evictOneLocked(EvictPolicy) {
			break
		}
	}
	for c.opt.MaxBytes > 0 && c.bytes+w > c.opt.MaxBytes && c.count > 0 {
		if !c.evictOneLocked(EvictCapacity) {
			break
		}
	}

	e := &entry[V]{key: key, val: v, weight: w, deadline: deadline, closeFn: closeCap(v)}
	c.m[key] = e
	c.count++
	c.bytes += w
	if deadline != 0 {
		c.ttl.arm(key, deadline)
	}
	c.pol.OnInsert(e)
	c.opt.Metrics.Size(c.count, c.bytes)

	c.maybeSweepLocked()
	return nil
}

// weigh resolves the entry weight: Options.Cost if set, else the Sizer
// capability, else 1. A panic or a negative result aborts the set.
func (c *cache[V]) weigh(v V) (w int64, err error) {
	sizer, hasCap := any(v).(Sizer)
	if c.opt.Cost == nil && !hasCap {
		return 1, nil
	}
	defer func() {
		if r := recover(); r != nil {
			w, err = 0, fmt.Errorf("%w: %v", ErrValueSize, r)
		}
	}()
	var n int
	if c.opt.Cost != nil {
		n = c.opt.Cost(v)
	} else {
		n = sizer.ItemSize()
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative weight %d", ErrValueSize, n)
	}
	return int64(n), nil
}

// evictOneLocked asks the policy for a victim and removes it. Returns
// false when the ordering is empty.
func (c *cache[V]) evictOneLocked(reason EvictReason) bool {
	n := c.pol.Victim()
	if n == nil {
		return false
	}
	e := n.(*entry[V])
	c.removeEntryLocked(e)
	c.evicts.Add(1)
	c.opt.Metrics.Evict(reason)
	if cb := c.opt.OnEvict; cb != nil {
		cb(e.key, e.val, reason)
	}
	return true
}

// expireLocked removes an entry whose deadline has passed.
func (c *cache[V]) expireLocked(e *entry[V]) {
	c.removeEntryLocked(e)
	c.expired.Add(1)
	c.opt.Metrics.Evict(EvictTTL)
	if cb := c.opt.OnEvict; cb != nil {
		cb(e.key, e.val, EvictTTL)
	}
}

// removeEntryLocked is the single removal path: policy ordering, TTL
// tracker, entry table and counters leave together, then the close
// capability fires — still inside the guard, after the state transition.
func (c *cache[V]) removeEntryLocked(e *entry[V]) {
	c.pol.OnRemove(e)
	c.ttl.disarm(e.key)
	delete(c.m, e.key)
	c.count--
	c.bytes -= e.weight
	if c.bytes < 0 {
		c.bytes = 0
	}
	c.closeValue(e)
}

// clearLocked drains everything and resets counters.
func (c *cache[V]) clearLocked() {
	for _, e := range c.m {
		c.pol.OnRemove(e)
		c.closeValue(e)
	}
	c.m = make(map[string]*entry[V])
	c.head, c.tail = nil, nil
	c.count, c.bytes = 0, 0
	c.ttl.reset()
	c.opt.Metrics.Size(0, 0)
}

// closeValue fires the entry's close capability at most once. The hook
// is never allowed to propagate: panics are recovered and logged, and
// the entry is considered removed regardless.
func (c *cache[V]) closeValue(e *entry[V]) {
	fn := e.closeFn
	if fn == nil {
		return
	}
	e.closeFn = nil
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn().Str("key", e.key).Any("panic", r).Msg("cache: close hook panicked")
		}
	}()
	fn()
}

// sweepLocked removes every entry whose deadline is at or before now.
// Keys the tracker still remembers but the table no longer holds are
// skipped without error.
func (c *cache[V]) sweepLocked(now int64) int {
	removed := 0
	for _, key := range c.ttl.sweep(now) {
		e, ok := c.m[key]
		if !ok {
			continue
		}
		c.expireLocked(e)
		removed++
	}
	if removed > 0 {
		c.opt.Metrics.Size(c.count, c.bytes)
	}
	return removed
}

// maybeSweepLocked runs the periodic sweep when one is due.
func (c *cache[V]) maybeSweepLocked() {
	iv := c.opt.ScanInterval
	if iv <= 0 {
		return
	}
	now := c.now()
	if now-c.lastScan >= int64(iv) {
		c.sweepLocked(now)
		c.lastScan = now
	}
}

func (c *cache[V]) expiredLocked(e *entry[V]) bool {
	if e.deadline == 0 {
		return false
	}
	return c.now() >= e.deadline
}

// monoEpoch anchors the default clock: its readings are nanoseconds
// elapsed since this instant on the monotonic clock.
var monoEpoch = time.Now()

func (c *cache[V]) now() int64 {
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return int64(time.Since(monoEpoch))
}

// deadlineIn converts a relative TTL into an absolute deadline.
// A non-positive ttl returns 0 (no expiration).
func (c *cache[V]) deadlineIn(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return c.now() + int64(ttl)
}

// deadlineAt converts a wall-clock instant into an absolute deadline
// using the wall-to-monotonic offset at this call. Past instants yield
// a deadline strictly before now, forcing expiration on the next
// observation.
func (c *cache[V]) deadlineAt(at time.Time) int64 {
	now := c.now()
	d := time.Until(at)
	if d <= 0 {
		return now - 1
	}
	return now + int64(d)
}

// ---- intrusive list (mu held; counters live on the cache, not here) ----

// insertFront inserts e at the most-recent end in O(1).
func (c *cache[V]) insertFront(e *entry[V]) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

// moveToFront promotes e to the most-recent end in O(1).
func (c *cache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	// detach
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if c.tail == e {
		c.tail = e.prev
	}
	// insert at head
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

// removeNode detaches e from the list in O(1).
func (c *cache[V]) removeNode(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if c.head == e {
		c.head = e.next
	}
	if c.tail == e {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

// -------------------- policy hooks --------------------

// cacheHooks adapts the cache's list operations to policy.Hooks.
type cacheHooks[V any] struct{ c *cache[V] }

func (h cacheHooks[V]) MoveToFront(n policy.Node[V]) { h.c.moveToFront(n.(*entry[V])) }
func (h cacheHooks[V]) PushFront(n policy.Node[V])   { h.c.insertFront(n.(*entry[V])) }
func (h cacheHooks[V]) Remove(n policy.Node[V]) {
	// Policies call Remove while the cache lock is held.
	// Map and counter bookkeeping is performed by the cache itself.
	h.c.removeNode(n.(*entry[V]))
}

func (h cacheHooks[V]) Back() policy.Node[V] {
	if h.c.tail == nil {
		return nil
	}
	return h.c.tail
}

func (h cacheHooks[V]) Len() int { return h.c.count }
