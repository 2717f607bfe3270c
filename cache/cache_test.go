package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bellirodrigo2/flexcache/policy/random"
)

type fakeClock struct{ t int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t }
func (f *fakeClock) add(d time.Duration) { f.t += int64(d) }

// tracked is a test value carrying its own weight and counting how many
// times the cache fired its close capability.
type tracked struct {
	size   int
	closes int32
}

func (t *tracked) ItemSize() int { return t.size }
func (t *tracked) Close()        { atomic.AddInt32(&t.closes, 1) }

func (t *tracked) closedTimes() int32 { return atomic.LoadInt32(&t.closes) }

func newCache[V any](t *testing.T, opt Options[V]) Cache[V] {
	t.Helper()
	c, err := New[V](opt)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// Basic Set/Get/Delete semantics.
// Set inserts only if key is absent; Delete reports whether it removed.
func TestCache_BasicSetGetDelete(t *testing.T) {
	t.Parallel()

	c := newCache(t, Options[int]{})

	if err := c.Set("a", 1); err != nil {
		t.Fatalf("Set a=1: %v", err)
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get a want 1, got %v ok=%v", v, ok)
	}
	if c.Len() != 1 || c.Bytes() != 1 {
		t.Fatalf("counters want (1,1), got (%d,%d)", c.Len(), c.Bytes())
	}

	if !c.Delete("a") {
		t.Fatal("Delete a must be true")
	}
	if c.Delete("a") {
		t.Fatal("second Delete must be false")
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("a must be absent after Delete")
	}
	if c.Len() != 0 || c.Bytes() != 0 {
		t.Fatalf("counters must be zero, got (%d,%d)", c.Len(), c.Bytes())
	}
}

// A failed Set leaves the cache exactly as it was: empty keys are
// rejected, and a duplicate key keeps the original value (delete first
// to replace).
func TestCache_SetErrors(t *testing.T) {
	t.Parallel()

	c := newCache(t, Options[string]{})

	if err := c.Set("", "v"); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("empty key: want ErrEmptyKey, got %v", err)
	}

	if err := c.Set("k", "v1"); err != nil {
		t.Fatalf("Set k=v1: %v", err)
	}
	if err := c.Set("k", "v2"); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("duplicate: want ErrDuplicateKey, got %v", err)
	}
	if v, ok := c.Get("k"); !ok || v != "v1" {
		t.Fatalf("original value must survive a failed Set, got %q ok=%v", v, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("Len want 1, got %d", c.Len())
	}
}

// Deterministic LRU eviction with MaxItems=3.
// Accessing "a" promotes it; inserting "d" evicts the least recent ("b").
func TestCache_EvictionLRU(t *testing.T) {
	t.Parallel()

	c := newCache(t, Options[int]{MaxItems: 3})

	_ = c.Set("a", 1)
	_ = c.Set("b", 2)
	_ = c.Set("c", 3)

	if _, ok := c.Get("a"); !ok { // promote a
		t.Fatal("expect hit for a")
	}
	_ = c.Set("d", 4) // overflow -> evict LRU (b)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatal("a must survive (promoted)")
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("b must be evicted")
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatal("c must be present")
	}
	if v, ok := c.Get("d"); !ok || v != 4 {
		t.Fatal("d must be present")
	}
	if c.Len() != 3 {
		t.Fatalf("Len want 3, got %d", c.Len())
	}
}

// FIFO ignores accesses: repeated Gets on "a" do not save it from being
// the first-inserted victim.
func TestCache_EvictionFIFO(t *testing.T) {
	t.Parallel()

	c := newCache(t, Options[int]{Eviction: EvictionFIFO, MaxItems: 3})

	_ = c.Set("a", 1)
	_ = c.Set("b", 2)
	_ = c.Set("c", 3)
	c.Get("a")
	c.Get("a")
	_ = c.Set("d", 4) // evicts first-inserted "a"

	if _, ok := c.Get("a"); ok {
		t.Fatal("a must be evicted under FIFO despite accesses")
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Fatal("b must be present")
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatal("c must be present")
	}
	if v, ok := c.Get("d"); !ok || v != 4 {
		t.Fatal("d must be present")
	}
}

// Byte-weight eviction: inserting past MaxBytes drains victims oldest
// first, firing each close capability exactly once.
func TestCache_MaxBytesEviction(t *testing.T) {
	t.Parallel()

	c := newCache(t, Options[*tracked]{MaxBytes: 100})

	k1 := &tracked{size: 50}
	k2 := &tracked{size: 50}
	k3 := &tracked{size: 60}

	_ = c.Set("k1", k1)
	_ = c.Set("k2", k2)
	_ = c.Set("k3", k3)

	if c.Bytes() > 100 {
		t.Fatalf("Bytes must stay within budget, got %d", c.Bytes())
	}
	if _, ok := c.Get("k1"); ok {
		t.Fatal("k1 must be evicted")
	}
	if got := k1.closedTimes(); got != 1 {
		t.Fatalf("k1 close must fire exactly once, got %d", got)
	}
}

// A single value heavier than the whole byte budget is still admitted
// once the ordering has been drained.
func TestCache_OversizeSingleEntry(t *testing.T) {
	t.Parallel()

	c := newCache(t, Options[*tracked]{MaxBytes: 100})

	small := &tracked{size: 40}
	huge := &tracked{size: 500}

	_ = c.Set("small", small)
	if err := c.Set("huge", huge); err != nil {
		t.Fatalf("oversize Set must succeed, got %v", err)
	}

	if _, ok := c.Get("small"); ok {
		t.Fatal("small must be evicted to make room")
	}
	if _, ok := c.Get("huge"); !ok {
		t.Fatal("huge must be resident")
	}
	if c.Len() != 1 || c.Bytes() != 500 {
		t.Fatalf("counters want (1,500), got (%d,%d)", c.Len(), c.Bytes())
	}
}

// Uses a fake clock to avoid timing flakiness.
// With ScanInterval=0 expiration is purely lazy: the entry is removed on
// the Get that observes it expired, and its close capability fires.
func TestCache_TTL_LazyExpiration(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := newCache(t, Options[*tracked]{Clock: clk})

	v := &tracked{size: 1}
	_ = c.SetWithTTL("k", v, 50*time.Millisecond)

	if _, ok := c.Get("k"); !ok {
		t.Fatal("fresh miss")
	}
	clk.add(100 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expired hit")
	}
	if c.Len() != 0 || c.Bytes() != 0 {
		t.Fatalf("expired entry must be physically removed, counters (%d,%d)", c.Len(), c.Bytes())
	}
	if got := v.closedTimes(); got != 1 {
		t.Fatalf("close must fire exactly once, got %d", got)
	}
}

// Expired-but-unswept entries are semantically absent yet still count
// toward Len and Bytes until physically removed.
func TestCache_ExpiredCountsUntilSwept(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := newCache(t, Options[string]{Clock: clk})

	_ = c.SetWithTTL("k", "v", 10*time.Millisecond)
	clk.add(time.Second)

	if c.Len() != 1 || c.Bytes() != 1 {
		t.Fatalf("unswept expired entry must still count, got (%d,%d)", c.Len(), c.Bytes())
	}
	if got := c.Scan(); got != 1 {
		t.Fatalf("Scan want 1 removal, got %d", got)
	}
	if c.Len() != 0 || c.Bytes() != 0 {
		t.Fatalf("counters must be zero after sweep, got (%d,%d)", c.Len(), c.Bytes())
	}
}

// Periodic sweeping: once ScanInterval has elapsed, the next Set or Get
// sweeps every expired entry, not just the touched key.
func TestCache_PeriodicSweep(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := newCache(t, Options[*tracked]{ScanInterval: time.Second, Clock: clk})

	v1 := &tracked{size: 1}
	v2 := &tracked{size: 1}
	_ = c.SetWithTTL("t1", v1, 100*time.Millisecond)
	_ = c.SetWithTTL("t2", v2, 200*time.Millisecond)
	_ = c.Set("keep", &tracked{size: 1})

	// Not due yet: nothing is swept by an unrelated Get.
	clk.add(500 * time.Millisecond)
	c.Get("keep")
	if c.Len() != 3 {
		t.Fatalf("sweep must not run before the interval, Len=%d", c.Len())
	}

	// Due now: the next Get sweeps both expired entries first.
	clk.add(600 * time.Millisecond)
	c.Get("keep")
	if c.Len() != 1 {
		t.Fatalf("due sweep must remove both expired entries, Len=%d", c.Len())
	}
	if v1.closedTimes() != 1 || v2.closedTimes() != 1 {
		t.Fatalf("close hooks want (1,1), got (%d,%d)", v1.closedTimes(), v2.closedTimes())
	}
}

// SetAt with a past instant inserts an already-expired entry.
func TestCache_SetAtPastInstant(t *testing.T) {
	t.Parallel()

	c := newCache(t, Options[*tracked]{})

	v := &tracked{size: 1}
	if err := c.SetAt("k", v, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("SetAt: %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry with a past deadline must be absent")
	}
	if got := v.closedTimes(); got != 1 {
		t.Fatalf("close must fire exactly once, got %d", got)
	}
}

// SetAt with a future instant behaves like a relative TTL.
func TestCache_SetAtFutureInstant(t *testing.T) {
	t.Parallel()

	c := newCache(t, Options[string]{})

	if err := c.SetAt("k", "v", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SetAt: %v", err)
	}
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("entry must be fresh, got %q ok=%v", v, ok)
	}
}

// Clear removes everything, fires every close capability once, and is
// idempotent.
func TestCache_ClearIdempotent(t *testing.T) {
	t.Parallel()

	c := newCache(t, Options[*tracked]{MaxItems: 5})

	vals := make([]*tracked, 5)
	for i := range vals {
		vals[i] = &tracked{size: 10}
		_ = c.Set(fmt.Sprintf("k%d", i), vals[i])
	}

	c.Clear()
	c.Clear()

	if c.Len() != 0 || c.Bytes() != 0 {
		t.Fatalf("counters must be zero after Clear, got (%d,%d)", c.Len(), c.Bytes())
	}
	for i, v := range vals {
		if got := v.closedTimes(); got != 1 {
			t.Fatalf("k%d close want 1, got %d", i, got)
		}
	}
	if err := c.Set("again", &tracked{size: 1}); err != nil {
		t.Fatalf("cache must be usable after Clear: %v", err)
	}
}

// Every removal path — delete, capacity eviction, expiration, clear —
// fires the close capability exactly once per value.
func TestCache_CloseExactlyOnceAcrossPaths(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := newCache(t, Options[*tracked]{MaxItems: 2, Clock: clk})

	deleted := &tracked{size: 1}
	evicted := &tracked{size: 1}
	expired := &tracked{size: 1}
	cleared := &tracked{size: 1}

	_ = c.Set("del", deleted)
	c.Delete("del")

	_ = c.Set("evict", evicted)
	_ = c.Set("x1", &tracked{size: 1})
	_ = c.Set("x2", &tracked{size: 1}) // evicts "evict" (LRU)

	c.Clear()

	_ = c.SetWithTTL("exp", expired, 10*time.Millisecond)
	clk.add(time.Minute)
	c.Get("exp")

	_ = c.Set("clr", cleared)
	c.Clear()

	for name, v := range map[string]*tracked{
		"deleted": deleted, "evicted": evicted, "expired": expired, "cleared": cleared,
	} {
		if got := v.closedTimes(); got != 1 {
			t.Fatalf("%s close want exactly 1, got %d", name, got)
		}
	}
}

// panicker's close capability panics; the cache must absorb it and stay
// consistent.
type panicker struct{ closes int32 }

func (p *panicker) Close() {
	atomic.AddInt32(&p.closes, 1)
	panic("boom")
}

func TestCache_ClosePanicAbsorbed(t *testing.T) {
	t.Parallel()

	c := newCache(t, Options[*panicker]{})

	v := &panicker{}
	_ = c.Set("k", v)
	if !c.Delete("k") {
		t.Fatal("Delete must succeed despite the panicking hook")
	}
	if c.Len() != 0 || c.Bytes() != 0 {
		t.Fatalf("entry must be gone regardless, counters (%d,%d)", c.Len(), c.Bytes())
	}
	if err := c.Set("k", &panicker{}); err != nil {
		t.Fatalf("key must be reusable: %v", err)
	}
}

// badSizer misbehaves in its size capability.
type badSizer struct {
	negative bool
}

func (b *badSizer) ItemSize() int {
	if b.negative {
		return -5
	}
	panic("size exploded")
}

// A failing size capability aborts the Set cleanly: error surfaced, no
// state change, no eviction.
func TestCache_ValueSizeError(t *testing.T) {
	t.Parallel()

	c := newCache(t, Options[any]{MaxItems: 2})

	_ = c.Set("a", 1)
	_ = c.Set("b", 2)

	if err := c.Set("neg", &badSizer{negative: true}); !errors.Is(err, ErrValueSize) {
		t.Fatalf("negative size: want ErrValueSize, got %v", err)
	}
	if err := c.Set("boom", &badSizer{}); !errors.Is(err, ErrValueSize) {
		t.Fatalf("panicking size: want ErrValueSize, got %v", err)
	}

	// No victim was taken and nothing was inserted.
	if c.Len() != 2 {
		t.Fatalf("Len want 2, got %d", c.Len())
	}
	for _, k := range []string{"a", "b"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("%s must still be present", k)
		}
	}
}

// Options.Cost overrides the value's own size capability.
func TestCache_CostOverride(t *testing.T) {
	t.Parallel()

	c := newCache(t, Options[*tracked]{
		Cost: func(*tracked) int { return 7 },
	})

	_ = c.Set("k", &tracked{size: 999})
	if c.Bytes() != 7 {
		t.Fatalf("Bytes want 7 (Cost override), got %d", c.Bytes())
	}
}

// Random fairness (statistical): across many seeded runs, every member
// of a fully populated cache is chosen as the victim at least once.
func TestCache_RandomFairness(t *testing.T) {
	t.Parallel()

	const members = 4
	victims := make(map[string]int, members)

	for seed := int64(0); seed < 200; seed++ {
		c, err := New[int](Options[int]{
			Policy:   random.NewSeeded[int](seed),
			MaxItems: members,
			OnEvict: func(key string, _ int, _ EvictReason) {
				victims[key]++
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < members; i++ {
			_ = c.Set(fmt.Sprintf("k%d", i), i)
		}
		_ = c.Set("extra", members) // forces one uniform-random eviction
		_ = c.Close()
	}

	for i := 0; i < members; i++ {
		k := fmt.Sprintf("k%d", i)
		if victims[k] == 0 {
			t.Fatalf("key %s was never chosen as victim across 200 runs: %v", k, victims)
		}
	}
}

// Stats counters reflect hits, misses, evictions and expirations.
func TestCache_Stats(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := newCache(t, Options[int]{MaxItems: 1, Clock: clk})

	_ = c.Set("a", 1)
	c.Get("a")       // hit
	c.Get("nope")    // miss
	_ = c.Set("b", 2) // evicts a

	_ = c.Delete("b")
	_ = c.SetWithTTL("t", 3, 10*time.Millisecond)
	clk.add(time.Second)
	c.Get("t") // expiration + miss

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 2 || s.Evictions != 1 || s.Expirations != 1 {
		t.Fatalf("stats mismatch: %+v", s)
	}
	if got := s.HitRate(); got <= 0 || got >= 1 {
		t.Fatalf("hit rate must be in (0,1), got %v", got)
	}
}

// Singleflight test: concurrent GetOrLoad calls for the same key
// should trigger the Loader exactly once; subsequent calls are cache hits.
func TestCache_GetOrLoad_Singleflight(t *testing.T) {
	var calls int64

	c := newCache(t, Options[string]{
		Loader: func(_ context.Context, key string) (string, error) {
			atomic.AddInt64(&calls, 1)
			time.Sleep(5 * time.Millisecond) // simulate I/O
			return "v:" + key, nil
		},
	})

	const N = 64
	var g errgroup.Group
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < N; i++ {
		g.Go(func() error {
			v, err := c.GetOrLoad(ctx, "k")
			if err != nil {
				return err
			}
			if v != "v:k" {
				return fmt.Errorf("got %q", v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("loader must run exactly once, got %d", got)
	}

	if v, err := c.GetOrLoad(context.Background(), "k"); err != nil || v != "v:k" {
		t.Fatalf("second GetOrLoad failed: v=%q err=%v", v, err)
	}
}

// GetOrLoad without a Loader configured must fail fast.
func TestCache_GetOrLoad_NoLoader(t *testing.T) {
	t.Parallel()

	c := newCache(t, Options[string]{})
	if _, err := c.GetOrLoad(context.Background(), "k"); !errors.Is(err, ErrNoLoader) {
		t.Fatalf("want ErrNoLoader, got %v", err)
	}
}

// After Close, operations are ignored and every resident value has been
// closed exactly once.
func TestCache_Close(t *testing.T) {
	t.Parallel()

	c := newCache(t, Options[*tracked]{})

	v := &tracked{size: 1}
	_ = c.Set("k", v)
	_ = c.Close()
	_ = c.Close()

	if got := v.closedTimes(); got != 1 {
		t.Fatalf("close want 1, got %d", got)
	}
	if _, ok := c.Get("k"); ok {
		t.Fatal("Get after Close must miss")
	}
	if err := c.Set("x", &tracked{size: 1}); err != nil {
		t.Fatalf("Set after Close must be a silent no-op, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("nothing may be inserted after Close, Len=%d", c.Len())
	}
}
