package cache

// entry is an intrusive doubly linked list element owned by the cache.
// It stores the key/value alongside list links and the metadata fixed at
// insertion: the byte weight and the resolved close capability. The
// weight is never recomputed after insertion.
type entry[V any] struct {
	key string
	val V

	// Intrusive list links: head is most recent, tail is oldest.
	// Only list-backed policies (LRU, FIFO) populate these.
	prev *entry[V]
	next *entry[V]

	// Absolute expiration deadline in nanoseconds on the cache clock.
	// Zero means "never".
	deadline int64

	// Byte weight recorded at insertion (size capability, or 1).
	weight int64

	// Close capability resolved at insertion; nil when the value has
	// none. Cleared after the first invocation.
	closeFn func()
}

// Key returns the entry key (part of the policy.Node interface).
func (e *entry[V]) Key() string { return e.key }

// Value returns a pointer to the stored value (part of policy.Node).
// NOTE: callers must only read through this pointer while holding the
// cache lock; otherwise data races may occur.
func (e *entry[V]) Value() *V { return &e.val }
