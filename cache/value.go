package cache

// Values are opaque to the cache; these two optional interfaces form its
// capability set. Presence is resolved once, at insertion, and the
// resolution is cached inside the entry so the hot path never re-probes.

// Sizer reports a value's byte weight. Values without it weigh 1.
// ItemSize must return a non-negative number; a negative result or a
// panic aborts the insertion with ErrValueSize.
type Sizer interface {
	ItemSize() int
}

// Closer is the disposal hook invoked exactly once when the cache
// relinquishes the value, on every removal path (delete, eviction,
// expiration, clear). Panics are recovered and logged; they never leave
// the cache inconsistent.
type Closer interface {
	Close()
}

// closeCap resolves the close capability for a value, or nil.
func closeCap[V any](v V) func() {
	if cl, ok := any(v).(Closer); ok {
		return cl.Close
	}
	return nil
}
