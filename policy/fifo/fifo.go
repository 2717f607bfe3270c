// Package fifo implements the FIFO eviction policy.
package fifo

import "github.com/bellirodrigo2/flexcache/policy"

// fifo keeps pure insertion order: entries join at the front and are
// evicted from the back, and accesses never reorder anything. It is
// structurally the same as LRU minus the access-time promotion.
type fifo[V any] struct {
	h policy.Hooks[V]
}

type fifoPolicy[V any] struct{}

// New returns a Policy factory that constructs per-cache FIFO instances.
func New[V any]() policy.Policy[V] { return fifoPolicy[V]{} }

func (fifoPolicy[V]) New(h policy.Hooks[V]) policy.CachePolicy[V] {
	return &fifo[V]{h: h}
}

// OnInsert appends the new entry at the front (youngest end).
func (p *fifo[V]) OnInsert(n policy.Node[V]) { p.h.PushFront(n) }

// OnAccess is a no-op: reads do not change insertion order.
func (p *fifo[V]) OnAccess(policy.Node[V]) {}

// OnRemove detaches the entry from the insertion-order list.
func (p *fifo[V]) OnRemove(n policy.Node[V]) { p.h.Remove(n) }

// Victim returns the oldest inserted entry still present, or nil when empty.
func (p *fifo[V]) Victim() policy.Node[V] { return p.h.Back() }
