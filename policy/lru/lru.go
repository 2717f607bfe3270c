// Package lru implements the LRU eviction policy.
package lru

import "github.com/bellirodrigo2/flexcache/policy"

// lru is a classic "move-to-front" Least-Recently-Used policy.
// It delegates list manipulation to policy.Hooks provided by the cache.
type lru[V any] struct {
	h policy.Hooks[V]
}

type lruPolicy[V any] struct{}

// New returns a Policy factory that constructs per-cache LRU instances.
func New[V any]() policy.Policy[V] { return lruPolicy[V]{} }

// New implements policy.Policy by binding cache hooks and returning
// a cache-local policy instance.
func (lruPolicy[V]) New(h policy.Hooks[V]) policy.CachePolicy[V] {
	return &lru[V]{h: h}
}

// OnInsert places the new entry at the most-recent end.
func (p *lru[V]) OnInsert(n policy.Node[V]) { p.h.PushFront(n) }

// OnAccess promotes the entry to the most-recent end.
func (p *lru[V]) OnAccess(n policy.Node[V]) { p.h.MoveToFront(n) }

// OnRemove detaches the entry from the recency list.
func (p *lru[V]) OnRemove(n policy.Node[V]) { p.h.Remove(n) }

// Victim returns the least-recently-used entry, or nil when empty.
func (p *lru[V]) Victim() policy.Node[V] { return p.h.Back() }
