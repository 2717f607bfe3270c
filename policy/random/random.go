// Package random implements uniform-random eviction.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"

	"github.com/bellirodrigo2/flexcache/policy"
)

// fallbackSeed is used when the system entropy source is unavailable.
// Reproducibility is not a contract either way.
const fallbackSeed = 0x5eedcafe

// random keeps an indexable membership set: a vector of resident nodes
// plus a back-index (key -> vector position), so removal is O(1) via
// swap-with-last. Victims are drawn uniformly across the membership.
// The intrusive list hooks are unused; ordering lives entirely here.
type random[V any] struct {
	nodes []policy.Node[V]
	pos   map[string]int
	rng   *rand.Rand
}

type randomPolicy[V any] struct {
	seed    int64
	seedSet bool
}

// New returns a Policy factory whose instances are seeded from the
// system entropy source (fixed fallback if it is unavailable).
func New[V any]() policy.Policy[V] { return randomPolicy[V]{} }

// NewSeeded returns a Policy factory with a caller-supplied seed.
// Intended for tests; production callers should use New.
func NewSeeded[V any](seed int64) policy.Policy[V] {
	return randomPolicy[V]{seed: seed, seedSet: true}
}

func (f randomPolicy[V]) New(policy.Hooks[V]) policy.CachePolicy[V] {
	seed := f.seed
	if !f.seedSet {
		seed = entropySeed()
	}
	return &random[V]{
		pos: make(map[string]int),
		rng: rand.New(rand.NewSource(seed)),
	}
}

// entropySeed draws 8 bytes from crypto/rand, falling back to a fixed
// constant if the read fails.
func entropySeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return fallbackSeed
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// OnInsert appends the entry to the membership vector.
func (p *random[V]) OnInsert(n policy.Node[V]) {
	p.pos[n.Key()] = len(p.nodes)
	p.nodes = append(p.nodes, n)
}

// OnAccess is a no-op: recency does not matter for random eviction.
func (p *random[V]) OnAccess(policy.Node[V]) {}

// OnRemove drops the entry by swapping it with the last vector slot.
func (p *random[V]) OnRemove(n policy.Node[V]) {
	i, ok := p.pos[n.Key()]
	if !ok {
		return
	}
	last := len(p.nodes) - 1
	if i != last {
		moved := p.nodes[last]
		p.nodes[i] = moved
		p.pos[moved.Key()] = i
	}
	p.nodes[last] = nil
	p.nodes = p.nodes[:last]
	delete(p.pos, n.Key())
}

// Victim draws a member with uniform probability, or nil when empty.
func (p *random[V]) Victim() policy.Node[V] {
	if len(p.nodes) == 0 {
		return nil
	}
	return p.nodes[p.rng.Intn(len(p.nodes))]
}
