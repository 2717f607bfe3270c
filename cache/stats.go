package cache

// StatsSnapshot is a point-in-time copy of the cache counters. Hits and
// misses are counted per Get; evictions cover capacity-driven removals,
// expirations cover TTL-driven ones.
type StatsSnapshot struct {
	Hits        int64
	Misses      int64
	Evictions   uint64
	Expirations uint64
}

// HitRate returns the hit ratio in [0, 1]; 0 when no lookups happened.
func (s StatsSnapshot) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns a snapshot of the counters. Reads are atomic and do not
// take the cache lock.
func (c *cache[V]) Stats() StatsSnapshot {
	return StatsSnapshot{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evicts.Load(),
		Expirations: c.expired.Load(),
	}
}
