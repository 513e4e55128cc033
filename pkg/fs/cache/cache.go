// Package cache holds decoded nodes between reads so the hot path skips
// the seek + TLV decode entirely.
//
// Two eviction strategies are provided behind one capability interface:
// a recency-only LRU and an adaptive strategy (ARC) that balances
// recency against frequency using ghost lists of evicted keys. The
// strategy is chosen once, at engine open time, from configuration.
//
// A cache miss is never an error; callers fall back to decoding from
// storage and populate the cache afterward.
package cache

import (
	"fmt"
	"strings"
)

// Strategy names accepted by New.
const (
	StrategyLRU = "lru"
	StrategyARC = "arc"
)

// DefaultCapacity is the node capacity used when configuration does not
// specify one.
const DefaultCapacity = 1024

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Strategy is the pluggable eviction policy over decoded nodes.
//
// Implementations are not safe for concurrent use; the owning engine
// serializes access (see the engine's concurrency notes).
type Strategy[V any] interface {
	// Get returns the cached value and promotes its bookkeeping.
	Get(inode uint32) (V, bool)

	// Put inserts or replaces a value, evicting per policy. After
	// Put(k, v), an immediate Get(k) is always a hit.
	Put(inode uint32, value V)

	// Remove drops a key, if present. Used to invalidate a node after
	// its on-disk record is superseded.
	Remove(inode uint32)

	// Len returns the number of resident entries; always <= capacity.
	Len() int

	// Stats returns hit/miss counters and the resident size.
	Stats() Stats
}

// New constructs the strategy named by name with the given capacity.
func New[V any](name string, capacity int, metrics Metrics) (Strategy[V], error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	switch strings.ToLower(name) {
	case "", StrategyLRU:
		return NewLRU[V](capacity, metrics)
	case StrategyARC:
		return NewARC[V](capacity, metrics)
	default:
		return nil, fmt.Errorf("unknown cache strategy %q (want %q or %q)",
			name, StrategyLRU, StrategyARC)
	}
}
