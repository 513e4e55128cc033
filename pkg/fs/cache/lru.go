package cache

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// LRU is the recency-only strategy: a fixed-capacity map plus an
// access-order list. Insertion beyond capacity evicts the least
// recently used entry.
type LRU[V any] struct {
	lru     *simplelru.LRU[uint32, V]
	metrics Metrics

	hits   uint64
	misses uint64
}

// NewLRU creates a recency-only cache with the given node capacity.
func NewLRU[V any](capacity int, metrics Metrics) (*LRU[V], error) {
	lru, err := simplelru.NewLRU[uint32, V](capacity, nil)
	if err != nil {
		return nil, err
	}
	return &LRU[V]{lru: lru, metrics: metrics}, nil
}

// Get implements Strategy.
func (c *LRU[V]) Get(inode uint32) (V, bool) {
	value, ok := c.lru.Get(inode)
	if ok {
		c.hits++
		observeHit(c.metrics)
	} else {
		c.misses++
		observeMiss(c.metrics)
	}
	return value, ok
}

// Put implements Strategy.
func (c *LRU[V]) Put(inode uint32, value V) {
	if evicted := c.lru.Add(inode, value); evicted {
		observeEviction(c.metrics)
	}
	setEntries(c.metrics, c.lru.Len())
}

// Remove implements Strategy.
func (c *LRU[V]) Remove(inode uint32) {
	c.lru.Remove(inode)
	setEntries(c.metrics, c.lru.Len())
}

// Len implements Strategy.
func (c *LRU[V]) Len() int {
	return c.lru.Len()
}

// Stats implements Strategy.
func (c *LRU[V]) Stats() Stats {
	return Stats{Hits: c.hits, Misses: c.misses, Size: c.lru.Len()}
}
