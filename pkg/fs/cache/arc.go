package cache

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// ARC is the adaptive strategy balancing recency against frequency.
//
// It maintains four logical lists: t1 holds entries seen exactly once
// recently, t2 holds entries seen at least twice, and b1/b2 are ghost
// lists remembering keys recently evicted from t1/t2 (keys only, no
// values). A hit in a ghost list means the corresponding real list was
// sized too small for the current workload, so the target boundary p
// between t1 and t2 shifts toward it. Under mixed scan/loop access
// patterns this adapts where a pure LRU keeps thrashing.
//
// Capacity invariant: t1.Len() + t2.Len() <= size at all times.
type ARC[V any] struct {
	size int // shared capacity of t1 + t2
	p    int // adaptive target size of t1

	t1 *simplelru.LRU[uint32, V]        // recently used once
	t2 *simplelru.LRU[uint32, V]        // frequently used
	b1 *simplelru.LRU[uint32, struct{}] // ghosts of t1
	b2 *simplelru.LRU[uint32, struct{}] // ghosts of t2

	metrics Metrics
	hits    uint64
	misses  uint64
}

// NewARC creates an adaptive cache with the given node capacity.
func NewARC[V any](capacity int, metrics Metrics) (*ARC[V], error) {
	t1, err := simplelru.NewLRU[uint32, V](capacity, nil)
	if err != nil {
		return nil, err
	}
	t2, err := simplelru.NewLRU[uint32, V](capacity, nil)
	if err != nil {
		return nil, err
	}
	b1, err := simplelru.NewLRU[uint32, struct{}](capacity, nil)
	if err != nil {
		return nil, err
	}
	b2, err := simplelru.NewLRU[uint32, struct{}](capacity, nil)
	if err != nil {
		return nil, err
	}

	return &ARC[V]{
		size:    capacity,
		t1:      t1,
		t2:      t2,
		b1:      b1,
		b2:      b2,
		metrics: metrics,
	}, nil
}

// Get implements Strategy. A hit in t1 promotes the entry to t2; a hit
// in t2 refreshes its recency there.
func (c *ARC[V]) Get(inode uint32) (V, bool) {
	if value, ok := c.t1.Peek(inode); ok {
		c.t1.Remove(inode)
		c.t2.Add(inode, value)
		c.hits++
		observeHit(c.metrics)
		return value, true
	}

	if value, ok := c.t2.Get(inode); ok {
		c.hits++
		observeHit(c.metrics)
		return value, true
	}

	c.misses++
	observeMiss(c.metrics)
	var zero V
	return zero, false
}

// Put implements Strategy.
func (c *ARC[V]) Put(inode uint32, value V) {
	// Already resident: refresh in place, promoting t1 entries.
	if c.t1.Contains(inode) {
		c.t1.Remove(inode)
		c.t2.Add(inode, value)
		return
	}
	if c.t2.Contains(inode) {
		c.t2.Add(inode, value)
		return
	}

	// Ghost hit in b1: the recency list was too small. Grow p.
	if c.b1.Contains(inode) {
		delta := 1
		if b1len, b2len := c.b1.Len(), c.b2.Len(); b2len > b1len {
			delta = b2len / b1len
		}
		if c.p+delta >= c.size {
			c.p = c.size
		} else {
			c.p += delta
		}
		if c.t1.Len()+c.t2.Len() >= c.size {
			c.replace(false)
		}
		c.b1.Remove(inode)
		c.t2.Add(inode, value)
		setEntries(c.metrics, c.Len())
		return
	}

	// Ghost hit in b2: the frequency list was too small. Shrink p.
	if c.b2.Contains(inode) {
		delta := 1
		if b1len, b2len := c.b1.Len(), c.b2.Len(); b1len > b2len {
			delta = b1len / b2len
		}
		if delta >= c.p {
			c.p = 0
		} else {
			c.p -= delta
		}
		if c.t1.Len()+c.t2.Len() >= c.size {
			c.replace(true)
		}
		c.b2.Remove(inode)
		c.t2.Add(inode, value)
		setEntries(c.metrics, c.Len())
		return
	}

	// Brand new key.
	if c.t1.Len()+c.b1.Len() == c.size {
		if c.t1.Len() < c.size {
			c.b1.RemoveOldest()
			c.replace(false)
		} else {
			c.t1.RemoveOldest()
			observeEviction(c.metrics)
		}
	} else if c.t1.Len()+c.t2.Len()+c.b1.Len()+c.b2.Len() >= c.size {
		if c.t1.Len()+c.t2.Len()+c.b1.Len()+c.b2.Len() >= 2*c.size {
			c.b2.RemoveOldest()
		}
		if c.t1.Len()+c.t2.Len() >= c.size {
			c.replace(false)
		}
	}

	c.t1.Add(inode, value)
	setEntries(c.metrics, c.Len())
}

// replace evicts from t1 or t2 into the matching ghost list, steering
// toward the adaptive target p.
func (c *ARC[V]) replace(b2Hit bool) {
	t1len := c.t1.Len()
	if t1len > 0 && (t1len > c.p || (t1len == c.p && b2Hit)) {
		if key, _, ok := c.t1.RemoveOldest(); ok {
			c.b1.Add(key, struct{}{})
			observeEviction(c.metrics)
		}
		return
	}
	if key, _, ok := c.t2.RemoveOldest(); ok {
		c.b2.Add(key, struct{}{})
		observeEviction(c.metrics)
	}
}

// Remove implements Strategy. The key is dropped from the real lists
// and forgotten by the ghosts.
func (c *ARC[V]) Remove(inode uint32) {
	c.t1.Remove(inode)
	c.t2.Remove(inode)
	c.b1.Remove(inode)
	c.b2.Remove(inode)
	setEntries(c.metrics, c.Len())
}

// Len implements Strategy.
func (c *ARC[V]) Len() int {
	return c.t1.Len() + c.t2.Len()
}

// Stats implements Strategy.
func (c *ARC[V]) Stats() Stats {
	return Stats{Hits: c.hits, Misses: c.misses, Size: c.Len()}
}
