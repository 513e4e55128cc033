// Package bufpool pools byte slices for the block read and write paths.
//
// The engine stages every block it touches in a scratch buffer of at
// most a few size classes (block frame, compression bound). Pooling
// those keeps the per-operation allocation count flat regardless of
// how many blocks a write spans.
//
// Buffers larger than the biggest class are allocated directly and
// never pooled, so an occasional oversized request cannot pin memory.
package bufpool

import (
	"sort"
	"sync"
)

// Pool hands out byte slices from a set of ascending size classes.
// A Get is served from the smallest class that fits; Put routes the
// buffer back by capacity. Safe for concurrent use.
type Pool struct {
	classes []int
	pools   []sync.Pool
}

// New creates a pool with the given size classes. Duplicate and
// non-positive sizes are dropped.
func New(sizes ...int) *Pool {
	seen := make(map[int]bool, len(sizes))
	classes := make([]int, 0, len(sizes))
	for _, s := range sizes {
		if s <= 0 || seen[s] {
			continue
		}
		seen[s] = true
		classes = append(classes, s)
	}
	sort.Ints(classes)

	p := &Pool{
		classes: classes,
		pools:   make([]sync.Pool, len(classes)),
	}
	for i, size := range classes {
		size := size
		p.pools[i].New = func() any {
			buf := make([]byte, size)
			return &buf
		}
	}
	return p
}

// Get returns a slice of exactly size bytes. Its capacity may be
// larger when it comes from a pooled class. The caller returns it
// with Put when done.
func (p *Pool) Get(size int) []byte {
	for i, class := range p.classes {
		if size <= class {
			buf := *p.pools[i].Get().(*[]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a buffer obtained from Get. Buffers whose capacity does
// not match a size class are left to the garbage collector.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	capacity := cap(buf)
	for i, class := range p.classes {
		if capacity == class {
			full := buf[:capacity]
			p.pools[i].Put(&full)
			return
		}
	}
}
