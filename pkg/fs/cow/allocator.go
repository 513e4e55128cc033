// Package cow implements the copy-on-write block path: a monotonic
// block allocator and a writer that never mutates a block in place.
package cow

import "sync/atomic"

// Allocator issues physical block ids. Ids are monotonic and never
// reused within a mount, which is what makes copy-on-write writes safe:
// a new id can never collide with a live block.
//
// Next is an atomic fetch-and-increment, safe for concurrent id
// issuance even though the surrounding write path is single-owner.
type Allocator struct {
	next atomic.Uint64
}

// NewAllocator creates an allocator whose first issued id is start.
func NewAllocator(start uint64) *Allocator {
	a := &Allocator{}
	a.next.Store(start)
	return a
}

// Next returns a fresh block id. Allocation never blocks.
func (a *Allocator) Next() uint64 {
	return a.next.Add(1) - 1
}

// Peek returns the id the next call to Next would produce.
func (a *Allocator) Peek() uint64 {
	return a.next.Load()
}
