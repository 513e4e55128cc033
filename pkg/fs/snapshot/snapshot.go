// Package snapshot holds the point-in-time metadata records and the
// content-hash deduplication table. Snapshots are append-only: once a
// record is created it is never mutated, and restore semantics are out
// of scope. The dedup table reference-counts logical owners of
// identical content so that at most one live block exists per hash.
package snapshot

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse-os/eclipsefs/pkg/fs"
)

// MaxNameLength bounds snapshot names on disk.
const MaxNameLength = 255

// NoParent marks a snapshot without a lineage parent.
const NoParent uint64 = 0

// Info is one immutable snapshot record.
type Info struct {
	ID         uint64
	Timestamp  uint64
	Name       string
	Parent     uint64
	InodeCount uint64
	BlockCount uint64
}

// Table is the append-only collection of snapshot records. Records are
// appended under the table lock; ids are monotonic and never reused.
type Table struct {
	mu     sync.RWMutex
	nextID atomic.Uint64
	byID   map[uint64]*Info
	order  []uint64
}

// NewTable returns an empty snapshot table.
func NewTable() *Table {
	return &Table{byID: make(map[uint64]*Info)}
}

// Create appends a new snapshot record capturing the given counts.
// parent may be NoParent or the id of an existing snapshot.
func (t *Table) Create(name string, parent uint64, inodeCount, blockCount uint64) (uint64, error) {
	if name == "" {
		return 0, fs.NewInvalidArgumentError("snapshot name must not be empty")
	}
	if len(name) > MaxNameLength {
		return 0, fs.NewInvalidArgumentError("snapshot name too long")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if parent != NoParent {
		if _, ok := t.byID[parent]; !ok {
			return 0, fs.NewNotFoundError("parent snapshot does not exist", "")
		}
	}

	id := t.nextID.Add(1)
	t.byID[id] = &Info{
		ID:         id,
		Timestamp:  uint64(time.Now().Unix()),
		Name:       name,
		Parent:     parent,
		InodeCount: inodeCount,
		BlockCount: blockCount,
	}
	t.order = append(t.order, id)
	return id, nil
}

// Get returns a copy of the record for id. Records are immutable, so
// the copy protects the table from caller mutation rather than the
// other way around.
func (t *Table) Get(id uint64) (Info, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, ok := t.byID[id]
	if !ok {
		return Info{}, fs.NewNotFoundError("snapshot does not exist", "")
	}
	return *info, nil
}

// List returns all records in creation order.
func (t *Table) List() []Info {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Info, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.byID[id])
	}
	return out
}

// Len reports the number of snapshot records.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// Marshal serializes the table for the snapshot section of the volume:
// count:u32 followed by one fixed-prefix record per snapshot in
// creation order.
//
// Record layout, little-endian:
//
//	id:u64 timestamp:u64 parent:u64 inode_count:u64 block_count:u64
//	name_len:u16 name[name_len]
func (t *Table) Marshal() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()

	size := 4
	for _, id := range t.order {
		size += 42 + len(t.byID[id].Name)
	}

	buf := make([]byte, 4, size)
	binary.LittleEndian.PutUint32(buf, uint32(len(t.order)))
	for _, id := range t.order {
		info := t.byID[id]
		var rec [42]byte
		binary.LittleEndian.PutUint64(rec[0:], info.ID)
		binary.LittleEndian.PutUint64(rec[8:], info.Timestamp)
		binary.LittleEndian.PutUint64(rec[16:], info.Parent)
		binary.LittleEndian.PutUint64(rec[24:], info.InodeCount)
		binary.LittleEndian.PutUint64(rec[32:], info.BlockCount)
		binary.LittleEndian.PutUint16(rec[40:], uint16(len(info.Name)))
		buf = append(buf, rec[:]...)
		buf = append(buf, info.Name...)
	}
	return buf
}

// UnmarshalTable rebuilds a table from its serialized form.
func UnmarshalTable(buf []byte) (*Table, error) {
	if len(buf) < 4 {
		return nil, fs.NewInvalidFormatError("snapshot table truncated")
	}
	count := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]

	t := NewTable()
	var maxID uint64
	for i := uint32(0); i < count; i++ {
		if len(buf) < 42 {
			return nil, fs.NewInvalidFormatError("snapshot record truncated")
		}
		info := &Info{
			ID:         binary.LittleEndian.Uint64(buf[0:]),
			Timestamp:  binary.LittleEndian.Uint64(buf[8:]),
			Parent:     binary.LittleEndian.Uint64(buf[16:]),
			InodeCount: binary.LittleEndian.Uint64(buf[24:]),
			BlockCount: binary.LittleEndian.Uint64(buf[32:]),
		}
		nameLen := int(binary.LittleEndian.Uint16(buf[40:]))
		buf = buf[42:]
		if nameLen > MaxNameLength || len(buf) < nameLen {
			return nil, fs.NewInvalidFormatError("snapshot name truncated")
		}
		info.Name = string(buf[:nameLen])
		buf = buf[nameLen:]

		if _, dup := t.byID[info.ID]; dup {
			return nil, fs.NewInvalidFormatError("duplicate snapshot id")
		}
		t.byID[info.ID] = info
		t.order = append(t.order, info.ID)
		if info.ID > maxID {
			maxID = info.ID
		}
	}
	t.nextID.Store(maxID)
	return t, nil
}
