package layout

import (
	"encoding/binary"
	"fmt"

	"github.com/eclipse-os/eclipsefs/pkg/fs"
)

// TableEntrySize is the on-disk size of one inode table entry:
// inode:u32, relative_offset:u32.
const TableEntrySize = 8

// TableEntry maps an inode number to the offset of its node record.
// The stored offset is relative to the end of the table itself:
//
//	absolute = table_offset + table_size + RelativeOffset
type TableEntry struct {
	Inode          uint32
	RelativeOffset uint32
}

// InodeTable is the immutable inode -> record-offset map loaded once at
// mount time. Growth requires a remount.
type InodeTable struct {
	entries []TableEntry
	byInode map[uint32]uint32 // inode -> relative offset
}

// NewInodeTable builds a table from entries. Duplicate inode numbers are
// a format violation.
func NewInodeTable(entries []TableEntry) (*InodeTable, error) {
	byInode := make(map[uint32]uint32, len(entries))
	for _, e := range entries {
		if _, dup := byInode[e.Inode]; dup {
			return nil, fs.NewInvalidFormatError(
				fmt.Sprintf("duplicate inode %d in table", e.Inode))
		}
		byInode[e.Inode] = e.RelativeOffset
	}
	return &InodeTable{entries: entries, byInode: byInode}, nil
}

// Len returns the number of inodes in the table.
func (t *InodeTable) Len() int {
	return len(t.entries)
}

// Entries returns the table entries in on-disk order.
func (t *InodeTable) Entries() []TableEntry {
	return t.entries
}

// RelativeOffset looks up the stored relative offset for an inode.
func (t *InodeTable) RelativeOffset(inode uint32) (uint32, bool) {
	off, ok := t.byInode[inode]
	return off, ok
}

// Size returns the serialized table size in bytes:
// count:u32 followed by count fixed-size entries.
func (t *InodeTable) Size() uint64 {
	return 4 + uint64(len(t.entries))*TableEntrySize
}

// AbsoluteOffset computes the device offset of an inode's record given
// the table's own position on disk.
func (t *InodeTable) AbsoluteOffset(tableOffset uint64, inode uint32) (uint64, bool) {
	rel, ok := t.byInode[inode]
	if !ok {
		return 0, false
	}
	return tableOffset + t.Size() + uint64(rel), true
}

// Marshal serializes the table.
func (t *InodeTable) Marshal() []byte {
	buf := make([]byte, 0, t.Size())
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.entries)))
	for _, e := range t.entries {
		buf = binary.LittleEndian.AppendUint32(buf, e.Inode)
		buf = binary.LittleEndian.AppendUint32(buf, e.RelativeOffset)
	}
	return buf
}

// UnmarshalInodeTable parses a serialized table. buf may extend past the
// table; only the declared entries are consumed.
func UnmarshalInodeTable(buf []byte) (*InodeTable, error) {
	if len(buf) < 4 {
		return nil, fs.NewInvalidFormatError("truncated inode table count")
	}
	count := binary.LittleEndian.Uint32(buf)
	need := uint64(count) * TableEntrySize
	if uint64(len(buf)-4) < need {
		return nil, fs.NewInvalidFormatError(
			fmt.Sprintf("inode table declares %d entries but only %d bytes follow",
				count, len(buf)-4))
	}

	entries := make([]TableEntry, count)
	for i := range entries {
		base := 4 + i*TableEntrySize
		entries[i] = TableEntry{
			Inode:          binary.LittleEndian.Uint32(buf[base:]),
			RelativeOffset: binary.LittleEndian.Uint32(buf[base+4:]),
		}
	}
	return NewInodeTable(entries)
}
