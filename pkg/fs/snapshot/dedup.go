package snapshot

import (
	"bytes"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/eclipse-os/eclipsefs/pkg/fs"
)

// HashSize is the width of a dedup content hash.
const HashSize = 32

// Hash identifies content in the dedup table.
type Hash [HashSize]byte

// HashContent computes the dedup hash for a byte string.
func HashContent(data []byte) Hash {
	return blake3.Sum256(data)
}

// DedupEntry is the bookkeeping record for one unique piece of
// content. RefCount tracks logical owners; the entry is eligible for
// reclamation only at zero.
type DedupEntry struct {
	RefCount uint64
	BlockID  uint64
	Size     uint64
}

// DedupTable maps content hashes to reference-counted block ownership.
// At most one live block exists per hash while its count is positive.
type DedupTable struct {
	mu      sync.RWMutex
	entries map[Hash]*DedupEntry
}

// NewDedupTable returns an empty dedup table.
func NewDedupTable() *DedupTable {
	return &DedupTable{entries: make(map[Hash]*DedupEntry)}
}

// Reference records one more logical owner for the given content hash.
// The first reference creates the entry, binding the hash to blockID.
// Later references increment the count and report the existing block,
// so callers can discard their freshly written duplicate. The returned
// block id is the one all owners share.
func (t *DedupTable) Reference(h Hash, blockID, size uint64) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[h]; ok {
		entry.RefCount++
		return entry.BlockID, false
	}
	t.entries[h] = &DedupEntry{RefCount: 1, BlockID: blockID, Size: size}
	return blockID, true
}

// Release drops one logical owner. The entry stays in the table at
// zero references; reclamation is a separate concern.
func (t *DedupTable) Release(h Hash) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[h]
	if !ok {
		return fs.NewNotFoundError("dedup entry does not exist", "")
	}
	if entry.RefCount == 0 {
		return fs.NewInvalidOperationError("dedup entry already at zero references", "")
	}
	entry.RefCount--
	return nil
}

// Lookup returns the entry for a content hash.
func (t *DedupTable) Lookup(h Hash) (DedupEntry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.entries[h]
	if !ok {
		return DedupEntry{}, fs.NewNotFoundError("dedup entry does not exist", "")
	}
	return *entry, nil
}

// Len reports the number of unique content hashes.
func (t *DedupTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Marshal serializes the table for the dedup section of the volume:
// count:u32 followed by hash-ordered fixed records.
//
// Record layout, little-endian:
//
//	hash[32] ref_count:u64 block_id:u64 size:u64
func (t *DedupTable) Marshal() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()

	hashes := make([]Hash, 0, len(t.entries))
	for h := range t.entries {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return bytes.Compare(hashes[i][:], hashes[j][:]) < 0
	})

	buf := make([]byte, 4, 4+len(hashes)*(HashSize+24))
	binary.LittleEndian.PutUint32(buf, uint32(len(hashes)))
	for _, h := range hashes {
		entry := t.entries[h]
		var rec [24]byte
		binary.LittleEndian.PutUint64(rec[0:], entry.RefCount)
		binary.LittleEndian.PutUint64(rec[8:], entry.BlockID)
		binary.LittleEndian.PutUint64(rec[16:], entry.Size)
		buf = append(buf, h[:]...)
		buf = append(buf, rec[:]...)
	}
	return buf
}

// UnmarshalDedupTable rebuilds a dedup table from its serialized form.
func UnmarshalDedupTable(buf []byte) (*DedupTable, error) {
	if len(buf) < 4 {
		return nil, fs.NewInvalidFormatError("dedup table truncated")
	}
	count := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]

	const recordSize = HashSize + 24
	t := NewDedupTable()
	for i := uint32(0); i < count; i++ {
		if len(buf) < recordSize {
			return nil, fs.NewInvalidFormatError("dedup record truncated")
		}
		var h Hash
		copy(h[:], buf[:HashSize])
		if _, dup := t.entries[h]; dup {
			return nil, fs.NewInvalidFormatError("duplicate dedup hash")
		}
		t.entries[h] = &DedupEntry{
			RefCount: binary.LittleEndian.Uint64(buf[HashSize:]),
			BlockID:  binary.LittleEndian.Uint64(buf[HashSize+8:]),
			Size:     binary.LittleEndian.Uint64(buf[HashSize+16:]),
		}
		buf = buf[recordSize:]
	}
	return t, nil
}
