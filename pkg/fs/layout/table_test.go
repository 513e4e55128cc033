package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-os/eclipsefs/pkg/fs"
)

func TestInodeTableRoundTrip(t *testing.T) {
	entries := []TableEntry{
		{Inode: 1, RelativeOffset: 0},
		{Inode: 2, RelativeOffset: 64},
		{Inode: 7, RelativeOffset: 200},
	}
	table, err := NewInodeTable(entries)
	require.NoError(t, err)

	parsed, err := UnmarshalInodeTable(table.Marshal())
	require.NoError(t, err)
	assert.Equal(t, entries, parsed.Entries())
	assert.Equal(t, 3, parsed.Len())
}

func TestInodeTableAbsoluteOffset(t *testing.T) {
	table, err := NewInodeTable([]TableEntry{{Inode: 2, RelativeOffset: 64}})
	require.NoError(t, err)

	// table at offset 128: size is count(4) + 1 entry(8) = 12.
	abs, ok := table.AbsoluteOffset(128, 2)
	require.True(t, ok)
	assert.Equal(t, uint64(128+12+64), abs)

	_, ok = table.AbsoluteOffset(128, 99)
	assert.False(t, ok)
}

func TestInodeTableRejectsDuplicates(t *testing.T) {
	_, err := NewInodeTable([]TableEntry{
		{Inode: 3, RelativeOffset: 0},
		{Inode: 3, RelativeOffset: 64},
	})
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrInvalidFormat))
}

func TestInodeTableRejectsTruncation(t *testing.T) {
	table, err := NewInodeTable([]TableEntry{
		{Inode: 1, RelativeOffset: 0},
		{Inode: 2, RelativeOffset: 64},
	})
	require.NoError(t, err)

	buf := table.Marshal()
	_, err = UnmarshalInodeTable(buf[:len(buf)-4])
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrInvalidFormat))
}

func TestRecordRoundTrip(t *testing.T) {
	payload := []byte("tlv payload bytes")
	rec := MarshalRecord(42, payload)

	h, err := UnmarshalRecordHeader(rec)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), h.Inode)
	assert.Equal(t, uint32(len(payload)), h.PayloadSize())
	assert.Equal(t, payload, rec[RecordHeaderSize:h.RecordSize])
}

func TestRecordRejectsUndersizedHeader(t *testing.T) {
	_, err := UnmarshalRecordHeader([]byte{1, 2, 3})
	assert.True(t, fs.IsCode(err, fs.ErrInvalidFormat))
}

func TestChecksumTableRoundTrip(t *testing.T) {
	table := ChecksumTable{1: 0xAAAA, 2: 0xBBBB, 9: 0xCCCC}
	buf := MarshalChecksumTable(table, []uint32{1, 2, 9})

	parsed, err := UnmarshalChecksumTable(buf)
	require.NoError(t, err)
	assert.Equal(t, table, parsed)
}
