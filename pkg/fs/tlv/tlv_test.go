package tlv

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-os/eclipsefs/pkg/fs"
)

func TestRoundTripFile(t *testing.T) {
	n := &fs.Node{
		Inode:         7,
		Kind:          fs.KindFile,
		Mode:          0o644,
		UID:           1000,
		GID:           1000,
		Size:          11,
		Atime:         1700000000,
		Mtime:         1700000001,
		Ctime:         1700000002,
		Nlink:         1,
		Content:       []byte("hello world"),
		Version:       3,
		ParentVersion: 2,
		InSnapshot:    true,
		Blocks:        []uint64{12, 13, 99},
	}
	n.ContentHash[0] = 0xAB
	n.ContentHash[31] = 0xCD

	decoded, err := Decode(n.Inode, Encode(n))
	require.NoError(t, err)
	assert.Equal(t, n, decoded)
}

func TestRoundTripDirectory(t *testing.T) {
	n := &fs.Node{
		Inode:   fs.RootInode,
		Kind:    fs.KindDirectory,
		Mode:    0o755,
		Nlink:   2,
		Version: 1,
		Entries: []fs.DirEntry{
			{Name: "etc", Inode: 2},
			{Name: "home", Inode: 3},
			{Name: "tmp", Inode: 4},
		},
	}

	decoded, err := Decode(n.Inode, Encode(n))
	require.NoError(t, err)
	assert.Equal(t, n.Entries, decoded.Entries)
	assert.Equal(t, fs.KindDirectory, decoded.Kind)
}

func TestRoundTripSymlink(t *testing.T) {
	n := fs.NewSymlink(9, "/usr/bin/true")

	decoded, err := Decode(n.Inode, Encode(n))
	require.NoError(t, err)
	assert.Equal(t, fs.KindSymlink, decoded.Kind)
	assert.Equal(t, "/usr/bin/true", string(decoded.Content))
}

func TestUnknownTagsSkipped(t *testing.T) {
	n := &fs.Node{Inode: 5, Kind: fs.KindFile, Version: 1}
	payload := Encode(n)

	// Append an attribute with a tag this engine does not define.
	payload = binary.LittleEndian.AppendUint16(payload, 0xBEEF)
	payload = binary.LittleEndian.AppendUint32(payload, 4)
	payload = append(payload, 1, 2, 3, 4)

	decoded, err := Decode(5, payload)
	require.NoError(t, err)
	assert.Equal(t, fs.KindFile, decoded.Kind)
}

func TestTruncatedHeaderRejected(t *testing.T) {
	payload := Encode(&fs.Node{Inode: 5, Kind: fs.KindFile, Version: 1})
	_, err := Decode(5, payload[:len(payload)-3])
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrInvalidFormat))
}

func TestOverrunValueRejected(t *testing.T) {
	var payload []byte
	payload = binary.LittleEndian.AppendUint16(payload, TagContent)
	payload = binary.LittleEndian.AppendUint32(payload, 100) // claims 100 bytes
	payload = append(payload, []byte("short")...)

	_, err := Decode(5, payload)
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrInvalidFormat))
}

func TestWrongFixedLengthRejected(t *testing.T) {
	var payload []byte
	payload = binary.LittleEndian.AppendUint16(payload, TagMode)
	payload = binary.LittleEndian.AppendUint32(payload, 2) // mode must be 4 bytes
	payload = append(payload, 0xFF, 0xFF)

	_, err := Decode(5, payload)
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrInvalidFormat))
}

func TestDuplicateDirectoryNameDropped(t *testing.T) {
	blob := EncodeDirEntries([]fs.DirEntry{
		{Name: "config", Inode: 10},
		{Name: "data", Inode: 11},
	})
	// A second "config" pointing at a different inode: format anomaly.
	blob = append(blob, EncodeDirEntries([]fs.DirEntry{{Name: "config", Inode: 99}})...)

	entries, err := DecodeDirEntries(blob)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// First occurrence wins.
	assert.Equal(t, fs.DirEntry{Name: "config", Inode: 10}, entries[0])
	assert.Equal(t, fs.DirEntry{Name: "data", Inode: 11}, entries[1])
}

func TestEmptyDirectoryNameRejected(t *testing.T) {
	var blob []byte
	blob = binary.LittleEndian.AppendUint32(blob, 0) // name_len 0
	blob = binary.LittleEndian.AppendUint32(blob, 42)

	_, err := DecodeDirEntries(blob)
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrInvalidFormat))
}

func TestTruncatedDirectoryEntryRejected(t *testing.T) {
	blob := EncodeDirEntries([]fs.DirEntry{{Name: "logs", Inode: 8}})
	_, err := DecodeDirEntries(blob[:len(blob)-2])
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrInvalidFormat))
}
