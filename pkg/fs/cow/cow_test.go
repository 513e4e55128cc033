package cow

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-os/eclipsefs/pkg/fs"
	"github.com/eclipse-os/eclipsefs/pkg/fs/device"
	"github.com/eclipse-os/eclipsefs/pkg/fs/layout"
)

const testBlockSize = layout.DefaultBlockSize

func newWriter(t *testing.T, compress bool) (*Writer, *device.Memory) {
	t.Helper()
	dev := device.NewMemory()
	w := NewWriter(dev, NewAllocator(0), testBlockSize, 0, compress)
	return w, dev
}

func TestAllocatorMonotonic(t *testing.T) {
	a := NewAllocator(10)
	assert.Equal(t, uint64(10), a.Next())
	assert.Equal(t, uint64(11), a.Next())
	assert.Equal(t, uint64(12), a.Peek())
}

func TestAllocatorConcurrentIssuance(t *testing.T) {
	a := NewAllocator(0)

	const goroutines = 8
	const perGoroutine = 1000

	var mu sync.Mutex
	seen := make(map[uint64]struct{}, goroutines*perGoroutine)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, perGoroutine)
			for i := 0; i < perGoroutine; i++ {
				local = append(local, a.Next())
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine, "duplicate block ids issued")
}

func TestWriteReadRoundTrip(t *testing.T) {
	w, _ := newWriter(t, false)

	data := []byte("copy on write never edits in place")
	require.NoError(t, w.WriteBlock(0, 7, data, layout.EncryptionNone))

	header, payload, err := w.ReadBlock(0)
	require.NoError(t, err)
	assert.Equal(t, data, payload)
	assert.Equal(t, uint32(7), header.Inode)
	assert.Equal(t, uint32(len(data)), header.OriginalSize)
}

func TestCOWPreservesOriginalBlock(t *testing.T) {
	w, _ := newWriter(t, false)

	original := []byte("generation one")
	id, err := w.WriteBlockCOW(3, original, layout.EncryptionNone)
	require.NoError(t, err)

	updated := []byte("generation two")
	newID, err := w.WriteBlockCOW(3, updated, layout.EncryptionNone)
	require.NoError(t, err)
	assert.NotEqual(t, id, newID, "COW write must allocate a fresh id")

	// The original block's bytes are unchanged.
	_, payload, err := w.ReadBlock(id)
	require.NoError(t, err)
	assert.Equal(t, original, payload)

	_, payload, err = w.ReadBlock(newID)
	require.NoError(t, err)
	assert.Equal(t, updated, payload)
}

func TestOversizedPayloadRejected(t *testing.T) {
	w, _ := newWriter(t, false)

	data := make([]byte, w.Capacity()+1)
	err := w.WriteBlock(0, 1, data, layout.EncryptionNone)
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrInvalidArgument))

	_, err = w.WriteBlockCOW(1, data, layout.EncryptionNone)
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrInvalidArgument))
}

func TestCompressionRoundTrip(t *testing.T) {
	w, _ := newWriter(t, true)

	// Highly repetitive payload: lz4 must engage.
	data := bytes.Repeat([]byte("eclipsefs "), 200)
	id, err := w.WriteBlockCOW(5, data, layout.EncryptionNone)
	require.NoError(t, err)

	header, payload, err := w.ReadBlock(id)
	require.NoError(t, err)
	assert.Equal(t, layout.CompressionLZ4, header.Compression)
	assert.Less(t, header.CompressedSize, header.OriginalSize)
	assert.Equal(t, data, payload)
}

func TestIncompressibleDataStoredRaw(t *testing.T) {
	w, _ := newWriter(t, true)

	// Pseudo-random bytes do not compress.
	data := make([]byte, 512)
	state := uint32(0x12345678)
	for i := range data {
		state = state*1664525 + 1013904223
		data[i] = byte(state >> 24)
	}

	id, err := w.WriteBlockCOW(5, data, layout.EncryptionNone)
	require.NoError(t, err)

	header, payload, err := w.ReadBlock(id)
	require.NoError(t, err)
	assert.Equal(t, layout.CompressionNone, header.Compression)
	assert.Equal(t, data, payload)
}

func TestReadBlockIDMismatchRejected(t *testing.T) {
	dev := device.NewMemory()
	w := NewWriter(dev, NewAllocator(0), testBlockSize, 0, false)

	require.NoError(t, w.WriteBlock(0, 1, []byte("block zero"), layout.EncryptionNone))

	// Read block 0's bytes as if they were block 1 by copying the raw
	// block into slot 1.
	raw := make([]byte, testBlockSize)
	require.NoError(t, dev.ReadAt(raw, 0))
	require.NoError(t, dev.WriteAt(raw, testBlockSize))

	_, _, err := w.ReadBlock(1)
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrInvalidFormat))
}

func TestWriteFailurePropagatesAsIOError(t *testing.T) {
	dev := device.NewMemory()
	w := NewWriter(dev, NewAllocator(0), testBlockSize, 0, false)
	require.NoError(t, dev.Close())

	err := w.WriteBlock(0, 1, []byte("data"), layout.EncryptionNone)
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrIO))
}
