package cow

import (
	"fmt"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/eclipse-os/eclipsefs/internal/logger"
	"github.com/eclipse-os/eclipsefs/pkg/bufpool"
	"github.com/eclipse-os/eclipsefs/pkg/fs"
	"github.com/eclipse-os/eclipsefs/pkg/fs/device"
	"github.com/eclipse-os/eclipsefs/pkg/fs/layout"
)

// Writer persists fixed-size blocks to a device region.
//
// The copy-on-write contract: WriteBlockCOW always allocates a fresh id
// and writes only there; the bytes of every previously written block
// stay untouched for as long as the device holds them. There is no
// journal around the block write and the caller's metadata update - a
// crash between the two leaves an orphaned block, which is a space
// leak, not corruption.
type Writer struct {
	dev       device.Device
	alloc     *Allocator
	blockSize uint32

	// base is the device offset where the block area begins. Block id n
	// lives at base + n*blockSize.
	base uint64

	// compress enables best-effort lz4 compression of payloads.
	// Incompressible payloads (already-compressed or encrypted data)
	// are stored raw.
	compress bool

	// bufs pools block staging and compression scratch buffers.
	bufs *bufpool.Pool
}

// NewWriter creates a block writer over the device region starting at
// base.
func NewWriter(dev device.Device, alloc *Allocator, blockSize uint32, base uint64, compress bool) *Writer {
	capacity := layout.PayloadCapacity(blockSize)
	return &Writer{
		dev:       dev,
		alloc:     alloc,
		blockSize: blockSize,
		base:      base,
		compress:  compress,
		bufs:      bufpool.New(int(blockSize), lz4.CompressBlockBound(int(capacity))),
	}
}

// Capacity returns the usable payload bytes per block.
func (w *Writer) Capacity() uint32 {
	return layout.PayloadCapacity(w.blockSize)
}

// offsetOf returns the device offset of a block id.
func (w *Writer) offsetOf(id uint64) int64 {
	return int64(w.base + id*uint64(w.blockSize))
}

// WriteBlock builds the block framing around data and persists the full
// fixed-size block at id. encryption is the layout encryption tag of the
// payload as handed in (the writer does not encrypt).
func (w *Writer) WriteBlock(id uint64, inode uint32, data []byte, encryption uint8) error {
	if uint32(len(data)) > w.Capacity() {
		return fs.NewInvalidArgumentError(
			fmt.Sprintf("payload %d bytes exceeds block capacity %d", len(data), w.Capacity()))
	}

	payload := data
	compression := layout.CompressionNone
	if w.compress && len(data) > 0 {
		if packed, ok := w.tryCompress(data); ok {
			payload = packed
			compression = layout.CompressionLZ4
			defer w.bufs.Put(packed)
		}
	}

	header := &layout.BlockHeader{
		BlockID:      id,
		Inode:        inode,
		OriginalSize: uint32(len(data)),
		Compression:  compression,
		Encryption:   encryption,
		Timestamp:    uint64(time.Now().Unix()),
	}

	block, err := layout.MarshalBlock(header, payload, w.blockSize)
	if err != nil {
		return err
	}

	if err := w.dev.WriteAt(block, w.offsetOf(id)); err != nil {
		return fs.NewIOError(fmt.Sprintf("block %d write failed: %v", id, err))
	}

	logger.Debug("block persisted",
		logger.KeyBlockID, id,
		logger.KeyInode, inode,
		"compression", compression,
		"stored_size", len(payload))
	return nil
}

// WriteBlockCOW allocates a fresh block id, writes data there, and
// returns the new id. The previous block for the same logical content
// is never touched; the caller repoints its node metadata only after
// this returns without error.
func (w *Writer) WriteBlockCOW(inode uint32, data []byte, encryption uint8) (uint64, error) {
	id := w.alloc.Next()
	if err := w.WriteBlock(id, inode, data, encryption); err != nil {
		return 0, err
	}
	return id, nil
}

// ReadBlock loads and validates the block at id, returning its header
// and the payload with compression undone. Encrypted payloads are
// returned as stored; decryption is the engine's concern.
func (w *Writer) ReadBlock(id uint64) (*layout.BlockHeader, []byte, error) {
	buf := w.bufs.Get(int(w.blockSize))
	defer w.bufs.Put(buf)
	if err := w.dev.ReadAt(buf, w.offsetOf(id)); err != nil {
		return nil, nil, fs.NewIOError(fmt.Sprintf("block %d read failed: %v", id, err))
	}

	header, payload, err := layout.UnmarshalBlock(buf, w.blockSize)
	if err != nil {
		return nil, nil, err
	}
	if header.BlockID != id {
		return nil, nil, fs.NewInvalidFormatError(
			fmt.Sprintf("block at id %d records id %d", id, header.BlockID))
	}

	if header.Compression == layout.CompressionLZ4 {
		out := make([]byte, header.OriginalSize)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, nil, fs.NewInvalidFormatError(
				fmt.Sprintf("block %d lz4 payload corrupt: %v", id, err))
		}
		return header, out[:n], nil
	}

	// The payload aliases the pooled staging buffer; hand back a copy.
	out := make([]byte, len(payload))
	copy(out, payload)
	return header, out, nil
}

// tryCompress lz4-compresses data, reporting ok only when the result is
// strictly smaller. The returned slice comes from the writer's buffer
// pool and must be handed back with Put.
func (w *Writer) tryCompress(data []byte) ([]byte, bool) {
	dst := w.bufs.Get(lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil || n == 0 || n >= len(data) {
		w.bufs.Put(dst)
		return nil, false
	}
	return dst[:n], true
}
