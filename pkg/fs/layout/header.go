// Package layout defines the EclipseFS v2 on-disk format: the superblock
// header, the inode table, node records, and block framing.
//
// Every structure is serialized field by field in little-endian order.
// The format never depends on in-memory struct layout, so it is stable
// across architectures and Go versions.
package layout

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/eclipse-os/eclipsefs/pkg/checksum"
	"github.com/eclipse-os/eclipsefs/pkg/fs"
)

// Magic identifies an EclipseFS v2 image. First 8 bytes of the device.
const Magic = "ECLIPSE2"

// FormatVersion is the current on-disk format revision.
const FormatVersion uint32 = 2

// HeaderSize is the fixed serialized size of the superblock header,
// including reserved padding. The header always occupies the first
// HeaderSize bytes of the device.
const HeaderSize = 128

// DefaultBlockSize is the engine default data block size.
const DefaultBlockSize = 4096

// DataRegionOffset is the byte offset where the data block region
// begins. Everything below it is metadata: the header at offset zero,
// then the inode table, node records, checksum table, encryption info,
// snapshot table, compression info, and dedup table at the offsets the
// header records. Metadata that would spill past this boundary is an
// out-of-space condition.
const DataRegionOffset uint64 = 1 << 20

// Feature bits for Header.Features.
const (
	FeatureEncryption  uint64 = 1 << 0
	FeatureCompression uint64 = 1 << 1
	FeatureSnapshots   uint64 = 1 << 2
	FeatureDedup       uint64 = 1 << 3
)

// headerChecksumOffset is the byte offset of the checksum field within
// the serialized header. The checksum covers the full HeaderSize bytes
// with this field zeroed.
const headerChecksumOffset = 96

// Header is the superblock written once at format time. Only the
// checksum and free-block count are ever rewritten afterward.
type Header struct {
	Version     uint32
	BlockSize   uint32
	TotalBlocks uint64
	FreeBlocks  uint64

	InodeTableOffset      uint64
	ChecksumTableOffset   uint64
	EncryptionInfoOffset  uint64
	SnapshotTableOffset   uint64
	CompressionInfoOffset uint64
	DedupTableOffset      uint64

	Features  uint64
	Timestamp uint64

	// Checksum is the digest of the serialized header with this field
	// zeroed. Populated by Marshal.
	Checksum uint32
}

// NewHeader creates a header for a fresh image with the given geometry
// and the creation timestamp set to now.
func NewHeader(blockSize uint32, totalBlocks uint64) *Header {
	return &Header{
		Version:     FormatVersion,
		BlockSize:   blockSize,
		TotalBlocks: totalBlocks,
		FreeBlocks:  totalBlocks,
		Timestamp:   uint64(time.Now().Unix()),
	}
}

// Marshal serializes the header to its fixed HeaderSize form and stamps
// the header checksum. The receiver's Checksum field is updated to match.
func (h *Header) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:8], Magic)

	binary.LittleEndian.PutUint32(buf[8:], h.Version)
	binary.LittleEndian.PutUint32(buf[12:], h.BlockSize)
	binary.LittleEndian.PutUint64(buf[16:], h.TotalBlocks)
	binary.LittleEndian.PutUint64(buf[24:], h.FreeBlocks)
	binary.LittleEndian.PutUint64(buf[32:], h.InodeTableOffset)
	binary.LittleEndian.PutUint64(buf[40:], h.ChecksumTableOffset)
	binary.LittleEndian.PutUint64(buf[48:], h.EncryptionInfoOffset)
	binary.LittleEndian.PutUint64(buf[56:], h.SnapshotTableOffset)
	binary.LittleEndian.PutUint64(buf[64:], h.CompressionInfoOffset)
	binary.LittleEndian.PutUint64(buf[72:], h.DedupTableOffset)
	binary.LittleEndian.PutUint64(buf[80:], h.Features)
	binary.LittleEndian.PutUint64(buf[88:], h.Timestamp)

	// Checksum over the header with its own field still zero.
	h.Checksum = checksum.Digest(buf)
	binary.LittleEndian.PutUint32(buf[headerChecksumOffset:], h.Checksum)

	return buf
}

// UnmarshalHeader parses and validates a serialized header.
// A mismatched magic or checksum rejects the image.
func UnmarshalHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fs.NewInvalidFormatError(
			fmt.Sprintf("short header: %d bytes, need %d", len(buf), HeaderSize))
	}
	buf = buf[:HeaderSize]

	if string(buf[0:8]) != Magic {
		return nil, fs.NewInvalidFormatError("bad magic, not an EclipseFS v2 image")
	}

	h := &Header{
		Version:               binary.LittleEndian.Uint32(buf[8:]),
		BlockSize:             binary.LittleEndian.Uint32(buf[12:]),
		TotalBlocks:           binary.LittleEndian.Uint64(buf[16:]),
		FreeBlocks:            binary.LittleEndian.Uint64(buf[24:]),
		InodeTableOffset:      binary.LittleEndian.Uint64(buf[32:]),
		ChecksumTableOffset:   binary.LittleEndian.Uint64(buf[40:]),
		EncryptionInfoOffset:  binary.LittleEndian.Uint64(buf[48:]),
		SnapshotTableOffset:   binary.LittleEndian.Uint64(buf[56:]),
		CompressionInfoOffset: binary.LittleEndian.Uint64(buf[64:]),
		DedupTableOffset:      binary.LittleEndian.Uint64(buf[72:]),
		Features:              binary.LittleEndian.Uint64(buf[80:]),
		Timestamp:             binary.LittleEndian.Uint64(buf[88:]),
		Checksum:              binary.LittleEndian.Uint32(buf[headerChecksumOffset:]),
	}

	if h.Version != FormatVersion {
		return nil, fs.NewInvalidFormatError(
			fmt.Sprintf("unsupported format version %d", h.Version))
	}

	// Recompute over the buffer with the checksum field zeroed.
	scratch := make([]byte, HeaderSize)
	copy(scratch, buf)
	binary.LittleEndian.PutUint32(scratch[headerChecksumOffset:], 0)
	if want := checksum.Digest(scratch); want != h.Checksum {
		return nil, fs.NewInvalidFormatError(
			fmt.Sprintf("header checksum mismatch: stored 0x%08x, computed 0x%08x",
				h.Checksum, want))
	}

	if h.BlockSize == 0 {
		return nil, fs.NewInvalidFormatError("zero block size")
	}

	return h, nil
}
