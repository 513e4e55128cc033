package layout

import (
	"encoding/binary"
	"fmt"

	"github.com/eclipse-os/eclipsefs/pkg/checksum"
	"github.com/eclipse-os/eclipsefs/pkg/fs"
)

// Block framing magics. The header magic opens a block, the footer magic
// closes it; both must match for a block to parse.
const (
	BlockMagic  uint32 = 0x324B4C42 // "BLK2"
	FooterMagic uint32 = 0x32444E45 // "END2"
)

// BlockHeaderSize is the serialized size of a block header.
const BlockHeaderSize = 40

// BlockFooterSize is the serialized size of a block footer:
// checksum:u32 (over the header bytes), magic:u32.
const BlockFooterSize = 8

// Compression tags recorded in a block header.
const (
	CompressionNone uint8 = 0
	CompressionLZ4  uint8 = 1
)

// Encryption tags recorded in a block header.
const (
	EncryptionNone    uint8 = 0
	EncryptionAESGCM  uint8 = 1
	EncryptionXChaCha uint8 = 2
)

// BlockHeader describes the payload of one fixed-size block.
//
// Checksum covers the stored payload bytes (the compressed form when a
// compression tag is set). The footer checksum covers the serialized
// header, so corruption of either part is detectable independently.
type BlockHeader struct {
	BlockID        uint64
	Inode          uint32
	CompressedSize uint32
	OriginalSize   uint32
	Compression    uint8
	Encryption     uint8
	Checksum       uint32
	Timestamp      uint64
}

// PayloadCapacity returns the usable payload bytes of a block for the
// given total block size.
func PayloadCapacity(blockSize uint32) uint32 {
	return blockSize - BlockHeaderSize - BlockFooterSize
}

// marshalHeader serializes a block header.
func (h *BlockHeader) marshalHeader() []byte {
	buf := make([]byte, BlockHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], BlockMagic)
	binary.LittleEndian.PutUint64(buf[4:], h.BlockID)
	binary.LittleEndian.PutUint32(buf[12:], h.Inode)
	binary.LittleEndian.PutUint32(buf[16:], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[20:], h.OriginalSize)
	buf[24] = h.Compression
	buf[25] = h.Encryption
	// buf[26:28] reserved
	binary.LittleEndian.PutUint32(buf[28:], h.Checksum)
	binary.LittleEndian.PutUint64(buf[32:], h.Timestamp)
	return buf
}

// MarshalBlock assembles the full fixed-size block: header, payload
// padded to capacity, and footer. The header's CompressedSize must equal
// len(payload); its Checksum field is computed here.
func MarshalBlock(h *BlockHeader, payload []byte, blockSize uint32) ([]byte, error) {
	capacity := PayloadCapacity(blockSize)
	if uint32(len(payload)) > capacity {
		return nil, fs.NewInvalidArgumentError(
			fmt.Sprintf("payload %d bytes exceeds block capacity %d", len(payload), capacity))
	}
	h.CompressedSize = uint32(len(payload))
	h.Checksum = checksum.Digest(payload)

	hdr := h.marshalHeader()

	buf := make([]byte, blockSize)
	copy(buf, hdr)
	copy(buf[BlockHeaderSize:], payload)

	footerOff := blockSize - BlockFooterSize
	binary.LittleEndian.PutUint32(buf[footerOff:], checksum.Digest(hdr))
	binary.LittleEndian.PutUint32(buf[footerOff+4:], FooterMagic)

	return buf, nil
}

// UnmarshalBlock validates the framing of a full block and returns its
// header and stored payload (still compressed/encrypted as tagged).
func UnmarshalBlock(buf []byte, blockSize uint32) (*BlockHeader, []byte, error) {
	if uint32(len(buf)) != blockSize {
		return nil, nil, fs.NewInvalidFormatError(
			fmt.Sprintf("block is %d bytes, expected %d", len(buf), blockSize))
	}

	if binary.LittleEndian.Uint32(buf) != BlockMagic {
		return nil, nil, fs.NewInvalidFormatError("bad block magic")
	}

	h := &BlockHeader{
		BlockID:        binary.LittleEndian.Uint64(buf[4:]),
		Inode:          binary.LittleEndian.Uint32(buf[12:]),
		CompressedSize: binary.LittleEndian.Uint32(buf[16:]),
		OriginalSize:   binary.LittleEndian.Uint32(buf[20:]),
		Compression:    buf[24],
		Encryption:     buf[25],
		Checksum:       binary.LittleEndian.Uint32(buf[28:]),
		Timestamp:      binary.LittleEndian.Uint64(buf[32:]),
	}

	footerOff := blockSize - BlockFooterSize
	if binary.LittleEndian.Uint32(buf[footerOff+4:]) != FooterMagic {
		return nil, nil, fs.NewInvalidFormatError("bad block footer magic")
	}

	// Footer checksum covers the header as serialized on disk.
	if want := checksum.Digest(buf[:BlockHeaderSize]); want != binary.LittleEndian.Uint32(buf[footerOff:]) {
		return nil, nil, fs.NewInvalidFormatError("block footer checksum mismatch")
	}

	if h.CompressedSize > PayloadCapacity(blockSize) {
		return nil, nil, fs.NewInvalidFormatError("block payload size exceeds capacity")
	}
	payload := buf[BlockHeaderSize : BlockHeaderSize+h.CompressedSize]

	if want := checksum.Digest(payload); want != h.Checksum {
		return nil, nil, fs.NewInvalidFormatError("block payload checksum mismatch")
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	return h, out, nil
}
