package layout

import (
	"encoding/binary"
	"fmt"

	"github.com/eclipse-os/eclipsefs/pkg/fs"
)

// RecordHeaderSize is the fixed prefix of every node record:
// inode:u32, record_size:u32. record_size includes the prefix itself,
// so the TLV payload is record_size - RecordHeaderSize bytes.
const RecordHeaderSize = 8

// RecordHeader frames one node record in the node area.
type RecordHeader struct {
	Inode      uint32
	RecordSize uint32
}

// MarshalRecord frames a TLV payload as a node record.
func MarshalRecord(inode uint32, payload []byte) []byte {
	buf := make([]byte, 0, RecordHeaderSize+len(payload))
	buf = binary.LittleEndian.AppendUint32(buf, inode)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(RecordHeaderSize+len(payload)))
	return append(buf, payload...)
}

// UnmarshalRecordHeader parses the fixed record prefix.
func UnmarshalRecordHeader(buf []byte) (RecordHeader, error) {
	if len(buf) < RecordHeaderSize {
		return RecordHeader{}, fs.NewInvalidFormatError("truncated node record header")
	}
	h := RecordHeader{
		Inode:      binary.LittleEndian.Uint32(buf),
		RecordSize: binary.LittleEndian.Uint32(buf[4:]),
	}
	if h.RecordSize < RecordHeaderSize {
		return RecordHeader{}, fs.NewInvalidFormatError(
			fmt.Sprintf("node record size %d smaller than its header", h.RecordSize))
	}
	return h, nil
}

// PayloadSize returns the TLV payload length of the record.
func (h RecordHeader) PayloadSize() uint32 {
	return h.RecordSize - RecordHeaderSize
}

// ChecksumEntrySize is the on-disk size of one checksum table entry:
// inode:u32, digest:u32.
const ChecksumEntrySize = 8

// ChecksumTable maps inode numbers to the digest of their TLV payload.
// It lives at Header.ChecksumTableOffset and lets the reader detect a
// corrupted record before decoding it.
type ChecksumTable map[uint32]uint32

// MarshalChecksumTable serializes the table, sorted by inode so the
// output is deterministic.
func MarshalChecksumTable(t ChecksumTable, order []uint32) []byte {
	buf := make([]byte, 0, 4+len(order)*ChecksumEntrySize)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(order)))
	for _, inode := range order {
		buf = binary.LittleEndian.AppendUint32(buf, inode)
		buf = binary.LittleEndian.AppendUint32(buf, t[inode])
	}
	return buf
}

// UnmarshalChecksumTable parses a serialized checksum table.
func UnmarshalChecksumTable(buf []byte) (ChecksumTable, error) {
	if len(buf) < 4 {
		return nil, fs.NewInvalidFormatError("truncated checksum table count")
	}
	count := binary.LittleEndian.Uint32(buf)
	if uint64(len(buf)-4) < uint64(count)*ChecksumEntrySize {
		return nil, fs.NewInvalidFormatError("checksum table overruns its section")
	}

	t := make(ChecksumTable, count)
	for i := 0; i < int(count); i++ {
		base := 4 + i*ChecksumEntrySize
		inode := binary.LittleEndian.Uint32(buf[base:])
		t[inode] = binary.LittleEndian.Uint32(buf[base+4:])
	}
	return t, nil
}
