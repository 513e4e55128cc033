// Package tlv implements the tag-length-value encoding of node attributes.
//
// Every node record on disk is a sequence of TLV attributes:
//
//	tag:u16, length:u32, value:[length]byte        (little-endian)
//
// Unknown tags are skipped on decode so old engines can read images
// written by newer ones. A truncated or malformed record aborts the whole
// node decode; a corrupt attribute is never partially applied.
package tlv

import (
	"encoding/binary"
	"fmt"

	"github.com/eclipse-os/eclipsefs/internal/logger"
	"github.com/eclipse-os/eclipsefs/pkg/fs"
)

// Attribute tags. New tags may be appended; existing values are part of
// the on-disk format and must never change.
const (
	TagKind          uint16 = 0x0001
	TagMode          uint16 = 0x0002
	TagUID           uint16 = 0x0003
	TagGID           uint16 = 0x0004
	TagSize          uint16 = 0x0005
	TagAtime         uint16 = 0x0006
	TagMtime         uint16 = 0x0007
	TagCtime         uint16 = 0x0008
	TagNlink         uint16 = 0x0009
	TagContent       uint16 = 0x000A
	TagDirEntries    uint16 = 0x000B
	TagVersion       uint16 = 0x000C
	TagParentVersion uint16 = 0x000D
	TagSnapshotFlag  uint16 = 0x000E
	TagContentHash   uint16 = 0x000F
	TagBlocks        uint16 = 0x0010
)

// headerSize is the fixed per-attribute overhead: tag:u16 + length:u32.
const headerSize = 6

// Encode serializes a node's attributes as a TLV byte sequence.
// The node's Inode and Checksum fields belong to the record header, not
// the TLV payload, and are not encoded here.
func Encode(n *fs.Node) []byte {
	var buf []byte

	buf = appendU8(buf, TagKind, uint8(n.Kind))
	buf = appendU32(buf, TagMode, n.Mode)
	buf = appendU32(buf, TagUID, n.UID)
	buf = appendU32(buf, TagGID, n.GID)
	buf = appendU64(buf, TagSize, n.Size)
	buf = appendU64(buf, TagAtime, n.Atime)
	buf = appendU64(buf, TagMtime, n.Mtime)
	buf = appendU64(buf, TagCtime, n.Ctime)
	buf = appendU32(buf, TagNlink, n.Nlink)
	buf = appendU64(buf, TagVersion, n.Version)

	if n.ParentVersion != 0 {
		buf = appendU64(buf, TagParentVersion, n.ParentVersion)
	}
	if n.InSnapshot {
		buf = appendU8(buf, TagSnapshotFlag, 1)
	}
	if n.ContentHash != [32]byte{} {
		buf = appendAttr(buf, TagContentHash, n.ContentHash[:])
	}
	if len(n.Content) > 0 {
		buf = appendAttr(buf, TagContent, n.Content)
	}
	if len(n.Entries) > 0 {
		buf = appendAttr(buf, TagDirEntries, EncodeDirEntries(n.Entries))
	}
	if len(n.Blocks) > 0 {
		blocks := make([]byte, 8*len(n.Blocks))
		for i, id := range n.Blocks {
			binary.LittleEndian.PutUint64(blocks[i*8:], id)
		}
		buf = appendAttr(buf, TagBlocks, blocks)
	}

	return buf
}

// Decode parses a TLV payload into a node owned by the caller.
// inode is the number recorded in the surrounding record header.
func Decode(inode uint32, payload []byte) (*fs.Node, error) {
	n := &fs.Node{Inode: inode}

	pos := 0
	for pos < len(payload) {
		if len(payload)-pos < headerSize {
			return nil, fs.NewInvalidFormatError(
				fmt.Sprintf("truncated TLV header at offset %d", pos))
		}

		tag := binary.LittleEndian.Uint16(payload[pos:])
		length := binary.LittleEndian.Uint32(payload[pos+2:])
		pos += headerSize

		if uint32(len(payload)-pos) < length {
			return nil, fs.NewInvalidFormatError(
				fmt.Sprintf("TLV value for tag 0x%04x overruns payload", tag))
		}
		value := payload[pos : pos+int(length)]
		pos += int(length)

		if err := applyAttr(n, tag, value); err != nil {
			return nil, err
		}
	}

	return n, nil
}

// applyAttr applies one decoded attribute to the node. Unknown tags are
// skipped for forward compatibility; a known tag with the wrong length is
// a format violation.
func applyAttr(n *fs.Node, tag uint16, value []byte) error {
	switch tag {
	case TagKind:
		v, err := fixedU8(tag, value)
		if err != nil {
			return err
		}
		n.Kind = fs.NodeKind(v)
	case TagMode:
		v, err := fixedU32(tag, value)
		if err != nil {
			return err
		}
		n.Mode = v
	case TagUID:
		v, err := fixedU32(tag, value)
		if err != nil {
			return err
		}
		n.UID = v
	case TagGID:
		v, err := fixedU32(tag, value)
		if err != nil {
			return err
		}
		n.GID = v
	case TagSize:
		v, err := fixedU64(tag, value)
		if err != nil {
			return err
		}
		n.Size = v
	case TagAtime:
		v, err := fixedU64(tag, value)
		if err != nil {
			return err
		}
		n.Atime = v
	case TagMtime:
		v, err := fixedU64(tag, value)
		if err != nil {
			return err
		}
		n.Mtime = v
	case TagCtime:
		v, err := fixedU64(tag, value)
		if err != nil {
			return err
		}
		n.Ctime = v
	case TagNlink:
		v, err := fixedU32(tag, value)
		if err != nil {
			return err
		}
		n.Nlink = v
	case TagVersion:
		v, err := fixedU64(tag, value)
		if err != nil {
			return err
		}
		n.Version = v
	case TagParentVersion:
		v, err := fixedU64(tag, value)
		if err != nil {
			return err
		}
		n.ParentVersion = v
	case TagSnapshotFlag:
		v, err := fixedU8(tag, value)
		if err != nil {
			return err
		}
		n.InSnapshot = v != 0
	case TagContentHash:
		if len(value) != 32 {
			return badLength(tag, 32, len(value))
		}
		copy(n.ContentHash[:], value)
	case TagContent:
		n.Content = append([]byte(nil), value...)
	case TagDirEntries:
		entries, err := DecodeDirEntries(value)
		if err != nil {
			return err
		}
		n.Entries = entries
	case TagBlocks:
		if len(value)%8 != 0 {
			return fs.NewInvalidFormatError(
				fmt.Sprintf("block list length %d is not a multiple of 8", len(value)))
		}
		n.Blocks = make([]uint64, len(value)/8)
		for i := range n.Blocks {
			n.Blocks[i] = binary.LittleEndian.Uint64(value[i*8:])
		}
	default:
		// Forward compatibility: newer images may carry tags this engine
		// does not know about.
		logger.Debug("skipping unknown TLV tag", "tag", tag, "length", len(value))
	}
	return nil
}

// EncodeDirEntries serializes a directory's entries as the repeated
// sequence name_len:u32, child_inode:u32, name:[name_len]byte.
func EncodeDirEntries(entries []fs.DirEntry) []byte {
	var buf []byte
	for _, e := range entries {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.Name)))
		buf = binary.LittleEndian.AppendUint32(buf, e.Inode)
		buf = append(buf, e.Name...)
	}
	return buf
}

// DecodeDirEntries parses a directory-entries blob. A name appearing
// twice is a format anomaly: the first occurrence wins, later ones are
// dropped with a warning rather than silently overwriting.
func DecodeDirEntries(blob []byte) ([]fs.DirEntry, error) {
	var entries []fs.DirEntry
	seen := make(map[string]struct{})

	pos := 0
	for pos < len(blob) {
		if len(blob)-pos < 8 {
			return nil, fs.NewInvalidFormatError("truncated directory entry header")
		}
		nameLen := binary.LittleEndian.Uint32(blob[pos:])
		child := binary.LittleEndian.Uint32(blob[pos+4:])
		pos += 8

		if uint32(len(blob)-pos) < nameLen {
			return nil, fs.NewInvalidFormatError("directory entry name overruns blob")
		}
		name := string(blob[pos : pos+int(nameLen)])
		pos += int(nameLen)

		if name == "" {
			return nil, fs.NewInvalidFormatError("empty directory entry name")
		}
		if _, dup := seen[name]; dup {
			logger.Warn("dropping duplicate directory entry",
				"name", name, "inode", child)
			continue
		}
		seen[name] = struct{}{}
		entries = append(entries, fs.DirEntry{Name: name, Inode: child})
	}

	return entries, nil
}

func appendAttr(buf []byte, tag uint16, value []byte) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, tag)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(value)))
	return append(buf, value...)
}

func appendU8(buf []byte, tag uint16, v uint8) []byte {
	return appendAttr(buf, tag, []byte{v})
}

func appendU32(buf []byte, tag uint16, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return appendAttr(buf, tag, tmp[:])
}

func appendU64(buf []byte, tag uint16, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return appendAttr(buf, tag, tmp[:])
}

func fixedU8(tag uint16, value []byte) (uint8, error) {
	if len(value) != 1 {
		return 0, badLength(tag, 1, len(value))
	}
	return value[0], nil
}

func fixedU32(tag uint16, value []byte) (uint32, error) {
	if len(value) != 4 {
		return 0, badLength(tag, 4, len(value))
	}
	return binary.LittleEndian.Uint32(value), nil
}

func fixedU64(tag uint16, value []byte) (uint64, error) {
	if len(value) != 8 {
		return 0, badLength(tag, 8, len(value))
	}
	return binary.LittleEndian.Uint64(value), nil
}

func badLength(tag uint16, want, got int) error {
	return fs.NewInvalidFormatError(
		fmt.Sprintf("tag 0x%04x expects %d-byte value, got %d", tag, want, got))
}
