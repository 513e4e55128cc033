package engine

import (
	"encoding/binary"

	"github.com/eclipse-os/eclipsefs/pkg/fs"
	"github.com/eclipse-os/eclipsefs/pkg/fs/crypt"
	"github.com/eclipse-os/eclipsefs/pkg/fs/layout"
)

// Encryption-info section, little-endian:
//
//	default_algo:u8 count:u32
//	per policy: algo:u8 prefix_len:u16 prefix[prefix_len]
//
// Only the policy table is persisted. Key material is session-scoped.
func (e *Engine) marshalEncryptionInfo() []byte {
	policies := e.keys.Policies()

	buf := make([]byte, 5)
	buf[0] = uint8(e.keys.DefaultAlgorithm())
	binary.LittleEndian.PutUint32(buf[1:], uint32(len(policies)))
	for _, p := range policies {
		buf = append(buf, uint8(p.Algorithm))
		var l [2]byte
		binary.LittleEndian.PutUint16(l[:], uint16(len(p.Prefix)))
		buf = append(buf, l[:]...)
		buf = append(buf, p.Prefix...)
	}
	return buf
}

// applyEncryptionInfo replaces the key manager with one rebuilt from
// the persisted default algorithm and policy table.
func (e *Engine) applyEncryptionInfo(buf []byte) error {
	if len(buf) < 5 {
		return fs.NewInvalidFormatError("encryption info section truncated")
	}
	defaultAlgo := crypt.Algorithm(buf[0])
	count := binary.LittleEndian.Uint32(buf[1:])
	buf = buf[5:]

	mgr := crypt.NewManager(defaultAlgo, e.opts.RotationThreshold)
	for i := uint32(0); i < count; i++ {
		if len(buf) < 3 {
			return fs.NewInvalidFormatError("encryption policy record truncated")
		}
		algo := crypt.Algorithm(buf[0])
		prefixLen := int(binary.LittleEndian.Uint16(buf[1:]))
		buf = buf[3:]
		if len(buf) < prefixLen {
			return fs.NewInvalidFormatError("encryption policy prefix truncated")
		}
		if err := mgr.RegisterPolicy(string(buf[:prefixLen]), algo); err != nil {
			return fs.NewInvalidFormatError("encryption policy rejected: " + err.Error())
		}
		buf = buf[prefixLen:]
	}

	e.keys = mgr
	return nil
}

// Compression-info section: a single u32 flags word. Bit 0 mirrors the
// header's compression feature bit for inspection tools.
func (e *Engine) marshalCompressionInfo() []byte {
	buf := make([]byte, 4)
	if e.header.Features&layout.FeatureCompression != 0 {
		binary.LittleEndian.PutUint32(buf, 1)
	}
	return buf
}
