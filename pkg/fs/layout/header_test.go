package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-os/eclipsefs/pkg/fs"
)

func validHeader() *Header {
	h := NewHeader(DefaultBlockSize, 1024)
	h.InodeTableOffset = HeaderSize
	h.ChecksumTableOffset = 4096
	h.SnapshotTableOffset = 8192
	h.DedupTableOffset = 12288
	h.Features = FeatureEncryption | FeatureSnapshots | FeatureDedup
	return h
}

func TestHeaderRoundTrip(t *testing.T) {
	h := validHeader()
	buf := h.Marshal()
	require.Len(t, buf, HeaderSize)

	parsed, err := UnmarshalHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestHeaderChecksumStamped(t *testing.T) {
	h := validHeader()
	h.Marshal()
	assert.NotZero(t, h.Checksum)
}

func TestHeaderRejectsBadMagic(t *testing.T) {
	buf := validHeader().Marshal()
	buf[0] = 'X'

	_, err := UnmarshalHeader(buf)
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrInvalidFormat))
}

func TestHeaderRejectsAnySingleByteFlip(t *testing.T) {
	buf := validHeader().Marshal()

	for i := 0; i < HeaderSize; i++ {
		mutated := make([]byte, HeaderSize)
		copy(mutated, buf)
		mutated[i] ^= 0xFF

		_, err := UnmarshalHeader(mutated)
		assert.Error(t, err, "flip at byte %d accepted", i)
	}
}

func TestHeaderRejectsShortBuffer(t *testing.T) {
	buf := validHeader().Marshal()
	_, err := UnmarshalHeader(buf[:HeaderSize-1])
	assert.True(t, fs.IsCode(err, fs.ErrInvalidFormat))
}

func TestHeaderRejectsWrongVersion(t *testing.T) {
	h := validHeader()
	h.Version = 99
	_, err := UnmarshalHeader(h.Marshal())
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrInvalidFormat))
}
