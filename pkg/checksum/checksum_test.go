package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigestIsDeterministic(t *testing.T) {
	data := []byte("eclipsefs")
	assert.Equal(t, Digest(data), Digest(data))
}

func TestDigestIsOrderSensitive(t *testing.T) {
	assert.NotEqual(t, Digest([]byte("ab")), Digest([]byte("ba")))
}

func TestDigestEmptyInput(t *testing.T) {
	assert.Equal(t, Digest(nil), Digest([]byte{}))
}

func TestDigestDiffersFromUnseeded(t *testing.T) {
	// The seed must change the digest; otherwise any CRC32-C of the same
	// bytes would validate as an EclipseFS digest.
	data := []byte("superblock")
	assert.NotEqual(t, Digest(data), Update(0, data))
}

func TestUpdateChainsLikeConcatenation(t *testing.T) {
	a := []byte("header|")
	b := []byte("payload")

	whole := Digest(append(append([]byte{}, a...), b...))
	chained := Update(Digest(a), b)
	assert.Equal(t, whole, chained)
}

func TestSingleBitFlipChangesDigest(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	orig := Digest(data)

	for i := range data {
		data[i] ^= 0x01
		assert.NotEqual(t, orig, Digest(data), "flip at byte %d undetected", i)
		data[i] ^= 0x01
	}
}
