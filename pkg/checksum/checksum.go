// Package checksum provides the integrity digest used throughout the
// EclipseFS on-disk format: the superblock, every node record, and every
// block footer carry a digest computed here.
package checksum

import "hash/crc32"

// Seed is the initial state folded into every digest. A non-zero seed
// distinguishes EclipseFS digests from plain CRC32 of the same bytes.
const Seed uint32 = 0xEC11B5E2

// castagnoli is hardware-accelerated on amd64 and arm64.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Digest computes the seeded CRC32-C digest of data.
// It is order-sensitive and pure; Digest(nil) is a valid, stable value.
func Digest(data []byte) uint32 {
	return crc32.Update(Seed, castagnoli, data)
}

// Update continues a rolling digest with more data. A full digest over a
// concatenation equals chained Update calls over its parts:
//
//	Digest(append(a, b...)) == Update(Digest(a), b)
func Update(sum uint32, data []byte) uint32 {
	return crc32.Update(sum, castagnoli, data)
}
