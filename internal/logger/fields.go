package logger

import "log/slog"

// Standard field keys for structured logging. Use these consistently
// across the engine so logs can be aggregated and queried by field.
const (
	// Filesystem objects
	KeyPath    = "path"     // slash-separated path inside the filesystem
	KeyInode   = "inode"    // inode number
	KeyKind    = "kind"     // node kind: file, directory, symlink
	KeySize    = "size"     // size in bytes
	KeyVersion = "version"  // COW generation of a node
	KeyEntries = "entries"  // number of directory entries

	// Block layer
	KeyBlockID   = "block_id"   // physical block id
	KeyBlockSize = "block_size" // configured block size
	KeyOffset    = "offset"     // byte offset on the backing device

	// Cache
	KeyCacheHit  = "cache_hit" // hit/miss indicator
	KeyCacheSize = "cache_size"
	KeyEvicted   = "evicted"
	KeyStrategy  = "strategy" // cache strategy name: lru, arc

	// Encryption
	KeyKeyID     = "key_id"
	KeyAlgorithm = "algorithm"

	// Snapshots & dedup
	KeySnapshotID  = "snapshot_id"
	KeyContentHash = "content_hash"
	KeyRefCount    = "ref_count"

	// Operation metadata
	KeyError      = "error"
	KeyDurationMs = "duration_ms"
	KeyDevice     = "device" // backing device description
)

// Err returns a slog.Attr for an error, or the zero Attr for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Inode returns a slog.Attr for an inode number.
func Inode(ino uint32) slog.Attr {
	return slog.Uint64(KeyInode, uint64(ino))
}

// Path returns a slog.Attr for a filesystem path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// BlockID returns a slog.Attr for a physical block id.
func BlockID(id uint64) slog.Attr {
	return slog.Uint64(KeyBlockID, id)
}

// SnapshotID returns a slog.Attr for a snapshot id.
func SnapshotID(id uint64) slog.Attr {
	return slog.Uint64(KeySnapshotID, id)
}

// KeyIDAttr returns a slog.Attr for an encryption key id.
func KeyIDAttr(id uint64) slog.Attr {
	return slog.Uint64(KeyKeyID, id)
}
