// Package engine composes the EclipseFS v2 storage engine: the on-disk
// layout, the node cache, the copy-on-write block writer, the per-path
// encryption layer, and the snapshot and dedup bookkeeping, behind one
// mutex-guarded API.
//
// Ownership model: the backing device is the source of truth, the inode
// table is loaded once at open time and treated as read-only until the
// next flush, and the cache holds decoded node copies. All public
// methods serialize on the engine mutex; the monotonic id counters
// (inodes, blocks, keys) are atomics and safe to read concurrently.
package engine

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/eclipse-os/eclipsefs/internal/logger"
	"github.com/eclipse-os/eclipsefs/pkg/checksum"
	"github.com/eclipse-os/eclipsefs/pkg/fs"
	"github.com/eclipse-os/eclipsefs/pkg/fs/cache"
	"github.com/eclipse-os/eclipsefs/pkg/fs/cow"
	"github.com/eclipse-os/eclipsefs/pkg/fs/crypt"
	"github.com/eclipse-os/eclipsefs/pkg/fs/device"
	"github.com/eclipse-os/eclipsefs/pkg/fs/layout"
	"github.com/eclipse-os/eclipsefs/pkg/fs/snapshot"
	"github.com/eclipse-os/eclipsefs/pkg/fs/tlv"
)

// Options configures a formatted or opened engine instance.
type Options struct {
	// BlockSize is the data block size in bytes. Zero selects
	// layout.DefaultBlockSize. Read back from the header on open.
	BlockSize uint32

	// TotalBlocks caps the data region. Zero selects DefaultTotalBlocks.
	TotalBlocks uint64

	// CacheStrategy names the node cache eviction policy ("lru" or
	// "arc"); empty selects LRU.
	CacheStrategy string

	// CacheCapacity is the node cache capacity in entries; zero selects
	// cache.DefaultCapacity.
	CacheCapacity int

	// Compression enables transparent lz4 compression of block payloads.
	Compression bool

	// DefaultAlgorithm encrypts paths no policy covers.
	DefaultAlgorithm crypt.Algorithm

	// RotationThreshold is the per-key operation count before rotation;
	// zero selects crypt.DefaultRotationThreshold.
	RotationThreshold uint64

	// Metrics receives cache observations; nil disables them.
	Metrics cache.Metrics
}

// DefaultTotalBlocks sizes the data region when Options does not.
const DefaultTotalBlocks = 16384

// Engine is one mounted EclipseFS v2 instance over a backing device.
type Engine struct {
	mu sync.Mutex

	dev    device.Device
	opts   Options
	header *layout.Header

	table     *layout.InodeTable
	checksums layout.ChecksumTable

	cache  cache.Strategy[*fs.Node]
	alloc  *cow.Allocator
	writer *cow.Writer

	keys      *crypt.Manager
	snapshots *snapshot.Table
	dedup     *snapshot.DedupTable

	// dirty holds nodes created or modified since the last flush; they
	// supersede the on-disk records for the same inodes.
	dirty map[uint32]*fs.Node

	// pathOf remembers the absolute path each inode was last reached
	// by; encryption subkeys are derived from it. Session-scoped.
	pathOf map[uint32]string

	// keyOf remembers which key id sealed each inode's content blocks.
	keyOf map[uint32]uint64

	// activeKey maps an algorithm to the key id new writes seal with.
	activeKey map[crypt.Algorithm]uint64

	nextInode atomic.Uint32
	closed    bool
}

// Format initializes dev as a fresh EclipseFS v2 image containing an
// empty root directory and returns the engine mounted over it.
func Format(dev device.Device, opts Options) (*Engine, error) {
	if opts.BlockSize == 0 {
		opts.BlockSize = layout.DefaultBlockSize
	}
	if opts.BlockSize < layout.BlockHeaderSize+layout.BlockFooterSize+1 {
		return nil, fs.NewInvalidArgumentError(
			fmt.Sprintf("block size %d cannot hold a block header", opts.BlockSize))
	}
	if opts.TotalBlocks == 0 {
		opts.TotalBlocks = DefaultTotalBlocks
	}

	header := layout.NewHeader(opts.BlockSize, opts.TotalBlocks)
	header.Features = featureBits(opts)

	e, err := assemble(dev, header, opts)
	if err != nil {
		return nil, err
	}

	root := fs.NewDirectory(fs.RootInode, 0o755)
	e.dirty[fs.RootInode] = root
	e.pathOf[fs.RootInode] = ""
	e.nextInode.Store(fs.RootInode)

	if err := e.flushLocked(); err != nil {
		return nil, err
	}

	logger.Info("volume formatted",
		"block_size", opts.BlockSize,
		"total_blocks", opts.TotalBlocks,
		"features", header.Features)
	return e, nil
}

// Open mounts an existing image. The header is validated, the inode
// and checksum tables are loaded once, and the snapshot, dedup, and
// encryption-policy sections are rebuilt from their on-disk forms.
// Encryption keys are never persisted, so content sealed in an earlier
// session stays unreadable until its keys are re-established.
func Open(dev device.Device, opts Options) (*Engine, error) {
	buf := make([]byte, layout.HeaderSize)
	if err := dev.ReadAt(buf, 0); err != nil {
		return nil, fs.NewIOError(fmt.Sprintf("header read failed: %v", err))
	}
	header, err := layout.UnmarshalHeader(buf)
	if err != nil {
		return nil, err
	}

	opts.BlockSize = header.BlockSize
	opts.TotalBlocks = header.TotalBlocks
	opts.Compression = header.Features&layout.FeatureCompression != 0

	e, err := assemble(dev, header, opts)
	if err != nil {
		return nil, err
	}
	if err := e.loadMetadata(); err != nil {
		return nil, err
	}

	logger.Info("volume opened",
		"block_size", header.BlockSize,
		"inodes", e.table.Len(),
		"free_blocks", header.FreeBlocks,
		"snapshots", e.snapshots.Len())
	return e, nil
}

// assemble wires the engine components around a header without touching
// the device.
func assemble(dev device.Device, header *layout.Header, opts Options) (*Engine, error) {
	strategy := opts.CacheStrategy
	if strategy == "" {
		strategy = cache.StrategyLRU
	}
	nodeCache, err := cache.New[*fs.Node](strategy, opts.CacheCapacity, opts.Metrics)
	if err != nil {
		return nil, err
	}

	alloc := cow.NewAllocator(header.TotalBlocks - header.FreeBlocks)

	emptyTable, err := layout.NewInodeTable(nil)
	if err != nil {
		return nil, err
	}

	return &Engine{
		dev:       dev,
		opts:      opts,
		header:    header,
		table:     emptyTable,
		checksums: make(layout.ChecksumTable),
		cache:     nodeCache,
		alloc:     alloc,
		writer:    cow.NewWriter(dev, alloc, header.BlockSize, layout.DataRegionOffset, opts.Compression),
		keys:      crypt.NewManager(opts.DefaultAlgorithm, opts.RotationThreshold),
		snapshots: snapshot.NewTable(),
		dedup:     snapshot.NewDedupTable(),
		dirty:     make(map[uint32]*fs.Node),
		pathOf:    make(map[uint32]string),
		keyOf:     make(map[uint32]uint64),
		activeKey: make(map[crypt.Algorithm]uint64),
	}, nil
}

func featureBits(opts Options) uint64 {
	bits := layout.FeatureSnapshots | layout.FeatureDedup
	if opts.Compression {
		bits |= layout.FeatureCompression
	}
	if opts.DefaultAlgorithm != crypt.AlgoNone {
		bits |= layout.FeatureEncryption
	}
	return bits
}

// loadMetadata reads the metadata sections at the offsets the header
// records. Sections are laid out contiguously, so each section's length
// is the distance to the next offset.
func (e *Engine) loadMetadata() error {
	h := e.header

	tableBlob, err := e.readSection(h.InodeTableOffset, h.ChecksumTableOffset)
	if err != nil {
		return err
	}
	// The records region sits between the inode table and the checksum
	// table; UnmarshalInodeTable consumes only the table prefix.
	e.table, err = layout.UnmarshalInodeTable(tableBlob)
	if err != nil {
		return err
	}

	ckBlob, err := e.readSection(h.ChecksumTableOffset, h.EncryptionInfoOffset)
	if err != nil {
		return err
	}
	e.checksums, err = layout.UnmarshalChecksumTable(ckBlob)
	if err != nil {
		return err
	}

	encBlob, err := e.readSection(h.EncryptionInfoOffset, h.SnapshotTableOffset)
	if err != nil {
		return err
	}
	if err := e.applyEncryptionInfo(encBlob); err != nil {
		return err
	}

	snapBlob, err := e.readSection(h.SnapshotTableOffset, h.CompressionInfoOffset)
	if err != nil {
		return err
	}
	e.snapshots, err = snapshot.UnmarshalTable(snapBlob)
	if err != nil {
		return err
	}

	// Compression info is a fixed-size flags word; the feature bit in
	// the header is authoritative, the section exists for inspection
	// tools.
	if _, err := e.readSection(h.CompressionInfoOffset, h.DedupTableOffset); err != nil {
		return err
	}

	dedupBlob, err := e.readDedupSection(h.DedupTableOffset)
	if err != nil {
		return err
	}
	e.dedup, err = snapshot.UnmarshalDedupTable(dedupBlob)
	if err != nil {
		return err
	}

	var maxInode uint32
	for _, entry := range e.table.Entries() {
		if entry.Inode > maxInode {
			maxInode = entry.Inode
		}
	}
	e.nextInode.Store(maxInode)
	e.pathOf[fs.RootInode] = ""
	return nil
}

func (e *Engine) readSection(from, to uint64) ([]byte, error) {
	if to < from || to > layout.DataRegionOffset {
		return nil, fs.NewInvalidFormatError("metadata section offsets out of order")
	}
	buf := make([]byte, to-from)
	if err := e.dev.ReadAt(buf, int64(from)); err != nil {
		return nil, fs.NewIOError(fmt.Sprintf("metadata section read failed: %v", err))
	}
	return buf, nil
}

// readDedupSection sizes the final metadata section from its own count
// prefix, since no later offset bounds it.
func (e *Engine) readDedupSection(from uint64) ([]byte, error) {
	prefix := make([]byte, 4)
	if err := e.dev.ReadAt(prefix, int64(from)); err != nil {
		return nil, fs.NewIOError(fmt.Sprintf("dedup table read failed: %v", err))
	}
	count := binary.LittleEndian.Uint32(prefix)
	size := uint64(4) + uint64(count)*(snapshot.HashSize+24)
	if from+size > layout.DataRegionOffset {
		return nil, fs.NewInvalidFormatError("dedup table exceeds metadata region")
	}
	return e.readSection(from, from+size)
}

// Sync flushes all metadata to the device. Data blocks are written at
// COW time and never rewritten, so a flush only serializes the node
// records, the tables, and the header.
func (e *Engine) Sync() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fs.NewInvalidOperationError("engine is closed", "")
	}
	return e.flushLocked()
}

// Close flushes and releases the backing device.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if err := e.flushLocked(); err != nil {
		return err
	}
	e.closed = true
	return e.dev.Close()
}

// flushLocked serializes every live node plus the metadata tables into
// the region below layout.DataRegionOffset and rewrites the header.
// Caller holds the mutex.
func (e *Engine) flushLocked() error {
	nodes, err := e.collectLiveNodes()
	if err != nil {
		return err
	}

	inodes := make([]uint32, 0, len(nodes))
	for inode := range nodes {
		inodes = append(inodes, inode)
	}
	sort.Slice(inodes, func(i, j int) bool { return inodes[i] < inodes[j] })

	// Encode records and rebuild the inode and checksum tables. Nodes
	// whose content lives in data blocks are encoded without the inline
	// copy; the block list locates the bytes.
	var records []byte
	entries := make([]layout.TableEntry, 0, len(inodes))
	checksums := make(layout.ChecksumTable, len(inodes))
	for _, inode := range inodes {
		enc := nodes[inode]
		if len(enc.Blocks) > 0 {
			enc = enc.Clone()
			enc.Content = nil
		}
		payload := tlv.Encode(enc)
		sum := checksum.Digest(payload)
		checksums[inode] = sum
		nodes[inode].Checksum = sum

		entries = append(entries, layout.TableEntry{
			Inode:          inode,
			RelativeOffset: uint32(len(records)),
		})
		records = append(records, layout.MarshalRecord(inode, payload)...)
	}

	table, err := layout.NewInodeTable(entries)
	if err != nil {
		return err
	}

	h := e.header
	h.InodeTableOffset = layout.HeaderSize
	h.ChecksumTableOffset = h.InodeTableOffset + table.Size() + uint64(len(records))

	ckBlob := layout.MarshalChecksumTable(checksums, inodes)
	h.EncryptionInfoOffset = h.ChecksumTableOffset + uint64(len(ckBlob))

	encBlob := e.marshalEncryptionInfo()
	h.SnapshotTableOffset = h.EncryptionInfoOffset + uint64(len(encBlob))

	snapBlob := e.snapshots.Marshal()
	h.CompressionInfoOffset = h.SnapshotTableOffset + uint64(len(snapBlob))

	compBlob := e.marshalCompressionInfo()
	h.DedupTableOffset = h.CompressionInfoOffset + uint64(len(compBlob))

	dedupBlob := e.dedup.Marshal()
	end := h.DedupTableOffset + uint64(len(dedupBlob))
	if end > layout.DataRegionOffset {
		return fs.NewNoSpaceError(
			fmt.Sprintf("metadata region full: %d bytes needed, %d available", end, layout.DataRegionOffset))
	}

	h.FreeBlocks = h.TotalBlocks - e.alloc.Peek()

	out := make([]byte, 0, end)
	out = append(out, h.Marshal()...)
	out = append(out, table.Marshal()...)
	out = append(out, records...)
	out = append(out, ckBlob...)
	out = append(out, encBlob...)
	out = append(out, snapBlob...)
	out = append(out, compBlob...)
	out = append(out, dedupBlob...)

	if err := e.dev.WriteAt(out, 0); err != nil {
		return fs.NewIOError(fmt.Sprintf("metadata flush failed: %v", err))
	}
	if err := e.dev.Sync(); err != nil {
		return fs.NewIOError(fmt.Sprintf("device sync failed: %v", err))
	}

	e.table = table
	e.checksums = checksums
	for inode, n := range e.dirty {
		e.cache.Put(inode, n)
	}
	e.dirty = make(map[uint32]*fs.Node)

	logger.Debug("metadata flushed",
		"inodes", len(inodes),
		"metadata_bytes", len(out),
		"free_blocks", h.FreeBlocks)
	return nil
}

// collectLiveNodes returns every node that must appear in the next
// metadata flush: all on-disk records overlaid with the dirty set.
func (e *Engine) collectLiveNodes() (map[uint32]*fs.Node, error) {
	nodes := make(map[uint32]*fs.Node, e.table.Len()+len(e.dirty))
	for _, entry := range e.table.Entries() {
		if _, ok := e.dirty[entry.Inode]; ok {
			continue
		}
		n, err := e.readNodeRaw(entry.Inode)
		if err != nil {
			return nil, err
		}
		nodes[entry.Inode] = n
	}
	for inode, n := range e.dirty {
		nodes[inode] = n
	}
	return nodes, nil
}
