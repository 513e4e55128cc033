package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/eclipse-os/eclipsefs/internal/logger"
	"github.com/eclipse-os/eclipsefs/pkg/checksum"
	"github.com/eclipse-os/eclipsefs/pkg/fs"
	"github.com/eclipse-os/eclipsefs/pkg/fs/cache"
	"github.com/eclipse-os/eclipsefs/pkg/fs/crypt"
	"github.com/eclipse-os/eclipsefs/pkg/fs/layout"
	"github.com/eclipse-os/eclipsefs/pkg/fs/snapshot"
	"github.com/eclipse-os/eclipsefs/pkg/fs/tlv"
)

// ReadNode returns the node for inode with file content materialized
// from its data blocks. The returned node is the caller's copy.
func (e *Engine) ReadNode(inode uint32) (*fs.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readNodeLocked(inode)
}

func (e *Engine) readNodeLocked(inode uint32) (*fs.Node, error) {
	if e.closed {
		return nil, fs.NewInvalidOperationError("engine is closed", "")
	}

	if n, ok := e.dirty[inode]; ok {
		return n.Clone(), nil
	}
	if n, ok := e.cache.Get(inode); ok {
		return n.Clone(), nil
	}

	n, err := e.readNodeRaw(inode)
	if err != nil {
		return nil, err
	}
	if err := e.materialize(n); err != nil {
		return nil, err
	}

	e.cache.Put(inode, n)
	return n.Clone(), nil
}

// readNodeRaw decodes the on-disk record for inode without touching the
// cache or the content blocks.
func (e *Engine) readNodeRaw(inode uint32) (*fs.Node, error) {
	offset, ok := e.table.AbsoluteOffset(e.header.InodeTableOffset, inode)
	if !ok {
		return nil, fs.NewNotFoundError(fmt.Sprintf("inode %d not in table", inode), "")
	}

	hdrBuf := make([]byte, layout.RecordHeaderSize)
	if err := e.dev.ReadAt(hdrBuf, int64(offset)); err != nil {
		return nil, fs.NewIOError(fmt.Sprintf("record header read failed for inode %d: %v", inode, err))
	}
	rh, err := layout.UnmarshalRecordHeader(hdrBuf)
	if err != nil {
		return nil, err
	}
	if rh.Inode != inode {
		return nil, fs.NewInvalidFormatError(
			fmt.Sprintf("record at inode %d offset records inode %d", inode, rh.Inode))
	}

	payload := make([]byte, rh.PayloadSize())
	if err := e.dev.ReadAt(payload, int64(offset)+layout.RecordHeaderSize); err != nil {
		return nil, fs.NewIOError(fmt.Sprintf("record read failed for inode %d: %v", inode, err))
	}

	if want, ok := e.checksums[inode]; ok {
		if got := checksum.Digest(payload); got != want {
			return nil, fs.NewInvalidFormatError(
				fmt.Sprintf("checksum mismatch for inode %d: stored %08x, computed %08x", inode, want, got))
		}
	}

	n, err := tlv.Decode(inode, payload)
	if err != nil {
		return nil, err
	}
	n.Checksum = e.checksums[inode]
	return n, nil
}

// materialize loads a file node's content from its data blocks,
// undoing encryption when the blocks were sealed.
func (e *Engine) materialize(n *fs.Node) error {
	if len(n.Blocks) == 0 || len(n.Content) > 0 {
		return nil
	}

	content := make([]byte, 0, n.Size)
	for _, id := range n.Blocks {
		header, payload, err := e.writer.ReadBlock(id)
		if err != nil {
			return err
		}
		if header.Encryption != 0 {
			keyID, ok := e.keyOf[n.Inode]
			if !ok {
				return fs.NewNotFoundError(
					fmt.Sprintf("no session key for inode %d content", n.Inode), e.pathOf[n.Inode])
			}
			payload, err = e.keys.Decrypt(payload, keyID, e.pathOf[n.Inode])
			if err != nil {
				return err
			}
		}
		content = append(content, payload...)
	}
	n.Content = content
	return nil
}

// LookupPath walks an absolute slash-separated path from the root and
// returns the inode it names. "" and "/" name the root itself.
func (e *Engine) LookupPath(path string) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lookupPathLocked(path)
}

func (e *Engine) lookupPathLocked(path string) (uint32, error) {
	if e.closed {
		return 0, fs.NewInvalidOperationError("engine is closed", path)
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		return 0, fs.NewInvalidArgumentError(fmt.Sprintf("path %q is not absolute", path))
	}

	current := fs.RootInode
	walked := ""
	for _, component := range strings.Split(path, "/") {
		if component == "" {
			continue
		}
		node, err := e.readNodeLocked(current)
		if err != nil {
			return 0, err
		}
		if node.Kind != fs.KindDirectory {
			return 0, fs.NewInvalidOperationError(
				fmt.Sprintf("%q is not a directory", walked), path)
		}
		child, ok := node.Lookup(component)
		if !ok {
			return 0, fs.NewNotFoundError("path component not found", path)
		}
		walked += "/" + component
		e.pathOf[child] = walked
		current = child
	}
	return current, nil
}

// Stat returns the attribute view for inode without materializing file
// content.
func (e *Engine) Stat(inode uint32) (fs.Stat, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fs.Stat{}, fs.NewInvalidOperationError("engine is closed", "")
	}

	if n, ok := e.dirty[inode]; ok {
		return n.Stat(), nil
	}
	if n, ok := e.cache.Get(inode); ok {
		return n.Stat(), nil
	}
	n, err := e.readNodeRaw(inode)
	if err != nil {
		return fs.Stat{}, err
	}
	return n.Stat(), nil
}

// Write replaces the file's bytes at offset through the COW path: the
// new content goes to freshly allocated blocks, the node's version is
// bumped, and the previous blocks stay untouched on disk. Node metadata
// is updated only after every block write succeeded. Returns the number
// of bytes written.
func (e *Engine) Write(inode uint32, offset uint64, data []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	node, err := e.readNodeLocked(inode)
	if err != nil {
		return 0, err
	}
	if node.Kind != fs.KindFile {
		return 0, fs.NewInvalidOperationError(
			fmt.Sprintf("inode %d is a %s, not a file", inode, node.Kind), e.pathOf[inode])
	}

	content := node.Content
	if end := offset + uint64(len(data)); end > uint64(len(content)) {
		grown := make([]byte, end)
		copy(grown, content)
		content = grown
	} else {
		content = append([]byte(nil), content...)
	}
	copy(content[offset:], data)

	path := e.pathOf[inode]
	cfg := e.keys.ConfigForPath(path)

	var hash snapshot.Hash
	if len(content) > 0 {
		hash = snapshot.HashContent(content)
	}
	oldHash := node.ContentHash

	blocks, keyID, err := e.writeContent(inode, path, cfg, content, hash)
	if err != nil {
		return 0, err
	}

	if oldHash != (snapshot.Hash{}) && oldHash != hash {
		// Best effort: the old content gives up its dedup reference.
		if err := e.dedup.Release(oldHash); err != nil {
			logger.Warn("dedup release failed",
				logger.KeyInode, inode, "error", err.Error())
		}
	}

	now := uint64(time.Now().Unix())
	node.Content = content
	node.Size = uint64(len(content))
	node.Mtime = now
	node.Ctime = now
	node.ParentVersion = node.Version
	node.Version++
	node.ContentHash = hash
	node.Blocks = blocks

	e.dirty[inode] = node
	e.cache.Put(inode, node)
	if keyID != 0 {
		e.keyOf[inode] = keyID
	}

	logger.Debug("node written",
		logger.KeyInode, inode,
		"size", node.Size,
		"version", node.Version,
		"blocks", len(blocks))
	return len(data), nil
}

// writeContent persists content into COW blocks, sealing each chunk
// when the path's policy asks for encryption. On a dedup hit for
// unencrypted single-chunk content the existing block is shared instead
// of writing a duplicate.
func (e *Engine) writeContent(inode uint32, path string, cfg crypt.Config, content []byte, hash snapshot.Hash) ([]uint64, uint64, error) {
	if len(content) == 0 {
		return nil, 0, nil
	}

	chunkSize := int(e.writer.Capacity())
	encrypted := cfg.Algorithm != crypt.AlgoNone
	if encrypted {
		chunkSize -= cfg.IVSize + cfg.TagSize
	}
	if chunkSize <= 0 {
		return nil, 0, fs.NewInvalidArgumentError(
			fmt.Sprintf("block size %d leaves no room for a sealed chunk (IV %d, tag %d)",
				e.header.BlockSize, cfg.IVSize, cfg.TagSize))
	}
	chunks := (len(content) + chunkSize - 1) / chunkSize

	// Identical unencrypted content that fits one block shares the
	// existing owner's block. Sealed content is path-bound and never
	// shared.
	if !encrypted && chunks == 1 {
		if entry, err := e.dedup.Lookup(hash); err == nil {
			e.dedup.Reference(hash, entry.BlockID, uint64(len(content)))
			logger.Debug("content deduplicated",
				logger.KeyInode, inode,
				logger.KeyBlockID, entry.BlockID,
				logger.KeyContentHash, fmt.Sprintf("%x", hash[:8]))
			return []uint64{entry.BlockID}, 0, nil
		}
	}

	if free := e.header.TotalBlocks - e.alloc.Peek(); uint64(chunks) > free {
		return nil, 0, fs.NewNoSpaceError(
			fmt.Sprintf("%d blocks needed, %d free", chunks, free))
	}

	var keyID uint64
	if encrypted {
		id, err := e.sessionKey(cfg.Algorithm)
		if err != nil {
			return nil, 0, err
		}
		keyID = id
	}

	blocks := make([]uint64, 0, chunks)
	for off := 0; off < len(content); off += chunkSize {
		end := off + chunkSize
		if end > len(content) {
			end = len(content)
		}
		payload := content[off:end]

		if encrypted {
			sealed, err := e.keys.Encrypt(payload, keyID, path)
			if err != nil {
				return nil, 0, err
			}
			payload = sealed
		}

		id, err := e.writer.WriteBlockCOW(inode, payload, cfg.Algorithm.BlockTag())
		if err != nil {
			return nil, 0, err
		}
		blocks = append(blocks, id)
	}

	e.dedup.Reference(hash, blocks[0], uint64(len(content)))

	if encrypted && e.keys.NeedsRotation(keyID) {
		if newID, err := e.keys.RotateKey(keyID); err == nil {
			e.activeKey[cfg.Algorithm] = newID
		}
	}
	return blocks, keyID, nil
}

// sessionKey returns the key id new writes seal with for the algorithm,
// generating one on first use.
func (e *Engine) sessionKey(algorithm crypt.Algorithm) (uint64, error) {
	if id, ok := e.activeKey[algorithm]; ok {
		return id, nil
	}
	id, err := e.keys.GenerateKey(algorithm)
	if err != nil {
		return 0, err
	}
	e.activeKey[algorithm] = id
	return id, nil
}

// RegisterEncryptionPolicy binds a path prefix to an algorithm for all
// later writes. Persisted at the next flush.
func (e *Engine) RegisterEncryptionPolicy(prefix string, algorithm crypt.Algorithm) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fs.NewInvalidOperationError("engine is closed", prefix)
	}
	return e.keys.RegisterPolicy(prefix, algorithm)
}

// CreateFile creates an empty file under the parent directory.
func (e *Engine) CreateFile(parent uint32, name string, mode uint32) (uint32, error) {
	return e.createChild(parent, name, func(inode uint32) *fs.Node {
		return fs.NewFile(inode, mode)
	})
}

// CreateDirectory creates an empty directory under the parent.
func (e *Engine) CreateDirectory(parent uint32, name string, mode uint32) (uint32, error) {
	return e.createChild(parent, name, func(inode uint32) *fs.Node {
		return fs.NewDirectory(inode, mode)
	})
}

// CreateSymlink creates a symlink to target under the parent.
func (e *Engine) CreateSymlink(parent uint32, name, target string) (uint32, error) {
	return e.createChild(parent, name, func(inode uint32) *fs.Node {
		return fs.NewSymlink(inode, target)
	})
}

func (e *Engine) createChild(parent uint32, name string, build func(uint32) *fs.Node) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if name == "" || strings.Contains(name, "/") {
		return 0, fs.NewInvalidArgumentError(fmt.Sprintf("invalid entry name %q", name))
	}

	dir, err := e.readNodeLocked(parent)
	if err != nil {
		return 0, err
	}
	if dir.Kind != fs.KindDirectory {
		return 0, fs.NewInvalidOperationError(
			fmt.Sprintf("inode %d is a %s, not a directory", parent, dir.Kind), e.pathOf[parent])
	}
	if _, exists := dir.Lookup(name); exists {
		return 0, fs.NewInvalidOperationError(
			fmt.Sprintf("entry %q already exists", name), e.pathOf[parent])
	}

	inode := e.nextInode.Add(1)
	child := build(inode)

	dir.AddEntry(name, inode)
	now := uint64(time.Now().Unix())
	dir.Mtime = now
	dir.Ctime = now
	dir.ParentVersion = dir.Version
	dir.Version++

	e.dirty[parent] = dir
	e.dirty[inode] = child
	e.cache.Put(parent, dir)
	e.cache.Put(inode, child)
	e.pathOf[inode] = e.pathOf[parent] + "/" + name

	logger.Debug("node created",
		logger.KeyInode, inode,
		logger.KeyPath, e.pathOf[inode],
		"kind", child.Kind.String())
	return inode, nil
}

// CreateSnapshot appends an immutable point-in-time record capturing
// the live inode and allocated block counts. parent chains lineage;
// snapshot.NoParent starts a new chain. No block data is copied.
func (e *Engine) CreateSnapshot(name string, parent uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, fs.NewInvalidOperationError("engine is closed", "")
	}

	inodes := e.liveInodeCount()
	id, err := e.snapshots.Create(name, parent, inodes, e.alloc.Peek())
	if err != nil {
		return 0, err
	}

	for _, n := range e.dirty {
		n.InSnapshot = true
	}

	logger.Info("snapshot created",
		logger.KeySnapshotID, id,
		"name", name,
		"inodes", inodes)
	return id, nil
}

// Snapshots lists all snapshot records in creation order.
func (e *Engine) Snapshots() []snapshot.Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshots.List()
}

// Snapshot returns the record for one snapshot id.
func (e *Engine) Snapshot(id uint64) (snapshot.Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshots.Get(id)
}

func (e *Engine) liveInodeCount() uint64 {
	count := uint64(e.table.Len())
	for inode := range e.dirty {
		if _, onDisk := e.table.RelativeOffset(inode); !onDisk {
			count++
		}
	}
	return count
}

// PrefetchDir warms the cache with a directory's children. Best effort:
// unreadable children are skipped.
func (e *Engine) PrefetchDir(inode uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dir, err := e.readNodeLocked(inode)
	if err != nil || dir.Kind != fs.KindDirectory {
		return
	}
	for _, entry := range dir.Entries {
		if _, err := e.readNodeLocked(entry.Inode); err != nil {
			logger.Debug("prefetch skipped child",
				logger.KeyInode, entry.Inode, "error", err.Error())
		}
	}
}

// CacheStats returns the node cache hit/miss counters.
func (e *Engine) CacheStats() cache.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Stats()
}

// DedupEntry exposes the dedup record for a content hash.
func (e *Engine) DedupEntry(hash snapshot.Hash) (snapshot.DedupEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dedup.Lookup(hash)
}

// Info summarizes the mounted volume for inspection tools.
type Info struct {
	BlockSize   uint32
	TotalBlocks uint64
	FreeBlocks  uint64
	Features    uint64
	Inodes      int
	Snapshots   int
	CacheStats  cache.Stats
}

// Info returns the volume summary. Free blocks reflect allocations
// since open, not just the last flushed header.
func (e *Engine) Info() Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Info{
		BlockSize:   e.header.BlockSize,
		TotalBlocks: e.header.TotalBlocks,
		FreeBlocks:  e.header.TotalBlocks - e.alloc.Peek(),
		Features:    e.header.Features,
		Inodes:      int(e.liveInodeCount()),
		Snapshots:   e.snapshots.Len(),
		CacheStats:  e.cache.Stats(),
	}
}
