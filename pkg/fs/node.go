// Package fs defines the core EclipseFS node model and error taxonomy
// shared by every engine package.
package fs

import "time"

// RootInode is the well-known inode number of the filesystem root.
const RootInode uint32 = 1

// NodeKind identifies the type of a node.
type NodeKind uint8

const (
	KindFile NodeKind = iota + 1
	KindDirectory
	KindSymlink
)

func (k NodeKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// DirEntry is a single name -> child-inode mapping inside a directory.
// Entries keep their decode/insert order; names are unique within a node.
type DirEntry struct {
	Name  string
	Inode uint32
}

// Node is the decoded, cache-resident representation of an inode.
//
// The on-disk record is the source of truth; a Node is an owned copy
// produced by the TLV decoder. The cache owns decoded nodes, so callers
// that need to mutate one work on a Clone.
type Node struct {
	// Inode is the node's number; it must match the inode table entry
	// that located the record.
	Inode uint32

	Kind NodeKind
	Mode uint32
	UID  uint32
	GID  uint32

	// Size is the logical size in bytes. For directories it mirrors the
	// encoded entries blob size.
	Size uint64

	// Unix timestamps, seconds.
	Atime uint64
	Mtime uint64
	Ctime uint64

	Nlink uint32

	// Content holds file bytes, or the symlink target for symlinks.
	Content []byte

	// Entries holds the children of a directory, deduplicated by name.
	Entries []DirEntry

	// Version is the COW generation, bumped on every write that goes
	// through the engine. The previous version's blocks stay reachable
	// until explicitly superseded.
	Version uint64

	// ParentVersion optionally back-references the version this node was
	// cloned from; zero means none.
	ParentVersion uint64

	// InSnapshot marks the node as captured by at least one snapshot.
	InSnapshot bool

	// ContentHash is the dedup content hash of the node's data; the zero
	// value means not yet hashed.
	ContentHash [32]byte

	// Checksum is the record digest stored on disk.
	Checksum uint32

	// Blocks lists the physical block ids backing the node's content,
	// in logical order. Rewritten wholesale by the COW write path.
	Blocks []uint64
}

// NewFile creates a file node with the given mode and current timestamps.
func NewFile(inode uint32, mode uint32) *Node {
	return newNode(inode, KindFile, mode)
}

// NewDirectory creates an empty directory node.
func NewDirectory(inode uint32, mode uint32) *Node {
	return newNode(inode, KindDirectory, mode)
}

// NewSymlink creates a symlink node pointing at target.
func NewSymlink(inode uint32, target string) *Node {
	n := newNode(inode, KindSymlink, 0o777)
	n.Content = []byte(target)
	n.Size = uint64(len(target))
	return n
}

func newNode(inode uint32, kind NodeKind, mode uint32) *Node {
	now := uint64(time.Now().Unix())
	return &Node{
		Inode:   inode,
		Kind:    kind,
		Mode:    mode,
		Atime:   now,
		Mtime:   now,
		Ctime:   now,
		Nlink:   1,
		Version: 1,
	}
}

// Lookup returns the child inode for name in a directory node.
func (n *Node) Lookup(name string) (uint32, bool) {
	for _, e := range n.Entries {
		if e.Name == name {
			return e.Inode, true
		}
	}
	return 0, false
}

// AddEntry appends a child entry. Adding a name that already exists
// returns false and leaves the directory unchanged.
func (n *Node) AddEntry(name string, child uint32) bool {
	if _, exists := n.Lookup(name); exists {
		return false
	}
	n.Entries = append(n.Entries, DirEntry{Name: name, Inode: child})
	return true
}

// Clone returns a deep copy of the node. The cache hands out its owned
// nodes directly, so writers clone before mutating.
func (n *Node) Clone() *Node {
	c := *n
	if n.Content != nil {
		c.Content = append([]byte(nil), n.Content...)
	}
	if n.Entries != nil {
		c.Entries = append([]DirEntry(nil), n.Entries...)
	}
	if n.Blocks != nil {
		c.Blocks = append([]uint64(nil), n.Blocks...)
	}
	return &c
}

// Stat is the attribute view exposed to the VFS layer.
type Stat struct {
	Inode uint32
	Kind  NodeKind
	Mode  uint32
	UID   uint32
	GID   uint32
	Size  uint64
	Atime uint64
	Mtime uint64
	Ctime uint64
	Nlink uint32
}

// Stat returns the node's attribute view.
func (n *Node) Stat() Stat {
	return Stat{
		Inode: n.Inode,
		Kind:  n.Kind,
		Mode:  n.Mode,
		UID:   n.UID,
		GID:   n.GID,
		Size:  n.Size,
		Atime: n.Atime,
		Mtime: n.Mtime,
		Ctime: n.Ctime,
		Nlink: n.Nlink,
	}
}
