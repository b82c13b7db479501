// Package drivefs implements the kernel-facing filesystem operations
// dispatcher of spec.md §4.2: a thin, stateless translation layer between
// go-fuse's node-embedding callbacks and internal/store + internal/rangecache.
package drivefs

import (
	"os"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/jstaf/driveflux/internal/rangecache"
	"github.com/jstaf/driveflux/internal/shortcut"
	"github.com/jstaf/driveflux/internal/store"
	"github.com/jstaf/driveflux/internal/storeerr"
)

// Filesystem is the process-wide handle shared by every Node: the metadata
// store and the byte-range cache. Per spec.md §9 this is constructed once at
// startup and shared by reference; the dispatcher itself holds no state of
// its own.
type Filesystem struct {
	Store *store.Store
	Cache *rangecache.Cache
}

// Node is a single fs.InodeEmbedder backed by one store inode. Node carries
// no cached attributes or children; every callback reads the store fresh, so
// many Nodes may alias the same inode without risk of staleness.
type Node struct {
	fs.Inode
	fsys *Filesystem
}

var (
	_ fs.NodeLookuper  = (*Node)(nil)
	_ fs.NodeGetattrer = (*Node)(nil)
	_ fs.NodeSetattrer = (*Node)(nil)
	_ fs.NodeReaddirer = (*Node)(nil)
	_ fs.NodeOpendirer = (*Node)(nil)
	_ fs.NodeOpener    = (*Node)(nil)
	_ fs.NodeReader    = (*Node)(nil)
	_ fs.NodeWriter    = (*Node)(nil)
	_ fs.NodeCreater   = (*Node)(nil)
	_ fs.NodeUnlinker  = (*Node)(nil)
	_ fs.NodeRenamer   = (*Node)(nil)
	_ fs.NodeStatfser  = (*Node)(nil)
	_ fs.NodeReleaser  = (*Node)(nil)
	_ fs.NodeFlusher   = (*Node)(nil)
	_ fs.NodeFsyncer   = (*Node)(nil)
)

// Root builds the root Node for a Mount call.
func Root(fsys *Filesystem) fs.InodeEmbedder {
	return &Node{fsys: fsys}
}

func (n *Node) newChild() *Node {
	return &Node{fsys: n.fsys}
}

// ino returns the store inode number backing this Node. The root Node has no
// StableAttr assigned by a parent Lookup, so it reports store.RootInode.
func (n *Node) ino() uint64 {
	if stable := n.StableAttr(); stable.Ino != 0 {
		return stable.Ino
	}
	return store.RootInode
}

// toErrno maps a storeerr.Kind onto the syscall.Errno spec.md §7 names.
func toErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch storeerr.KindOf(err) {
	case storeerr.KindNotFound:
		return syscall.ENOENT
	case storeerr.KindConflict:
		return syscall.EEXIST
	case storeerr.KindIO:
		return syscall.EIO
	default:
		return syscall.EIO
	}
}

func fileTypeBits(isDir bool) uint32 {
	if isDir {
		return fuse.S_IFDIR
	}
	return fuse.S_IFREG
}

// effectiveSize returns attrs.Size, overridden to the byte length of the
// synthesized shortcut document for workspace-mime inodes (spec.md §4.2
// getattr, §4.5).
func (n *Node) effectiveSize(remoteID, name string, attrs store.Attributes) uint64 {
	if shortcut.IsWorkspaceMime(attrs.MimeType) {
		return uint64(len(shortcut.Generate(remoteID, name, attrs.MimeType)))
	}
	return attrs.Size
}

// buildAttr fills out with attrs, applying the uniform owner/nlink/blksize
// fields every operation reports identically.
func buildAttr(out *fuse.Attr, attrs store.Attributes, size uint64) {
	out.Ino = attrs.Inode
	out.Size = size
	out.Blocks = (size + 511) / 512
	out.Mode = attrs.Mode | fileTypeBits(attrs.IsDir)
	out.Mtime = uint64(attrs.Mtime)
	out.Ctime = uint64(attrs.Ctime)
	out.Atime = uint64(attrs.Mtime)
	out.Blksize = 4096
	if attrs.IsDir {
		out.Nlink = 2
	} else {
		out.Nlink = 1
	}
	out.Owner = fuse.Owner{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}
}

// loadAttr fetches Attributes and the remote_id/name pair needed to apply
// the workspace-mime size override, then fills out.
func (n *Node) loadAttr(inode uint64, out *fuse.Attr) (store.Attributes, error) {
	attrs, err := n.fsys.Store.GetAttrs(inode)
	if err != nil {
		return store.Attributes{}, err
	}
	size := attrs.Size
	if shortcut.IsWorkspaceMime(attrs.MimeType) {
		remoteID, err := n.fsys.Store.GetRemoteID(inode)
		if err != nil {
			return store.Attributes{}, err
		}
		_, name, err := n.fsys.Store.GetDentry(inode)
		if err != nil {
			name = remoteID
		}
		size = n.effectiveSize(remoteID, name, attrs)
	}
	buildAttr(out, attrs, size)
	return attrs, nil
}

// modeFor returns the mode to store for a freshly created entry: 0o755 for
// a directory, otherwise the permission bits from the create call, or 0o644
// when the call passes no mode (the defaults internal/sync's
// bootstrap/puller assign for remote-originated entries).
func modeFor(isDir bool, requested uint32) uint32 {
	if isDir {
		return 0o755
	}
	if requested == 0 {
		return 0o644
	}
	return requested &^ uint32(fuse.S_IFDIR|fuse.S_IFREG)
}
