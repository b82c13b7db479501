package drivefs

import (
	"context"
	"syscall"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/jstaf/driveflux/internal/store"
	"github.com/jstaf/driveflux/internal/sync"
)

// Lookup implements spec.md §4.2 lookup(parent, name). TTL is applied
// process-wide via fs.Options in Mount, not per-call here.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if !utf8.ValidString(name) {
		return nil, syscall.EINVAL
	}
	child, err := n.fsys.Store.Lookup(n.ino(), name)
	if err != nil {
		return nil, toErrno(err)
	}
	attrs, err := n.loadAttr(child, &out.Attr)
	if err != nil {
		return nil, toErrno(err)
	}
	stable := fs.StableAttr{Ino: child, Mode: fileTypeBits(attrs.IsDir)}
	return n.NewInode(ctx, n.newChild(), stable), 0
}

// Getattr implements spec.md §4.2 getattr(inode).
func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	_, err := n.loadAttr(n.ino(), &out.Attr)
	return toErrno(err)
}

// Setattr implements spec.md §4.2 setattr(inode, set_attr).
func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	inode := n.ino()
	remoteID, err := n.fsys.Store.GetRemoteID(inode)
	if err != nil {
		return toErrno(err)
	}

	if size, ok := in.GetSize(); ok {
		if err := n.fsys.Cache.Truncate(remoteID, int64(size)); err != nil {
			return toErrno(err)
		}
		if err := n.fsys.Store.UpdateSize(inode, size, nowUnix()); err != nil {
			return toErrno(err)
		}
		if err := n.fsys.Store.MarkDirty(inode); err != nil {
			return toErrno(err)
		}
	}
	if mtime, ok := in.GetMTime(); ok {
		if err := n.fsys.Store.UpdateMtime(inode, mtime.Unix()); err != nil {
			return toErrno(err)
		}
	}
	if mode, ok := in.GetMode(); ok {
		if err := n.fsys.Store.UpdateMode(inode, mode); err != nil {
			return toErrno(err)
		}
	}

	_, err = n.loadAttr(inode, &out.Attr)
	return toErrno(err)
}

// Opendir implements spec.md §4.2 opendir(inode): validates existence and
// is_dir, returns a zero (state-free) file handle.
func (n *Node) Opendir(ctx context.Context) syscall.Errno {
	attrs, err := n.fsys.Store.GetAttrs(n.ino())
	if err != nil {
		return toErrno(err)
	}
	if !attrs.IsDir {
		return syscall.ENOTDIR
	}
	return 0
}

// Readdir implements spec.md §4.2 readdir/readdirplus. The offset-skip and
// early-exit bookkeeping the spec describes by hand is delegated to
// fs.NewListDirStream's cursor, which go-fuse drives against the kernel's
// own offset; readdirplus attributes are not populated here since the
// kernel re-issues lookup/getattr for any entry it needs attributes for.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	parent := n.ino()
	children, err := n.fsys.Store.ListChildrenExtended(parent)
	if err != nil {
		return nil, toErrno(err)
	}

	entries := make([]fuse.DirEntry, 0, len(children)+2)
	entries = append(entries,
		fuse.DirEntry{Name: ".", Ino: parent, Mode: fuse.S_IFDIR},
		fuse.DirEntry{Name: "..", Ino: maxU64(1, parent), Mode: fuse.S_IFDIR},
	)
	for _, c := range children {
		mode := fileTypeBits(c.IsDir)
		entries = append(entries, fuse.DirEntry{Name: c.Name, Ino: c.Inode, Mode: mode})
	}
	return fs.NewListDirStream(entries), 0
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// Open implements spec.md §4.2 open(inode, flags): validates existence and
// triggers a best-effort prefetch.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	inode := n.ino()
	if _, err := n.fsys.Store.GetAttrs(inode); err != nil {
		return nil, 0, toErrno(err)
	}
	n.fsys.Cache.Prefetch(ctx, inode)
	return nil, 0, 0
}

// Read implements spec.md §4.2 read(inode, offset, size); see §4.3.
func (n *Node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := n.fsys.Cache.Read(ctx, n.ino(), off, len(dest))
	if err != nil {
		return nil, toErrno(err)
	}
	return fuse.ReadResultData(data), 0
}

// Write implements spec.md §4.2 write(inode, offset, data).
func (n *Node) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	inode := n.ino()
	remoteID, err := n.fsys.Store.GetRemoteID(inode)
	if err != nil {
		return 0, toErrno(err)
	}

	written, err := n.fsys.Cache.WriteAt(remoteID, data, off)
	if err != nil {
		return 0, toErrno(err)
	}

	attrs, err := n.fsys.Store.GetAttrs(inode)
	if err != nil {
		return 0, toErrno(err)
	}
	newSize := attrs.Size
	if end := uint64(off) + uint64(written); end > newSize {
		newSize = end
	}
	if err := n.fsys.Store.UpdateSize(inode, newSize, nowUnix()); err != nil {
		return 0, toErrno(err)
	}
	if err := n.fsys.Store.MarkDirty(inode); err != nil {
		return 0, toErrno(err)
	}
	return uint32(written), 0
}

// Create implements spec.md §4.2 create(parent, name, mode, flags): files
// only, per the contract's hardcoded is_dir=false. Directories in this
// system only ever originate from the remote via bootstrap/the puller.
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	parent := n.ino()
	remoteID := sync.TempIDPrefix + uuid.NewString()

	inode, err := n.fsys.Store.GetOrCreateInode(remoteID)
	if err != nil {
		return nil, nil, 0, toErrno(err)
	}
	if err := n.fsys.Store.UpsertAttrs(inode, 0, nowUnix(), modeFor(false, mode), false, "application/octet-stream"); err != nil {
		return nil, nil, 0, toErrno(err)
	}
	if err := n.fsys.Store.UpsertDentry(parent, inode, name); err != nil {
		return nil, nil, 0, toErrno(err)
	}
	if err := n.fsys.Store.MarkDirty(inode); err != nil {
		return nil, nil, 0, toErrno(err)
	}

	attrs, err := n.loadAttr(inode, &out.Attr)
	if err != nil {
		return nil, nil, 0, toErrno(err)
	}
	stable := fs.StableAttr{Ino: inode, Mode: fileTypeBits(attrs.IsDir)}
	return n.NewInode(ctx, n.newChild(), stable), nil, 0, 0
}

// Unlink implements spec.md §4.2 unlink(parent, name).
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	parent := n.ino()
	inode, err := n.fsys.Store.Lookup(parent, name)
	if err != nil {
		return toErrno(err)
	}
	remoteID, err := n.fsys.Store.GetRemoteID(inode)
	if err != nil {
		return toErrno(err)
	}
	return toErrno(n.fsys.Store.SoftDelete(remoteID))
}

// Rename implements spec.md §4.2 rename(parent, name, new_parent, new_name).
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	parent := n.ino()
	destNode, ok := newParent.(*Node)
	if !ok {
		return syscall.EINVAL
	}
	destParent := destNode.ino()

	inode, err := n.fsys.Store.Lookup(parent, name)
	if err != nil {
		return toErrno(err)
	}

	if existing, err := n.fsys.Store.Lookup(destParent, newName); err == nil {
		existingRemoteID, err := n.fsys.Store.GetRemoteID(existing)
		if err != nil {
			return toErrno(err)
		}
		if err := n.fsys.Store.SoftDelete(existingRemoteID); err != nil {
			return toErrno(err)
		}
	} else if storeErr := toErrno(err); storeErr != syscall.ENOENT {
		return storeErr
	}

	if err := n.fsys.Store.DeleteDentry(parent, name); err != nil {
		return toErrno(err)
	}
	if err := n.fsys.Store.UpsertDentry(destParent, inode, newName); err != nil {
		return toErrno(err)
	}
	return toErrno(n.fsys.Store.MarkDirty(inode))
}

// Statfs implements spec.md §4.2 statfs: nominal capacity figures.
func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	const blkSize uint64 = 4096
	const nominalCapacity = 5 << 40 // 5TB, matches the business-tier fallback quota
	out.Bsize = uint32(blkSize)
	out.Blocks = nominalCapacity / blkSize
	out.Bfree = out.Blocks
	out.Bavail = out.Blocks
	out.Files = 1_000_000
	out.Ffree = 1_000_000
	out.NameLen = 255
	return 0
}

// Release, Flush, Fsync are no-ops: data is already persisted into the
// on-disk cache by write and flushed to the remote asynchronously by the
// uploader (spec.md §4.2).
func (n *Node) Release(ctx context.Context, f fs.FileHandle) syscall.Errno        { return 0 }
func (n *Node) Flush(ctx context.Context, f fs.FileHandle) syscall.Errno         { return 0 }
func (n *Node) Fsync(ctx context.Context, f fs.FileHandle, flags uint32) syscall.Errno {
	return 0
}

func nowUnix() int64 {
	return store.Now()
}
