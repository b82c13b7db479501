package drivefs

import (
	"context"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstaf/driveflux/internal/rangecache"
	"github.com/jstaf/driveflux/internal/remote"
	"github.com/jstaf/driveflux/internal/store"
)

// newTestFilesystem wires a Filesystem over a temp-dir store and cache, and
// attaches it to a go-fuse node tree in memory via fs.NewNodeFS, without an
// actual kernel mount.
func newTestFilesystem(t *testing.T) (*Filesystem, *Node, *remote.Fake) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.EnsureRoot())

	fake := remote.NewFake()
	cache, err := rangecache.New(t.TempDir(), st, fake)
	require.NoError(t, err)

	fsys := &Filesystem{Store: st, Cache: cache}
	root := Root(fsys)
	fs.NewNodeFS(root, &fs.Options{})
	return fsys, root.(*Node), fake
}

func lookupChild(t *testing.T, parent *Node, name string) *Node {
	t.Helper()
	var out fuse.EntryOut
	inode, errno := parent.Lookup(context.Background(), name, &out)
	require.Zero(t, errno)
	require.NotNil(t, inode)
	child, ok := inode.Operations().(*Node)
	require.True(t, ok)
	return child
}

func TestLookupMissingReturnsENOENT(t *testing.T) {
	_, root, _ := newTestFilesystem(t)
	var out fuse.EntryOut
	_, errno := root.Lookup(context.Background(), "missing.txt", &out)
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestLookupInvalidUTF8ReturnsEINVAL(t *testing.T) {
	_, root, _ := newTestFilesystem(t)
	var out fuse.EntryOut
	_, errno := root.Lookup(context.Background(), "bad\xffname", &out)
	assert.Equal(t, syscall.EINVAL, errno)
}

func TestCreateThenLookup(t *testing.T) {
	fsys, root, _ := newTestFilesystem(t)
	var out fuse.EntryOut
	_, _, _, errno := root.Create(context.Background(), "new.txt", 0, 0o644, &out)
	require.Zero(t, errno)
	assert.Zero(t, out.Attr.Size)
	assert.EqualValues(t, fuse.S_IFREG|0o644, out.Attr.Mode)

	inode, err := fsys.Store.Lookup(store.RootInode, "new.txt")
	require.NoError(t, err)
	dirty, err := fsys.Store.ListDirty()
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	assert.Equal(t, inode, dirty[0].Inode)

	child := lookupChild(t, root, "new.txt")
	assert.Equal(t, inode, child.ino())
}

func TestGetattrRoot(t *testing.T) {
	_, root, _ := newTestFilesystem(t)
	var out fuse.AttrOut
	errno := root.Getattr(context.Background(), nil, &out)
	require.Zero(t, errno)
	assert.True(t, out.Attr.Mode&fuse.S_IFDIR != 0)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	fsys, root, _ := newTestFilesystem(t)
	var createOut fuse.EntryOut
	_, _, _, errno := root.Create(context.Background(), "w.txt", 0, 0o644, &createOut)
	require.Zero(t, errno)
	child := lookupChild(t, root, "w.txt")

	payload := []byte("hello world")
	n, errno := child.Write(context.Background(), nil, payload, 0)
	require.Zero(t, errno)
	assert.EqualValues(t, len(payload), n)

	attrs, err := fsys.Store.GetAttrs(child.ino())
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), attrs.Size)

	buf := make([]byte, len(payload))
	res, errno := child.Read(context.Background(), nil, buf, 0)
	require.Zero(t, errno)
	read, _ := res.Bytes(buf)
	assert.Equal(t, payload, read)
}

func TestSetattrTruncate(t *testing.T) {
	fsys, root, _ := newTestFilesystem(t)
	var createOut fuse.EntryOut
	_, _, _, errno := root.Create(context.Background(), "t.txt", 0, 0o644, &createOut)
	require.Zero(t, errno)
	child := lookupChild(t, root, "t.txt")

	_, errno = child.Write(context.Background(), nil, []byte("0123456789"), 0)
	require.Zero(t, errno)

	in := &fuse.SetAttrIn{}
	in.Valid = fuse.FATTR_SIZE
	in.Size = 4
	var attrOut fuse.AttrOut
	errno = child.Setattr(context.Background(), nil, in, &attrOut)
	require.Zero(t, errno)
	assert.EqualValues(t, 4, attrOut.Attr.Size)

	attrs, err := fsys.Store.GetAttrs(child.ino())
	require.NoError(t, err)
	assert.EqualValues(t, 4, attrs.Size)
}

func TestUnlinkRemovesDentry(t *testing.T) {
	_, root, _ := newTestFilesystem(t)
	var createOut fuse.EntryOut
	_, _, _, errno := root.Create(context.Background(), "u.txt", 0, 0o644, &createOut)
	require.Zero(t, errno)

	errno = root.Unlink(context.Background(), "u.txt")
	require.Zero(t, errno)

	var out fuse.EntryOut
	_, errno = root.Lookup(context.Background(), "u.txt", &out)
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestRenameMovesEntry(t *testing.T) {
	fsys, root, _ := newTestFilesystem(t)
	var createOut fuse.EntryOut
	_, _, _, errno := root.Create(context.Background(), "r.txt", 0, 0o644, &createOut)
	require.Zero(t, errno)

	destInode, err := fsys.Store.GetOrCreateInode("destdir")
	require.NoError(t, err)
	require.NoError(t, fsys.Store.UpsertAttrs(destInode, 0, 0, 0o755, true, remote.FolderMimeType))
	require.NoError(t, fsys.Store.UpsertDentry(store.RootInode, destInode, "destdir"))
	destNode := lookupChild(t, root, "destdir")

	errno = root.Rename(context.Background(), "r.txt", destNode, "renamed.txt", 0)
	require.Zero(t, errno)

	_, err = fsys.Store.Lookup(destInode, "renamed.txt")
	require.NoError(t, err)
	var out fuse.EntryOut
	_, errno = root.Lookup(context.Background(), "r.txt", &out)
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestReaddirListsChildrenAndDotEntries(t *testing.T) {
	_, root, _ := newTestFilesystem(t)
	var out fuse.EntryOut
	_, _, _, errno := root.Create(context.Background(), "a.txt", 0, 0o644, &out)
	require.Zero(t, errno)
	_, _, _, errno = root.Create(context.Background(), "b.txt", 0, 0o644, &out)
	require.Zero(t, errno)

	errno = root.Opendir(context.Background())
	require.Zero(t, errno)

	stream, errno := root.Readdir(context.Background())
	require.Zero(t, errno)
	var names []string
	for stream.HasNext() {
		entry, errno := stream.Next()
		require.Zero(t, errno)
		names = append(names, entry.Name)
	}
	assert.Contains(t, names, ".")
	assert.Contains(t, names, "..")
	assert.Contains(t, names, "a.txt")
	assert.Contains(t, names, "b.txt")
}

func TestOpendirOnFileReturnsENOTDIR(t *testing.T) {
	_, root, _ := newTestFilesystem(t)
	var out fuse.EntryOut
	_, _, _, errno := root.Create(context.Background(), "file.txt", 0, 0o644, &out)
	require.Zero(t, errno)
	child := lookupChild(t, root, "file.txt")

	errno = child.Opendir(context.Background())
	assert.Equal(t, syscall.ENOTDIR, errno)
}

func TestStatfsReportsNominalCapacity(t *testing.T) {
	_, root, _ := newTestFilesystem(t)
	var out fuse.StatfsOut
	errno := root.Statfs(context.Background(), &out)
	require.Zero(t, errno)
	assert.EqualValues(t, 4096, out.Bsize)
	assert.NotZero(t, out.Blocks)
}
