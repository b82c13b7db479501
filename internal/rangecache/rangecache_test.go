package rangecache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jstaf/driveflux/internal/remote"
	"github.com/jstaf/driveflux/internal/shortcut"
	"github.com/jstaf/driveflux/internal/store"
)

func newTestCache(t *testing.T) (*Cache, *store.Store, *remote.Fake) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.EnsureRoot())

	fake := remote.NewFake()
	c, err := New(t.TempDir(), st, fake)
	require.NoError(t, err)
	return c, st, fake
}

func seedFile(t *testing.T, st *store.Store, fake *remote.Fake, remoteID string, content []byte) uint64 {
	t.Helper()
	fake.Seed(&remote.RemoteFile{ID: remoteID, Name: remoteID, MimeType: "text/plain", Size: uint64(len(content))}, content)
	inode, err := st.GetOrCreateInode(remoteID)
	require.NoError(t, err)
	require.NoError(t, st.UpsertAttrs(inode, uint64(len(content)), 0, 0o644, false, "text/plain"))
	return inode
}

func TestReadFetchesMissingRangeThenServesFromDisk(t *testing.T) {
	c, st, fake := newTestCache(t)
	content := []byte("hello cached world")
	inode := seedFile(t, st, fake, "f1", content)

	got, err := c.Read(context.Background(), inode, 0, len(content))
	require.NoError(t, err)
	require.Equal(t, content, got)

	missing, err := st.GetMissingRanges(inode, 0, int64(len(content)-1))
	require.NoError(t, err)
	require.Empty(t, missing)

	// second read should come from the full blob fast path
	got, err = c.Read(context.Background(), inode, 6, 6)
	require.NoError(t, err)
	require.Equal(t, []byte("cached"), got)
}

func TestReadEmptyFile(t *testing.T) {
	c, st, fake := newTestCache(t)
	inode := seedFile(t, st, fake, "empty", []byte{})

	got, err := c.Read(context.Background(), inode, 0, 10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestReadWorkspaceMimeNeverContactsRemote(t *testing.T) {
	c, st, fake := newTestCache(t)
	inode, err := st.GetOrCreateInode("doc1")
	require.NoError(t, err)
	require.NoError(t, st.UpsertAttrs(inode, 0, 0, 0o644, false, "application/vnd.google-apps.document"))
	_ = fake

	got, err := c.Read(context.Background(), inode, 0, 4096)
	require.NoError(t, err)
	require.Contains(t, string(got), "<!DOCTYPE html>")
}

// TestReadWorkspaceMimeUsesDentryName guards against Read and a getattr-style
// size computation disagreeing: both must title the synthesized document
// with the dentry's name, not the remote id, or the kernel's cached size
// stops matching what Read actually serves.
func TestReadWorkspaceMimeUsesDentryName(t *testing.T) {
	c, st, _ := newTestCache(t)
	inode, err := st.GetOrCreateInode("doc1")
	require.NoError(t, err)
	require.NoError(t, st.UpsertAttrs(inode, 0, 0, 0o644, false, "application/vnd.google-apps.document"))
	require.NoError(t, st.UpsertDentry(store.RootInode, inode, "Quarterly Report.gdoc"))

	got, err := c.Read(context.Background(), inode, 0, 1<<20)
	require.NoError(t, err)

	want := shortcut.Generate("doc1", "Quarterly Report.gdoc", "application/vnd.google-apps.document")
	require.Equal(t, want, got)
	require.NotContains(t, string(got), "<title>doc1</title>")
}

func TestWriteAtThenReadRoundTrips(t *testing.T) {
	c, st, fake := newTestCache(t)
	inode := seedFile(t, st, fake, "w1", []byte{})

	n, err := c.WriteAt("w1", []byte("abcdef"), 0)
	require.NoError(t, err)
	require.Equal(t, 6, n)
	require.NoError(t, st.UpdateSize(inode, 6, 0))

	got, err := c.Read(context.Background(), inode, 0, 6)
	require.NoError(t, err)
	require.Equal(t, []byte("abcdef"), got)
}

func TestTruncateShrinksBlob(t *testing.T) {
	c, st, fake := newTestCache(t)
	inode := seedFile(t, st, fake, "t1", []byte{})
	_, err := c.WriteAt("t1", []byte("0123456789"), 0)
	require.NoError(t, err)

	require.NoError(t, c.Truncate("t1", 4))
	require.NoError(t, st.UpdateSize(inode, 4, 0))

	got, err := c.Read(context.Background(), inode, 0, 4)
	require.NoError(t, err)
	require.Equal(t, []byte("0123"), got)
}

func TestPartialRangeFetchLeavesRestMissing(t *testing.T) {
	c, st, fake := newTestCache(t)
	content := make([]byte, 100)
	for i := range content {
		content[i] = byte(i)
	}
	inode := seedFile(t, st, fake, "f2", content)

	got, err := c.Read(context.Background(), inode, 10, 5)
	require.NoError(t, err)
	require.Equal(t, content[10:15], got)

	missing, err := st.GetMissingRanges(inode, 0, 99)
	require.NoError(t, err)
	require.Len(t, missing, 2)
	require.Equal(t, store.Range{Start: 0, End: 9}, missing[0])
	require.Equal(t, store.Range{Start: 15, End: 99}, missing[1])
}
