package sync

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jstaf/driveflux/internal/remote"
	"github.com/jstaf/driveflux/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestBootstrapFreshAccount(t *testing.T) {
	st := newTestStore(t)
	fake := remote.NewFake()
	fake.Seed(&remote.RemoteFile{ID: "a", Name: "A", Parents: []string{"root"}, MimeType: remote.FolderMimeType}, nil)
	fake.Seed(&remote.RemoteFile{ID: "x", Name: "x.txt", Parents: []string{"a"}, Size: 11, MD5Checksum: "m1"}, []byte("hello world"))
	fake.Seed(&remote.RemoteFile{ID: "y", Name: "y.gdoc", Parents: []string{"root"}, MimeType: "application/vnd.google-apps.document"}, nil)

	require.NoError(t, Bootstrap(context.Background(), st, fake))

	iA, err := st.Lookup(store.RootInode, "A")
	require.NoError(t, err)
	iX, err := st.Lookup(iA, "x.txt")
	require.NoError(t, err)
	attrsX, err := st.GetAttrs(iX)
	require.NoError(t, err)
	require.EqualValues(t, 11, attrsX.Size)

	iY, err := st.Lookup(store.RootInode, "y.gdoc")
	require.NoError(t, err)
	attrsY, err := st.GetAttrs(iY)
	require.NoError(t, err)
	require.Equal(t, "application/vnd.google-apps.document", attrsY.MimeType)
}

func TestBootstrapNoParentsHangsFromRoot(t *testing.T) {
	st := newTestStore(t)
	fake := remote.NewFake()
	fake.Seed(&remote.RemoteFile{ID: "noparent", Name: "noparent.txt"}, nil)

	require.NoError(t, Bootstrap(context.Background(), st, fake))

	inode, err := st.Lookup(store.RootInode, "noparent.txt")
	require.NoError(t, err)
	require.NotZero(t, inode)
}

func TestBootstrapOrphanFallsBackToRoot(t *testing.T) {
	st := newTestStore(t)
	fake := remote.NewFake()
	fake.Seed(&remote.RemoteFile{ID: "orphan", Name: "orphan.txt", Parents: []string{"missing-parent"}}, nil)

	require.NoError(t, Bootstrap(context.Background(), st, fake))

	inode, err := st.Lookup(store.RootInode, "orphan.txt")
	require.NoError(t, err)
	require.NotZero(t, inode)
}
