package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstaf/driveflux/internal/remote"
	"github.com/jstaf/driveflux/internal/status"
	"github.com/jstaf/driveflux/internal/store"
)

type recordingSink struct {
	events []status.Event
}

func (r *recordingSink) Emit(e status.Event) { r.events = append(r.events, e) }

func mustParseTime(t *testing.T, s string) time.Time {
	t.Helper()
	at, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return at
}

func newTestUploader(t *testing.T) (*Uploader, *store.Store, *remote.Fake, string) {
	t.Helper()
	st := newTestStore(t)
	require.NoError(t, st.EnsureRoot())
	fake := remote.NewFake()
	cacheDir := t.TempDir()
	u := NewUploader(st, fake, cacheDir, UploaderConfig{})
	return u, st, fake, cacheDir
}

func TestUploaderCreatesLocalFile(t *testing.T) {
	u, st, _, cacheDir := newTestUploader(t)

	tempID := TempIDPrefix + "abc"
	inode, err := st.GetOrCreateInode(tempID)
	require.NoError(t, err)
	require.NoError(t, st.UpsertAttrs(inode, 5, 0, 0o644, false, "text/plain"))
	require.NoError(t, st.UpsertDentry(store.RootInode, inode, "new.txt"))
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, tempID), []byte("hello"), 0600))
	require.NoError(t, st.MarkDirty(inode))

	require.NoError(t, u.Tick(context.Background()))

	remoteID, err := st.GetRemoteID(inode)
	require.NoError(t, err)
	assert.NotContains(t, remoteID, TempIDPrefix)

	dirty, err := st.ListDirty()
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestUploaderDeletesTempNeverCallsRemote(t *testing.T) {
	u, st, fake, _ := newTestUploader(t)
	tempID := TempIDPrefix + "gone"
	// a remote entry under the same id would be removed by a TrashFile call
	fake.Seed(&remote.RemoteFile{ID: tempID, Name: "gone.txt"}, nil)
	inode, err := st.GetOrCreateInode(tempID)
	require.NoError(t, err)
	require.NoError(t, st.UpsertAttrs(inode, 0, 0, 0o644, false, "text/plain"))
	require.NoError(t, st.SoftDelete(tempID))

	require.NoError(t, u.Tick(context.Background()))

	dirty, err := st.ListDirty()
	require.NoError(t, err)
	assert.Empty(t, dirty)

	_, err = fake.GetFileMD5(context.Background(), tempID)
	assert.NoError(t, err)
}

func TestUploaderConflictProducesSibling(t *testing.T) {
	u, st, fake, cacheDir := newTestUploader(t)
	sink := &recordingSink{}
	u.SetSink(sink)

	fake.Seed(&remote.RemoteFile{ID: "r1", Name: "report.txt", Parents: []string{"root"}, MD5Checksum: "remote-v2"}, []byte("remote content"))
	inode, err := st.GetOrCreateInode("r1")
	require.NoError(t, err)
	require.NoError(t, st.UpsertAttrs(inode, 5, 0, 0o644, false, "text/plain"))
	require.NoError(t, st.UpsertDentry(store.RootInode, inode, "report.txt"))
	require.NoError(t, st.SetRemoteMD5(inode, "local-known-v1"))
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "r1"), []byte("local edits"), 0600))
	require.NoError(t, st.MarkDirty(inode))

	require.NoError(t, u.Tick(context.Background()))

	dirty, err := st.ListDirty()
	require.NoError(t, err)
	assert.Empty(t, dirty)

	files, err := fake.ListAllFiles(context.Background())
	require.NoError(t, err)
	var foundConflict bool
	for _, f := range files {
		if f.Name != "report.txt" && f.ID != "r1" {
			foundConflict = true
		}
	}
	assert.True(t, foundConflict)

	require.Len(t, sink.events, 1)
	assert.Equal(t, status.EventConflictCopy, sink.events[0].Kind)
}

func TestConflictCopyNameFormat(t *testing.T) {
	at := mustParseTime(t, "2024-03-15T13:04:05Z")
	name := conflictCopyName("report.docx", at)
	assert.Equal(t, "report (Conflicto local 2024-03-15-130405).docx", name)
}
