package app

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

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		StorePath:        filepath.Join(dir, "metadata.db"),
		CacheDir:         filepath.Join(dir, "cache"),
		TombstoneGrace:   7,
		PullerInterval:   time.Hour,
		PullerMaxBackoff: time.Hour,
		UploadInterval:   time.Hour,
		UploadMaxBackoff: time.Hour,
	}
}

func TestNewBootstrapsEmptyStore(t *testing.T) {
	fake := remote.NewFake()
	fake.Seed(&remote.RemoteFile{ID: "f1", Name: "hello.txt", Parents: []string{"root"}, Size: 5}, []byte("hello"))

	a, err := New(context.Background(), testConfig(t), fake, status.NopSink{})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	inode, err := a.Store.Lookup(store.RootInode, "hello.txt")
	require.NoError(t, err)
	assert.NotZero(t, inode)
}

func TestNewReconcilesStaleCacheChunk(t *testing.T) {
	cfg := testConfig(t)
	fake := remote.NewFake()
	fake.Seed(&remote.RemoteFile{ID: "f1", Name: "hello.txt", Parents: []string{"root"}, Size: 5}, []byte("hello"))

	a, err := New(context.Background(), cfg, fake, status.NopSink{})
	require.NoError(t, err)
	inode, err := a.Store.Lookup(store.RootInode, "hello.txt")
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(cfg.CacheDir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.CacheDir, "f1"), []byte("he"), 0600))
	require.NoError(t, a.Store.AddCachedChunk(inode, 0, 4))
	require.NoError(t, a.Close())

	a2, err := New(context.Background(), cfg, fake, status.NopSink{})
	require.NoError(t, err)
	t.Cleanup(func() { a2.Close() })

	missing, err := a2.Store.GetMissingRanges(inode, 0, 4)
	require.NoError(t, err)
	assert.NotEmpty(t, missing)
}
