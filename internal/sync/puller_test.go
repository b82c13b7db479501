package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstaf/driveflux/internal/remote"
	"github.com/jstaf/driveflux/internal/store"
)

func TestPullerAppliesCreateChange(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.EnsureRoot())
	fake := remote.NewFake()

	p := NewPuller(st, fake, PullerConfig{})
	require.NoError(t, p.Tick(context.Background()))

	fake.PushChange(&remote.Change{
		FileID: "n1",
		File:   &remote.RemoteFile{ID: "n1", Name: "new.txt", Parents: []string{"root"}, Size: 5},
	})
	require.NoError(t, p.Tick(context.Background()))

	inode, err := st.Lookup(store.RootInode, "new.txt")
	require.NoError(t, err)
	attrs, err := st.GetAttrs(inode)
	require.NoError(t, err)
	assert.EqualValues(t, 5, attrs.Size)
}

func TestPullerSoftDeleteAndRestore(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.EnsureRoot())
	fake := remote.NewFake()
	p := NewPuller(st, fake, PullerConfig{})
	require.NoError(t, p.Tick(context.Background()))

	fake.PushChange(&remote.Change{
		FileID: "d1",
		File:   &remote.RemoteFile{ID: "d1", Name: "doomed.txt", Parents: []string{"root"}},
	})
	require.NoError(t, p.Tick(context.Background()))
	_, err := st.Lookup(store.RootInode, "doomed.txt")
	require.NoError(t, err)

	fake.PushChange(&remote.Change{FileID: "d1", Removed: true})
	require.NoError(t, p.Tick(context.Background()))
	has, err := st.HasTombstone("d1")
	require.NoError(t, err)
	assert.True(t, has)

	fake.PushChange(&remote.Change{
		FileID: "d1",
		File:   &remote.RemoteFile{ID: "d1", Name: "doomed.txt", Parents: []string{"root"}},
	})
	require.NoError(t, p.Tick(context.Background()))
	has, err = st.HasTombstone("d1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestPullerInvalidatesCacheOnMD5Change(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.EnsureRoot())
	fake := remote.NewFake()
	p := NewPuller(st, fake, PullerConfig{})
	require.NoError(t, p.Tick(context.Background()))

	fake.PushChange(&remote.Change{
		FileID: "v1",
		File:   &remote.RemoteFile{ID: "v1", Name: "v.bin", Parents: []string{"root"}, Size: 100, MD5Checksum: "md5-a"},
	})
	require.NoError(t, p.Tick(context.Background()))
	inode, err := st.GetInodeForRemoteID("v1")
	require.NoError(t, err)
	require.NoError(t, st.AddCachedChunk(inode, 0, 99))

	fake.PushChange(&remote.Change{
		FileID: "v1",
		File:   &remote.RemoteFile{ID: "v1", Name: "v.bin", Parents: []string{"root"}, Size: 100, MD5Checksum: "md5-b"},
	})
	require.NoError(t, p.Tick(context.Background()))

	missing, err := st.GetMissingRanges(inode, 0, 99)
	require.NoError(t, err)
	assert.NotEmpty(t, missing)
}

func TestPullerTickSurfacesTransientError(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.EnsureRoot())
	fake := remote.NewFake()
	p := NewPuller(st, fake, PullerConfig{})
	require.NoError(t, p.Tick(context.Background()))

	fake.FailNextCalls(1)
	err := p.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, isTransient(err))

	// the outage is over; the next tick succeeds normally
	require.NoError(t, p.Tick(context.Background()))
}
