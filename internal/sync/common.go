package sync

import (
	"errors"

	"github.com/jstaf/driveflux/internal/remote"
	"github.com/jstaf/driveflux/internal/store"
	"github.com/jstaf/driveflux/internal/storeerr"
)

// TempIDPrefix marks a remote_id as a placeholder for a locally created
// file the uploader has not yet pushed (spec.md §3).
const TempIDPrefix = "temp_"

// changeTokenKey is the SyncMeta key under which the puller persists the
// change-feed page token.
const changeTokenKey = "changes_page_token"

func modeFor(isDir bool) uint32 {
	if isDir {
		return 0o755
	}
	return 0o644
}

// upsertFromRemote writes Inode + Attributes + DirectoryEntry for a remote
// file, following the same mapping used by bootstrap and the puller
// (spec.md §4.4.1 steps 2-3, §4.4.2 step 3).
func upsertFromRemote(st *store.Store, file *remote.RemoteFile, knownParents map[string]uint64) error {
	inode, err := st.GetOrCreateInode(file.ID)
	if err != nil {
		return err
	}

	isDir := file.IsDir()
	if err := st.UpsertAttrs(inode, file.Size, file.ModifiedTime, modeFor(isDir), isDir, file.MimeType); err != nil {
		return err
	}

	parentInode := store.RootInode
	for _, p := range file.Parents {
		if p == "root" {
			break
		}
		if pi, ok := knownParents[p]; ok {
			parentInode = pi
			break
		}
		pi, err := st.GetInodeForRemoteID(p)
		if err == nil {
			parentInode = pi
			break
		}
		if !errors.Is(err, storeerr.NotFound) {
			return err
		}
	}

	// A file with no parents still hangs from the root (spec.md §4.4.1 pass
	// 2), rather than being left without a dentry at all.
	if err := st.UpsertDentry(parentInode, inode, file.Name); err != nil {
		return err
	}

	if file.MD5Checksum != "" {
		if err := st.SetRemoteMD5(inode, file.MD5Checksum); err != nil {
			return err
		}
	}
	return nil
}
