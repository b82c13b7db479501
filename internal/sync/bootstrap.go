package sync

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/jstaf/driveflux/internal/remote"
	"github.com/jstaf/driveflux/internal/store"
)

// Bootstrap performs the one-time full walk described in spec.md §4.4.1,
// triggered when the store's Inode table holds only the root (or nothing).
func Bootstrap(ctx context.Context, st *store.Store, client remote.Client) error {
	if err := st.EnsureRoot(); err != nil {
		return err
	}

	files, err := client.ListAllFiles(ctx)
	if err != nil {
		return err
	}

	// Pass 1: materialize every inode and its attributes before any
	// DirectoryEntry references it, so pass 2 can resolve parents that
	// appear later in the listing order.
	known := make(map[string]uint64, len(files))
	for _, f := range files {
		inode, err := st.GetOrCreateInode(f.ID)
		if err != nil {
			return err
		}
		known[f.ID] = inode
		isDir := f.IsDir()
		if err := st.UpsertAttrs(inode, f.Size, f.ModifiedTime, modeFor(isDir), isDir, f.MimeType); err != nil {
			return err
		}
	}

	// Pass 2: wire up the directory graph.
	for _, f := range files {
		if err := upsertFromRemote(st, f, known); err != nil {
			log.Warn().Err(err).Str("remote_id", f.ID).Msg("sync: bootstrap failed to place file")
			continue
		}
	}

	log.Info().Int("count", len(files)).Msg("sync: bootstrap complete")
	return nil
}
