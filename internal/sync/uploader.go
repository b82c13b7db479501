package sync

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jstaf/driveflux/internal/remote"
	"github.com/jstaf/driveflux/internal/status"
	"github.com/jstaf/driveflux/internal/store"
)

// UploaderConfig configures the uploader's tick interval.
type UploaderConfig struct {
	Interval   time.Duration // default 30s
	MaxBackoff time.Duration // default 300s
}

func (c UploaderConfig) withDefaults() UploaderConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 300 * time.Second
	}
	return c
}

// Uploader is the long-lived dirty-scan task of spec.md §4.4.3.
type Uploader struct {
	st       *store.Store
	client   remote.Client
	cacheDir string
	cfg      UploaderConfig
	sink     status.Sink
}

// NewUploader builds an Uploader over st and client, reading/writing cache
// blobs under cacheDir (the same directory internal/rangecache uses).
func NewUploader(st *store.Store, client remote.Client, cacheDir string, cfg UploaderConfig) *Uploader {
	return &Uploader{st: st, client: client, cacheDir: cacheDir, cfg: cfg.withDefaults(), sink: status.NopSink{}}
}

// SetSink routes the uploader's status.Event notifications (conflict
// copies, permission-restored deletes) to sink instead of discarding them.
func (u *Uploader) SetSink(sink status.Sink) {
	if sink != nil {
		u.sink = sink
	}
}

// Run loops Tick until ctx is cancelled.
func (u *Uploader) Run(ctx context.Context) {
	b := newBackoff(u.cfg.Interval, u.cfg.MaxBackoff)
	for {
		if err := u.Tick(ctx); err != nil {
			if isTransient(err) {
				log.Warn().Err(err).Msg("sync: uploader tick failed, backing off")
			} else {
				log.Error().Err(err).Msg("sync: uploader tick failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.next()):
			}
			continue
		}
		b.reset()
		select {
		case <-ctx.Done():
			return
		case <-time.After(u.cfg.Interval):
		}
	}
}

// Tick runs one iteration of the uploader loop.
func (u *Uploader) Tick(ctx context.Context) error {
	rows, err := u.st.ListDirty()
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := u.process(ctx, row); err != nil {
			ev := log.Warn()
			if !isTransient(err) {
				ev = log.Error()
			}
			ev.Err(err).Uint64("inode", row.Inode).Str("remote_id", row.RemoteID).
				Msg("sync: uploader failed to push change")
		}
	}
	return nil
}

func (u *Uploader) process(ctx context.Context, row store.DirtyRow) error {
	isTemp := strings.HasPrefix(row.RemoteID, TempIDPrefix)
	switch {
	case row.IsDelete && isTemp:
		return u.st.MarkClean(row.Inode)
	case row.IsDelete && !isTemp:
		return u.processDelete(ctx, row)
	case !row.IsDelete && isTemp:
		return u.processCreate(ctx, row)
	default:
		return u.processUpdate(ctx, row)
	}
}

func (u *Uploader) processDelete(ctx context.Context, row store.DirtyRow) error {
	err := u.client.TrashFile(ctx, row.RemoteID)
	if err == nil {
		return u.st.MarkClean(row.Inode)
	}
	if _, ok := err.(*remote.ErrInsufficientPermissions); ok {
		if err := u.st.Restore(row.RemoteID); err != nil {
			return err
		}
		u.sink.Emit(status.Event{
			Kind: status.EventPermissionRestored, Inode: row.Inode, RemoteID: row.RemoteID,
		})
		return u.st.MarkClean(row.Inode)
	}
	return err
}

func (u *Uploader) processCreate(ctx context.Context, row store.DirtyRow) error {
	attrs, err := u.st.GetAttrs(row.Inode)
	if err != nil {
		return err
	}
	parentInode, name, err := u.st.GetDentry(row.Inode)
	if err != nil {
		return err
	}
	parentRemoteID, err := u.st.GetRemoteID(parentInode)
	if err != nil {
		return err
	}

	var realID string
	if attrs.IsDir {
		realID, err = u.client.CreateFolder(ctx, name, parentRemoteID)
	} else {
		path, blobErr := u.ensureBlobFor(row.RemoteID)
		if blobErr != nil {
			return blobErr
		}
		realID, err = u.client.UploadFile(ctx, path, name, attrs.MimeType, parentRemoteID)
		if err == nil {
			if moveErr := os.Rename(path, filepath.Join(u.cacheDir, realID)); moveErr != nil && !os.IsNotExist(moveErr) {
				log.Warn().Err(moveErr).Msg("sync: uploader failed to rename cache blob to real id")
			}
		}
	}
	if err != nil {
		return err
	}

	if err := u.st.SetRemoteID(row.Inode, realID); err != nil {
		return err
	}
	if err := u.st.SetLastSyncedName(row.Inode, name); err != nil {
		return err
	}
	return u.st.MarkClean(row.Inode)
}

func (u *Uploader) processUpdate(ctx context.Context, row store.DirtyRow) error {
	parentInode, name, err := u.st.GetDentry(row.Inode)
	if err != nil {
		return err
	}

	lastName, err := u.st.GetLastSyncedName(row.Inode)
	if err != nil {
		return err
	}
	if lastName != "" && lastName != name {
		if err := u.client.RenameFile(ctx, row.RemoteID, name); err != nil {
			return err
		}
	}

	remoteMD5, err := u.client.GetFileMD5(ctx, row.RemoteID)
	if err != nil {
		return err
	}
	known, err := u.st.GetRemoteMD5(row.Inode)
	if err != nil {
		return err
	}

	if known != "" && remoteMD5 != "" && known != remoteMD5 {
		return u.resolveConflict(ctx, row, parentInode, name)
	}

	path := u.blobPath(row.RemoteID)
	if err := u.client.UpdateFileContent(ctx, row.RemoteID, path); err != nil {
		return err
	}
	newMD5, err := u.client.GetFileMD5(ctx, row.RemoteID)
	if err != nil {
		return err
	}
	if err := u.st.SetRemoteMD5(row.Inode, newMD5); err != nil {
		return err
	}
	if err := u.st.SetLastSyncedName(row.Inode, name); err != nil {
		return err
	}
	return u.st.MarkClean(row.Inode)
}

// resolveConflict uploads the local blob as a new sibling file named per
// spec.md §4.4.3's "Conflicto local" convention, leaving the original
// remote copy untouched and marking the local inode clean. The conflict
// copy reappears via the puller as a normal sibling inode.
func (u *Uploader) resolveConflict(ctx context.Context, row store.DirtyRow, parentInode uint64, name string) error {
	attrs, err := u.st.GetAttrs(row.Inode)
	if err != nil {
		return err
	}
	parentRemoteID, err := u.st.GetRemoteID(parentInode)
	if err != nil {
		return err
	}
	path := u.blobPath(row.RemoteID)

	conflictName := conflictCopyName(name, time.Now())
	if _, err := u.client.UploadFile(ctx, path, conflictName, attrs.MimeType, parentRemoteID); err != nil {
		return err
	}
	u.sink.Emit(status.Event{
		Kind: status.EventConflictCopy, Inode: row.Inode, RemoteID: row.RemoteID, Detail: conflictName,
	})
	return u.st.MarkClean(row.Inode)
}

// conflictCopyName builds "<base> (Conflicto local YYYY-MM-DD-HHMMSS)<.ext>".
func conflictCopyName(name string, at time.Time) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	stamp := at.Format("2006-01-02-150405")
	return base + " (Conflicto local " + stamp + ")" + ext
}

func (u *Uploader) blobPath(remoteID string) string {
	return filepath.Join(u.cacheDir, remoteID)
}

// ensureBlobFor returns the cache blob path for remoteID, creating an empty
// file if none exists yet (a local create with no writes).
func (u *Uploader) ensureBlobFor(remoteID string) (string, error) {
	path := u.blobPath(remoteID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return "", err
	}
	f.Close()
	return path, nil
}
