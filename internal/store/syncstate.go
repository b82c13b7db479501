package store

import (
	"database/sql"
	"errors"

	"github.com/jstaf/driveflux/internal/storeerr"
)

// SetSyncMeta durably stores an opaque key/value pair (e.g. the change-feed
// page token).
func (s *Store) SetSyncMeta(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, now())
	if err != nil {
		return storeerr.IOf("store.SetSyncMeta", err)
	}
	return nil
}

// GetSyncMeta returns the value for key, or NotFound.
func (s *Store) GetSyncMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storeerr.NotFoundf("store.GetSyncMeta", nil)
	}
	if err != nil {
		return "", storeerr.IOf("store.GetSyncMeta", err)
	}
	return value, nil
}

// MarkDirty sets SyncState dirty=1 for inode, creating the row if absent.
func (s *Store) MarkDirty(inode uint64) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_state (inode, dirty, version) VALUES (?, 1, 0)
		ON CONFLICT(inode) DO UPDATE SET dirty = 1
	`, inode)
	if err != nil {
		return storeerr.IOf("store.MarkDirty", err)
	}
	return nil
}

// MarkClean clears dirty and deleted_at for inode - used once the
// corresponding remote operation has succeeded.
func (s *Store) MarkClean(inode uint64) error {
	_, err := s.db.Exec(
		`UPDATE sync_state SET dirty = 0, deleted_at = NULL WHERE inode = ?`, inode,
	)
	if err != nil {
		return storeerr.IOf("store.MarkClean", err)
	}
	return nil
}

// GetSyncState returns the dirty flag and whether a tombstone is pending
// for inode, the inputs to the §6 Status surface classification. An inode
// with no SyncState row at all is reported clean/not-deleted, matching
// "Synced if SyncState absent".
func (s *Store) GetSyncState(inode uint64) (dirty bool, deleted bool, err error) {
	var deletedAt sql.NullInt64
	err = s.db.QueryRow(
		`SELECT dirty, deleted_at FROM sync_state WHERE inode = ?`, inode,
	).Scan(&dirty, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, storeerr.IOf("store.GetSyncState", err)
	}
	return dirty, deletedAt.Valid, nil
}

// GetRemoteMD5 returns the last-seen server checksum for inode, if any.
func (s *Store) GetRemoteMD5(inode uint64) (string, error) {
	var md5 sql.NullString
	err := s.db.QueryRow(`SELECT remote_md5 FROM sync_state WHERE inode = ?`, inode).Scan(&md5)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storeerr.IOf("store.GetRemoteMD5", err)
	}
	return md5.String, nil
}

// SetRemoteMD5 records the last-seen server checksum for conflict detection.
func (s *Store) SetRemoteMD5(inode uint64, md5 string) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_state (inode, dirty, version, remote_md5) VALUES (?, 0, 0, ?)
		ON CONFLICT(inode) DO UPDATE SET remote_md5 = excluded.remote_md5
	`, inode, md5)
	if err != nil {
		return storeerr.IOf("store.SetRemoteMD5", err)
	}
	return nil
}

// GetLastSyncedName returns the name under which inode was last pushed to
// the remote, or "" if it has never been uploaded/updated.
func (s *Store) GetLastSyncedName(inode uint64) (string, error) {
	var name sql.NullString
	err := s.db.QueryRow(`SELECT last_synced_name FROM sync_state WHERE inode = ?`, inode).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storeerr.IOf("store.GetLastSyncedName", err)
	}
	return name.String, nil
}

// SetLastSyncedName records the name under which inode was last pushed,
// used by the uploader to detect a local rename it still needs to push.
func (s *Store) SetLastSyncedName(inode uint64, name string) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_state (inode, dirty, version, last_synced_name) VALUES (?, 0, 0, ?)
		ON CONFLICT(inode) DO UPDATE SET last_synced_name = excluded.last_synced_name
	`, inode, name)
	if err != nil {
		return storeerr.IOf("store.SetLastSyncedName", err)
	}
	return nil
}

// DirtyRow is one entry of ListDirty.
type DirtyRow struct {
	Inode     uint64
	RemoteID  string
	IsDelete  bool
}

// ListDirty returns all rows in SyncState with dirty=1, joined with Inode.
func (s *Store) ListDirty() ([]DirtyRow, error) {
	rows, err := s.db.Query(`
		SELECT ss.inode, i.remote_id, ss.deleted_at IS NOT NULL
		FROM sync_state ss JOIN inode i ON i.inode = ss.inode
		WHERE ss.dirty = 1
	`)
	if err != nil {
		return nil, storeerr.IOf("store.ListDirty", err)
	}
	defer rows.Close()

	var out []DirtyRow
	for rows.Next() {
		var r DirtyRow
		if err := rows.Scan(&r.Inode, &r.RemoteID, &r.IsDelete); err != nil {
			return nil, storeerr.IOf("store.ListDirty: scan", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// IsEmpty reports whether the Inode table holds only the root (or nothing),
// the trigger condition for running Bootstrap.
func (s *Store) IsEmpty() (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM inode WHERE remote_id != 'root'`).Scan(&n)
	if err != nil {
		return false, storeerr.IOf("store.IsEmpty", err)
	}
	return n == 0, nil
}
