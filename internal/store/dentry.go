package store

import (
	"database/sql"
	"errors"

	"github.com/jstaf/driveflux/internal/storeerr"
)

// UpsertDentry replaces on (parent, name) conflict.
func (s *Store) UpsertDentry(parent, child uint64, name string) error {
	_, err := s.db.Exec(`
		INSERT INTO dentry (parent_inode, name, child_inode) VALUES (?, ?, ?)
		ON CONFLICT(parent_inode, name) DO UPDATE SET child_inode = excluded.child_inode
	`, parent, name, child)
	if err != nil {
		return storeerr.IOf("store.UpsertDentry", err)
	}
	return nil
}

// DeleteDentry removes a single (parent, name) row without tombstoning it.
// Used by rename, which relocates the entry rather than deleting it.
func (s *Store) DeleteDentry(parent uint64, name string) error {
	_, err := s.db.Exec(`DELETE FROM dentry WHERE parent_inode = ? AND name = ?`, parent, name)
	if err != nil {
		return storeerr.IOf("store.DeleteDentry", err)
	}
	return nil
}

// SoftDelete moves the dentry row for remoteID into TombstoneEntry with
// deleted_at=now, and sets SyncState dirty=1 with deleted_at. Idempotent if
// no such inode exists.
func (s *Store) SoftDelete(remoteID string) error {
	inode, err := s.GetInodeForRemoteID(remoteID)
	if errors.Is(err, storeerr.NotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return storeerr.IOf("store.SoftDelete: begin", err)
	}
	defer tx.Rollback()

	var parent uint64
	var name string
	err = tx.QueryRow(
		`SELECT parent_inode, name FROM dentry WHERE child_inode = ?`, inode,
	).Scan(&parent, &name)
	if errors.Is(err, sql.ErrNoRows) {
		// no visible dentry (already removed, e.g. double-delete); still
		// ensure the dirty+deleted sync-state bookkeeping happens.
	} else if err != nil {
		return storeerr.IOf("store.SoftDelete: query dentry", err)
	} else {
		if _, err := tx.Exec(`DELETE FROM dentry WHERE child_inode = ?`, inode); err != nil {
			return storeerr.IOf("store.SoftDelete: delete dentry", err)
		}
		n := now()
		if _, err := tx.Exec(`
			INSERT INTO tombstone (child_inode, parent_inode, name, deleted_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(child_inode) DO UPDATE SET parent_inode = excluded.parent_inode,
				name = excluded.name, deleted_at = excluded.deleted_at
		`, inode, parent, name, n); err != nil {
			return storeerr.IOf("store.SoftDelete: insert tombstone", err)
		}
	}

	n := now()
	if _, err := tx.Exec(`
		INSERT INTO sync_state (inode, dirty, version, deleted_at) VALUES (?, 1, 0, ?)
		ON CONFLICT(inode) DO UPDATE SET dirty = 1, deleted_at = excluded.deleted_at
	`, inode, n); err != nil {
		return storeerr.IOf("store.SoftDelete: sync_state", err)
	}

	return tx.Commit()
}

// Restore is the inverse of SoftDelete: moves the dentry back and clears
// deleted_at.
func (s *Store) Restore(remoteID string) error {
	inode, err := s.GetInodeForRemoteID(remoteID)
	if errors.Is(err, storeerr.NotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return storeerr.IOf("store.Restore: begin", err)
	}
	defer tx.Rollback()

	var parent uint64
	var name string
	err = tx.QueryRow(
		`SELECT parent_inode, name FROM tombstone WHERE child_inode = ?`, inode,
	).Scan(&parent, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return tx.Commit() // nothing to restore
	}
	if err != nil {
		return storeerr.IOf("store.Restore: query tombstone", err)
	}

	if _, err := tx.Exec(`DELETE FROM tombstone WHERE child_inode = ?`, inode); err != nil {
		return storeerr.IOf("store.Restore: delete tombstone", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO dentry (parent_inode, name, child_inode) VALUES (?, ?, ?)
		ON CONFLICT(parent_inode, name) DO UPDATE SET child_inode = excluded.child_inode
	`, parent, name, inode); err != nil {
		return storeerr.IOf("store.Restore: insert dentry", err)
	}
	if _, err := tx.Exec(`UPDATE sync_state SET deleted_at = NULL WHERE inode = ?`, inode); err != nil {
		return storeerr.IOf("store.Restore: sync_state", err)
	}

	return tx.Commit()
}

// GetDentry returns the (parent_inode, name) of the live dentry row
// pointing at inode, or NotFound if the inode has no visible parent entry
// (e.g. it is currently tombstoned).
func (s *Store) GetDentry(inode uint64) (parent uint64, name string, err error) {
	err = s.db.QueryRow(
		`SELECT parent_inode, name FROM dentry WHERE child_inode = ?`, inode,
	).Scan(&parent, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", storeerr.NotFoundf("store.GetDentry", nil)
	}
	if err != nil {
		return 0, "", storeerr.IOf("store.GetDentry", err)
	}
	return parent, name, nil
}

// HasTombstone reports whether remoteID is currently soft-deleted.
func (s *Store) HasTombstone(remoteID string) (bool, error) {
	inode, err := s.GetInodeForRemoteID(remoteID)
	if errors.Is(err, storeerr.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var exists int
	err = s.db.QueryRow(`SELECT 1 FROM tombstone WHERE child_inode = ?`, inode).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeerr.IOf("store.HasTombstone", err)
	}
	return true, nil
}

// PurgeExpiredTombstones hard-deletes rows whose deleted_at is older than
// the grace cutoff, cascading through CacheChunk, SyncState, Attributes,
// Inode. Returns the number of inodes purged.
func (s *Store) PurgeExpiredTombstones(graceDays int) (int, error) {
	cutoff := now() - int64(graceDays)*86400

	rows, err := s.db.Query(`SELECT child_inode FROM tombstone WHERE deleted_at < ?`, cutoff)
	if err != nil {
		return 0, storeerr.IOf("store.PurgeExpiredTombstones: query", err)
	}
	var expired []uint64
	for rows.Next() {
		var inode uint64
		if err := rows.Scan(&inode); err != nil {
			rows.Close()
			return 0, storeerr.IOf("store.PurgeExpiredTombstones: scan", err)
		}
		expired = append(expired, inode)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, storeerr.IOf("store.PurgeExpiredTombstones", err)
	}

	count := 0
	for _, inode := range expired {
		tx, err := s.db.Begin()
		if err != nil {
			return count, storeerr.IOf("store.PurgeExpiredTombstones: begin", err)
		}
		if err := s.deleteInodeCascade(tx, inode); err != nil {
			tx.Rollback()
			return count, err
		}
		if err := tx.Commit(); err != nil {
			return count, storeerr.IOf("store.PurgeExpiredTombstones: commit", err)
		}
		count++
	}
	return count, nil
}
