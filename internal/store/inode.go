package store

import (
	"database/sql"
	"errors"

	"github.com/jstaf/driveflux/internal/remote"
	"github.com/jstaf/driveflux/internal/storeerr"
)

// EnsureRoot idempotently installs inode 1 with root attributes.
func (s *Store) EnsureRoot() error {
	tx, err := s.db.Begin()
	if err != nil {
		return storeerr.IOf("store.EnsureRoot: begin", err)
	}
	defer tx.Rollback()

	var inode uint64
	err = tx.QueryRow(`SELECT inode FROM inode WHERE remote_id = 'root'`).Scan(&inode)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.Exec(
			`INSERT INTO inode (inode, remote_id, generation, created_at) VALUES (?, 'root', 0, ?)`,
			RootInode, now(),
		); err != nil {
			return storeerr.IOf("store.EnsureRoot: insert inode", err)
		}
	case err != nil:
		return storeerr.IOf("store.EnsureRoot: query", err)
	}

	var attrExists bool
	err = tx.QueryRow(`SELECT 1 FROM attributes WHERE inode = ?`, RootInode).Scan(&attrExists)
	if errors.Is(err, sql.ErrNoRows) {
		n := now()
		if _, err := tx.Exec(
			`INSERT INTO attributes (inode, size, mtime, ctime, mode, is_dir, mime_type)
			 VALUES (?, 4096, ?, ?, ?, 1, ?)`,
			RootInode, n, n, 0o755, remote.FolderMimeType,
		); err != nil {
			return storeerr.IOf("store.EnsureRoot: insert attrs", err)
		}
	} else if err != nil {
		return storeerr.IOf("store.EnsureRoot: query attrs", err)
	}

	return tx.Commit()
}

// Lookup returns the child inode under parent with the given name, or a
// NotFound error.
func (s *Store) Lookup(parent uint64, name string) (uint64, error) {
	var child uint64
	err := s.db.QueryRow(
		`SELECT child_inode FROM dentry WHERE parent_inode = ? AND name = ?`,
		parent, name,
	).Scan(&child)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storeerr.NotFoundf("store.Lookup", nil)
	}
	if err != nil {
		return 0, storeerr.IOf("store.Lookup", err)
	}
	return child, nil
}

// GetAttrs returns Attributes for inode. For the root inode, synthesizes
// defaults if absent (cold boot, before bootstrap has run).
func (s *Store) GetAttrs(inode uint64) (Attributes, error) {
	var a Attributes
	var isDir int
	var mime sql.NullString
	err := s.db.QueryRow(
		`SELECT inode, size, mtime, ctime, mode, is_dir, mime_type FROM attributes WHERE inode = ?`,
		inode,
	).Scan(&a.Inode, &a.Size, &a.Mtime, &a.Ctime, &a.Mode, &isDir, &mime)
	if errors.Is(err, sql.ErrNoRows) {
		if inode == RootInode {
			n := now()
			return Attributes{
				Inode: RootInode, Size: 4096, Mtime: n, Ctime: n,
				Mode: 0o755, IsDir: true, MimeType: remote.FolderMimeType,
			}, nil
		}
		return Attributes{}, storeerr.NotFoundf("store.GetAttrs", nil)
	}
	if err != nil {
		return Attributes{}, storeerr.IOf("store.GetAttrs", err)
	}
	a.IsDir = isDir != 0
	a.MimeType = mime.String
	return a, nil
}

// ListChildren returns (inode, name, is_dir) for the children of parent,
// sorted by name.
func (s *Store) ListChildren(parent uint64) ([]ChildEntry, error) {
	rows, err := s.db.Query(
		`SELECT d.child_inode, d.name, a.is_dir
		 FROM dentry d JOIN attributes a ON a.inode = d.child_inode
		 WHERE d.parent_inode = ? ORDER BY d.name`,
		parent,
	)
	if err != nil {
		return nil, storeerr.IOf("store.ListChildren", err)
	}
	defer rows.Close()

	var out []ChildEntry
	for rows.Next() {
		var e ChildEntry
		var isDir int
		if err := rows.Scan(&e.Inode, &e.Name, &isDir); err != nil {
			return nil, storeerr.IOf("store.ListChildren: scan", err)
		}
		e.IsDir = isDir != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListChildrenExtended is like ListChildren, plus mime_type and remote_id.
func (s *Store) ListChildrenExtended(parent uint64) ([]ChildEntryExtended, error) {
	rows, err := s.db.Query(
		`SELECT d.child_inode, d.name, a.is_dir, a.mime_type, i.remote_id
		 FROM dentry d
		 JOIN attributes a ON a.inode = d.child_inode
		 JOIN inode i ON i.inode = d.child_inode
		 WHERE d.parent_inode = ? ORDER BY d.name`,
		parent,
	)
	if err != nil {
		return nil, storeerr.IOf("store.ListChildrenExtended", err)
	}
	defer rows.Close()

	var out []ChildEntryExtended
	for rows.Next() {
		var e ChildEntryExtended
		var isDir int
		var mime sql.NullString
		if err := rows.Scan(&e.Inode, &e.Name, &isDir, &mime, &e.RemoteID); err != nil {
			return nil, storeerr.IOf("store.ListChildrenExtended: scan", err)
		}
		e.IsDir = isDir != 0
		e.MimeType = mime.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListFileInodes returns the (inode, remote_id) pair of every non-directory
// inode, the set a startup cache-chunk reconciliation pass walks (see
// ReconcileCacheChunks).
func (s *Store) ListFileInodes() ([]InodeRef, error) {
	rows, err := s.db.Query(
		`SELECT i.inode, i.remote_id FROM inode i
		 JOIN attributes a ON a.inode = i.inode
		 WHERE a.is_dir = 0`,
	)
	if err != nil {
		return nil, storeerr.IOf("store.ListFileInodes", err)
	}
	defer rows.Close()

	var out []InodeRef
	for rows.Next() {
		var r InodeRef
		if err := rows.Scan(&r.Inode, &r.RemoteID); err != nil {
			return nil, storeerr.IOf("store.ListFileInodes: scan", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountChildren returns the number of children of parent.
func (s *Store) CountChildren(parent uint64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM dentry WHERE parent_inode = ?`, parent).Scan(&n)
	if err != nil {
		return 0, storeerr.IOf("store.CountChildren", err)
	}
	return n, nil
}

// GetOrCreateInode returns the existing inode for remoteID if present, else
// allocates a new one atomically.
func (s *Store) GetOrCreateInode(remoteID string) (uint64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, storeerr.IOf("store.GetOrCreateInode: begin", err)
	}
	defer tx.Rollback()

	var inode uint64
	err = tx.QueryRow(`SELECT inode FROM inode WHERE remote_id = ?`, remoteID).Scan(&inode)
	if err == nil {
		return inode, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, storeerr.IOf("store.GetOrCreateInode: query", err)
	}

	res, err := tx.Exec(
		`INSERT INTO inode (remote_id, generation, created_at) VALUES (?, 0, ?)`,
		remoteID, now(),
	)
	if err != nil {
		return 0, storeerr.IOf("store.GetOrCreateInode: insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeerr.IOf("store.GetOrCreateInode: last insert id", err)
	}
	return uint64(id), tx.Commit()
}

// GetInodeForRemoteID returns the inode mapped to remoteID, or NotFound.
func (s *Store) GetInodeForRemoteID(remoteID string) (uint64, error) {
	var inode uint64
	err := s.db.QueryRow(`SELECT inode FROM inode WHERE remote_id = ?`, remoteID).Scan(&inode)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storeerr.NotFoundf("store.GetInodeForRemoteID", nil)
	}
	if err != nil {
		return 0, storeerr.IOf("store.GetInodeForRemoteID", err)
	}
	return inode, nil
}

// GetRemoteID returns the remote_id for inode.
func (s *Store) GetRemoteID(inode uint64) (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT remote_id FROM inode WHERE inode = ?`, inode).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storeerr.NotFoundf("store.GetRemoteID", nil)
	}
	if err != nil {
		return "", storeerr.IOf("store.GetRemoteID", err)
	}
	return id, nil
}

// SetRemoteID updates the remote_id of inode, used when the uploader
// resolves a temp_ placeholder id to a real one.
func (s *Store) SetRemoteID(inode uint64, remoteID string) error {
	_, err := s.db.Exec(`UPDATE inode SET remote_id = ? WHERE inode = ?`, remoteID, inode)
	if err != nil {
		return storeerr.IOf("store.SetRemoteID", err)
	}
	return nil
}

// UpsertAttrs is a full-row upsert of Attributes. ctime mirrors mtime on
// create.
func (s *Store) UpsertAttrs(inode uint64, size uint64, mtime int64, mode uint32, isDir bool, mimeType string) error {
	var isDirInt int
	if isDir {
		isDirInt = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO attributes (inode, size, mtime, ctime, mode, is_dir, mime_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(inode) DO UPDATE SET
			size = excluded.size,
			mtime = excluded.mtime,
			mode = excluded.mode,
			is_dir = excluded.is_dir,
			mime_type = excluded.mime_type
	`, inode, size, mtime, mtime, mode, isDirInt, mimeType)
	if err != nil {
		return storeerr.IOf("store.UpsertAttrs", err)
	}
	return nil
}

// UpdateSize updates only the size and mtime columns of Attributes, used by
// write/setattr.
func (s *Store) UpdateSize(inode uint64, size uint64, mtime int64) error {
	_, err := s.db.Exec(`UPDATE attributes SET size = ?, mtime = ? WHERE inode = ?`, size, mtime, inode)
	if err != nil {
		return storeerr.IOf("store.UpdateSize", err)
	}
	return nil
}

// UpdateMode updates the mode column of Attributes.
func (s *Store) UpdateMode(inode uint64, mode uint32) error {
	_, err := s.db.Exec(`UPDATE attributes SET mode = ? WHERE inode = ?`, mode, inode)
	if err != nil {
		return storeerr.IOf("store.UpdateMode", err)
	}
	return nil
}

// UpdateMtime updates the mtime column of Attributes.
func (s *Store) UpdateMtime(inode uint64, mtime int64) error {
	_, err := s.db.Exec(`UPDATE attributes SET mtime = ? WHERE inode = ?`, mtime, inode)
	if err != nil {
		return storeerr.IOf("store.UpdateMtime", err)
	}
	return nil
}

// deleteInodeCascade hard-deletes the rows for inode in cache_chunk,
// sync_state, attributes, tombstone and inode. dentry rows are not touched.
// Used by PurgeExpiredTombstones.
func (s *Store) deleteInodeCascade(tx *sql.Tx, inode uint64) error {
	stmts := []string{
		`DELETE FROM cache_chunk WHERE inode = ?`,
		`DELETE FROM sync_state WHERE inode = ?`,
		`DELETE FROM attributes WHERE inode = ?`,
		`DELETE FROM tombstone WHERE child_inode = ?`,
		`DELETE FROM inode WHERE inode = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, inode); err != nil {
			return storeerr.IOf("store.deleteInodeCascade", err)
		}
	}
	return nil
}
