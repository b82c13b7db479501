// Package store implements the durable metadata store described in
// spec.md §3/§4.1: the mapping between the remote object namespace and the
// POSIX tree, tombstones, dirty tracking and cache-chunk coverage.
//
// The schema is relational, kept in a single SQLite database file opened
// through database/sql, the same idiom the pack's rclone mediavfs backend
// uses for its remote-media/state tables (CREATE TABLE IF NOT EXISTS plus a
// page-token column). A connection pool with a small bounded size matches
// the "small bounded count, e.g., 5" guidance in spec.md §5.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/jstaf/driveflux/internal/storeerr"
)

// RootInode is the reserved inode number of the filesystem root.
const RootInode uint64 = 1

// Store is the durable metadata store. All exported methods are safe for
// concurrent use; the underlying *sql.DB manages its own connection pool.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the metadata store at path, installs
// the baseline schema, and runs forward-only migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, storeerr.IOf("store.Open", err)
	}
	// single-writer per table with row-level concurrency sufficient for the
	// workload (spec.md §5) - SQLite serializes writers regardless, a small
	// pool avoids "database is locked" thrash under WAL.
	db.SetMaxOpenConns(5)

	s := &Store{db: db}
	if err := s.createBaseline(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createBaseline() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS inode (
			inode INTEGER PRIMARY KEY AUTOINCREMENT,
			remote_id TEXT UNIQUE NOT NULL,
			generation INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attributes (
			inode INTEGER PRIMARY KEY REFERENCES inode(inode),
			size INTEGER NOT NULL DEFAULT 0,
			mtime INTEGER NOT NULL DEFAULT 0,
			ctime INTEGER NOT NULL DEFAULT 0,
			mode INTEGER NOT NULL DEFAULT 0,
			is_dir INTEGER NOT NULL DEFAULT 0,
			mime_type TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS dentry (
			parent_inode INTEGER NOT NULL,
			name TEXT NOT NULL,
			child_inode INTEGER NOT NULL,
			PRIMARY KEY (parent_inode, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dentry_parent ON dentry(parent_inode)`,
		`CREATE TABLE IF NOT EXISTS tombstone (
			child_inode INTEGER PRIMARY KEY,
			parent_inode INTEGER NOT NULL,
			name TEXT NOT NULL,
			deleted_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tombstone_deleted_at ON tombstone(deleted_at)`,
		`CREATE TABLE IF NOT EXISTS sync_state (
			inode INTEGER PRIMARY KEY,
			dirty INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 0,
			remote_md5 TEXT,
			deleted_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS cache_chunk (
			inode INTEGER NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL,
			PRIMARY KEY (inode, start_offset)
		)`,
		`CREATE TABLE IF NOT EXISTS sync_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return storeerr.IOf("store.createBaseline", err)
		}
	}
	return nil
}

// migrate runs forward-only, idempotent migrations guarded by introspection,
// per spec.md §4.1.
func (s *Store) migrate() error {
	if err := s.addColumnIfMissing("sync_state", "deleted_at", "INTEGER"); err != nil {
		return err
	}
	if err := s.addColumnIfMissing("sync_state", "remote_md5", "TEXT"); err != nil {
		return err
	}
	if err := s.addColumnIfMissing("sync_state", "last_synced_name", "TEXT"); err != nil {
		return err
	}
	if _, err := s.db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_sync_state_deleted_at ` +
			`ON sync_state(deleted_at) WHERE deleted_at IS NOT NULL`,
	); err != nil {
		return storeerr.IOf("store.migrate: partial index", err)
	}

	legacy, err := s.tombstonePKIsLegacy()
	if err != nil {
		return err
	}
	if legacy {
		if err := s.rebuildTombstonePK(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) addColumnIfMissing(table, column, typ string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return storeerr.IOf("store.addColumnIfMissing: introspect", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return storeerr.IOf("store.addColumnIfMissing: scan", err)
		}
		if name == column {
			return nil // already present
		}
	}
	_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typ))
	if err != nil {
		return storeerr.IOf("store.addColumnIfMissing: alter", err)
	}
	return nil
}

// tombstonePKIsLegacy detects the pre-migration schema, where TombstoneEntry
// was keyed by (parent_inode, name) instead of child_inode.
func (s *Store) tombstonePKIsLegacy() (bool, error) {
	rows, err := s.db.Query(`PRAGMA table_info(tombstone)`)
	if err != nil {
		return false, storeerr.IOf("store.tombstonePKIsLegacy", err)
	}
	defer rows.Close()
	pkCols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, storeerr.IOf("store.tombstonePKIsLegacy: scan", err)
		}
		if pk > 0 {
			pkCols[name] = true
		}
	}
	// legacy shape: two-column PK over (parent_inode, name), no PK on
	// child_inode.
	return pkCols["parent_inode"] && pkCols["name"] && !pkCols["child_inode"], nil
}

// rebuildTombstonePK rebuilds the tombstone table with child_inode as the
// sole primary key, de-duplicating by child with insert-or-ignore and
// choosing an arbitrary survivor per child, then recreates its deleted_at
// index. Idempotent and safe to re-run (tombstonePKIsLegacy will be false
// on the next call).
func (s *Store) rebuildTombstonePK() error {
	log.Info().Msg("Migrating tombstone table to child_inode primary key.")
	tx, err := s.db.Begin()
	if err != nil {
		return storeerr.IOf("store.rebuildTombstonePK: begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`ALTER TABLE tombstone RENAME TO tombstone_legacy`); err != nil {
		return storeerr.IOf("store.rebuildTombstonePK: rename", err)
	}
	if _, err := tx.Exec(`CREATE TABLE tombstone (
		child_inode INTEGER PRIMARY KEY,
		parent_inode INTEGER NOT NULL,
		name TEXT NOT NULL,
		deleted_at INTEGER NOT NULL
	)`); err != nil {
		return storeerr.IOf("store.rebuildTombstonePK: create", err)
	}
	if _, err := tx.Exec(`INSERT OR IGNORE INTO tombstone
		(child_inode, parent_inode, name, deleted_at)
		SELECT child_inode, parent_inode, name, deleted_at FROM tombstone_legacy`,
	); err != nil {
		return storeerr.IOf("store.rebuildTombstonePK: copy", err)
	}
	if _, err := tx.Exec(`DROP TABLE tombstone_legacy`); err != nil {
		return storeerr.IOf("store.rebuildTombstonePK: drop legacy", err)
	}
	if _, err := tx.Exec(
		`CREATE INDEX IF NOT EXISTS idx_tombstone_deleted_at ON tombstone(deleted_at)`,
	); err != nil {
		return storeerr.IOf("store.rebuildTombstonePK: index", err)
	}
	return tx.Commit()
}

func now() int64 { return time.Now().Unix() }

// Now returns the current Unix timestamp, in the same units as every
// mtime/ctime column. Exported for callers outside this package (the
// dispatcher) that need to stamp a mutation at the moment it happens.
func Now() int64 { return now() }
