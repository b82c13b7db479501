package store

import (
	"os"

	"github.com/jstaf/driveflux/internal/storeerr"
)

// GetMissingRanges returns the sub-intervals of [start, end] not covered by
// any CacheChunk row for inode, coalesced and sorted. See spec.md §4.1's
// range-gap algorithm.
func (s *Store) GetMissingRanges(inode uint64, start, end int64) ([]Range, error) {
	rows, err := s.db.Query(`
		SELECT start_offset, end_offset FROM cache_chunk
		WHERE inode = ? AND end_offset >= ? AND start_offset <= ?
		ORDER BY start_offset
	`, inode, start, end)
	if err != nil {
		return nil, storeerr.IOf("store.GetMissingRanges", err)
	}
	defer rows.Close()

	var chunks []Range
	for rows.Next() {
		var r Range
		if err := rows.Scan(&r.Start, &r.End); err != nil {
			return nil, storeerr.IOf("store.GetMissingRanges: scan", err)
		}
		chunks = append(chunks, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeerr.IOf("store.GetMissingRanges", err)
	}

	if len(chunks) == 0 {
		return []Range{{Start: start, End: end}}, nil
	}

	var missing []Range
	pos := start
	for _, c := range chunks {
		if pos < c.Start {
			missing = append(missing, Range{Start: pos, End: c.Start - 1})
		}
		if c.End+1 > pos {
			pos = c.End + 1
		}
	}
	if pos <= end {
		missing = append(missing, Range{Start: pos, End: end})
	}
	return missing, nil
}

// AddCachedChunk records coverage of [start, end] for inode. Overlapping
// inserts are allowed and treated as equivalent to the union - we simply
// allow overlap rather than attempt an in-store merge, matching the
// "overlap is treated as covered" invariant of spec.md §3.
func (s *Store) AddCachedChunk(inode uint64, start, end int64) error {
	_, err := s.db.Exec(`
		INSERT INTO cache_chunk (inode, start_offset, end_offset) VALUES (?, ?, ?)
		ON CONFLICT(inode, start_offset) DO UPDATE SET end_offset = MAX(end_offset, excluded.end_offset)
	`, inode, start, end)
	if err != nil {
		return storeerr.IOf("store.AddCachedChunk", err)
	}
	return nil
}

// InvalidateCacheChunks drops all recorded coverage for inode. Used when the
// puller detects the remote content changed underneath a cached blob (see
// SPEC_FULL.md's resolution of the corresponding Open Question) - the blob
// bytes are left in place, but future reads will treat every offset as
// missing and re-fetch.
func (s *Store) InvalidateCacheChunks(inode uint64) error {
	_, err := s.db.Exec(`DELETE FROM cache_chunk WHERE inode = ?`, inode)
	if err != nil {
		return storeerr.IOf("store.InvalidateCacheChunks", err)
	}
	return nil
}

// ReconcileCacheChunks trims any CacheChunk row for inode whose end_offset
// exceeds the on-disk blob's actual length, guarding against a crash
// mid-write leaving a chunk row that claims coverage the blob doesn't have.
// This is the startup-reconciliation resolution of the second Open Question
// in spec.md §9.
func (s *Store) ReconcileCacheChunks(inode uint64, blobPath string) error {
	info, err := os.Stat(blobPath)
	if os.IsNotExist(err) {
		_, err := s.db.Exec(`DELETE FROM cache_chunk WHERE inode = ?`, inode)
		if err != nil {
			return storeerr.IOf("store.ReconcileCacheChunks", err)
		}
		return nil
	}
	if err != nil {
		return storeerr.IOf("store.ReconcileCacheChunks: stat", err)
	}
	size := info.Size()

	if _, err := s.db.Exec(
		`DELETE FROM cache_chunk WHERE inode = ? AND start_offset >= ?`, inode, size,
	); err != nil {
		return storeerr.IOf("store.ReconcileCacheChunks: trim starts", err)
	}
	if _, err := s.db.Exec(
		`UPDATE cache_chunk SET end_offset = ? WHERE inode = ? AND end_offset >= ?`,
		size-1, inode, size,
	); err != nil {
		return storeerr.IOf("store.ReconcileCacheChunks: trim ends", err)
	}
	return nil
}
