// Package rangecache implements the byte-range cache described in
// spec.md §4.3: per-inode sparse on-disk caching of downloaded byte ranges,
// with coalesced on-demand fetch and a prefetch policy for multimedia.
package rangecache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jstaf/driveflux/internal/remote"
	"github.com/jstaf/driveflux/internal/shortcut"
	"github.com/jstaf/driveflux/internal/store"
	"github.com/jstaf/driveflux/internal/storeerr"
)

const (
	prefetchWholeFileThreshold = 10 << 20 // 10 MiB
	prefetchHeadSize           = 1 << 20  // 1 MiB
	prefetchTailSize           = 256 << 10
	prefetchChunkSize          = 2 << 20 // 2 MiB
	prefetchSingleRangeMax     = 5 << 20 // 5 MiB
	prefetchConcurrency        = 4
)

// Cache serves reads against a per-inode on-disk blob, fetching missing
// ranges from the remote client on demand and in the background.
type Cache struct {
	dir    string
	store  *store.Store
	client remote.Client
}

// New returns a Cache rooted at dir. The directory is created if absent.
func New(dir string, st *store.Store, client remote.Client) (*Cache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, storeerr.IOf("rangecache.New: mkdir", err)
	}
	return &Cache{dir: dir, store: st, client: client}, nil
}

// blobPath returns the path of the on-disk blob for remoteID.
func (c *Cache) blobPath(remoteID string) string {
	return filepath.Join(c.dir, remoteID)
}

// WriteAt writes data into the cache blob for remoteID at offset, creating
// the blob if absent. Per spec.md §4.3 the cache, not the dispatcher, owns
// the on-disk representation of a file's bytes.
func (c *Cache) WriteAt(remoteID string, data []byte, offset int64) (int, error) {
	path := c.blobPath(remoteID)
	if err := ensureBlobExists(path); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return 0, storeerr.IOf("rangecache.WriteAt: open", err)
	}
	defer f.Close()

	n, err := f.WriteAt(data, offset)
	if err != nil {
		return n, storeerr.IOf("rangecache.WriteAt: write", err)
	}
	return n, nil
}

// Truncate resizes the cache blob for remoteID to size, creating it if
// absent. Used by setattr(size).
func (c *Cache) Truncate(remoteID string, size int64) error {
	path := c.blobPath(remoteID)
	if err := ensureBlobExists(path); err != nil {
		return err
	}
	if err := os.Truncate(path, size); err != nil {
		return storeerr.IOf("rangecache.Truncate", err)
	}
	return nil
}

// Read serves read(inode, offset, size) per the §4.3 algorithm.
func (c *Cache) Read(ctx context.Context, inode uint64, offset int64, size int) ([]byte, error) {
	attrs, err := c.store.GetAttrs(inode)
	if err != nil {
		return nil, err
	}
	remoteID, err := c.store.GetRemoteID(inode)
	if err != nil {
		return nil, err
	}
	fileSize := int64(attrs.Size)

	if shortcut.IsWorkspaceMime(attrs.MimeType) {
		_, name, err := c.store.GetDentry(inode)
		if err != nil {
			name = remoteID
		}
		doc := shortcut.Generate(remoteID, name, attrs.MimeType)
		return sliceClamped(doc, offset, size), nil
	}

	if fileSize == 0 {
		return nil, nil
	}

	path := c.blobPath(remoteID)
	if info, err := os.Stat(path); err == nil && info.Size() == fileSize {
		return readBlob(path, offset, size)
	}

	if err := c.ensureRangeCached(ctx, inode, remoteID, offset, int64(size), fileSize); err != nil {
		return nil, err
	}
	return readBlob(path, offset, size)
}

func sliceClamped(b []byte, offset int64, size int) []byte {
	if offset >= int64(len(b)) {
		return nil
	}
	end := offset + int64(size)
	if end > int64(len(b)) {
		end = int64(len(b))
	}
	return b[offset:end]
}

func readBlob(path string, offset int64, size int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, storeerr.IOf("rangecache.readBlob: open", err)
	}
	defer f.Close()

	buf := make([]byte, size)
	n, err := f.ReadAt(buf, offset)
	if err != nil && n == 0 {
		return nil, storeerr.IOf("rangecache.readBlob: read", err)
	}
	return buf[:n], nil
}

// ensureRangeCached implements ensure_range_cached: clamps the requested
// range, consults GetMissingRanges, and dispatches one parallel fetch task
// per gap.
func (c *Cache) ensureRangeCached(ctx context.Context, inode uint64, remoteID string, offset, size, fileSize int64) error {
	start := offset
	end := offset + size - 1
	if start < 0 {
		start = 0
	}
	if end > fileSize-1 {
		end = fileSize - 1
	}
	if start > end {
		return nil
	}

	missing, err := c.store.GetMissingRanges(inode, start, end)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	path := c.blobPath(remoteID)
	if err := ensureBlobExists(path); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range missing {
		r := r
		g.Go(func() error {
			return c.fetchRange(gctx, inode, remoteID, path, r.Start, r.End)
		})
	}
	if err := g.Wait(); err != nil {
		return storeerr.IOf("rangecache.ensureRangeCached", err)
	}
	return nil
}

func ensureBlobExists(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return storeerr.IOf("rangecache.ensureBlobExists", err)
	}
	return f.Close()
}

func (c *Cache) fetchRange(ctx context.Context, inode uint64, remoteID, path string, start, end int64) error {
	data, err := c.client.DownloadChunk(ctx, remoteID, start, end-start+1)
	if err != nil {
		return fmt.Errorf("download chunk [%d,%d] of %s: %w", start, end, remoteID, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open blob: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteAt(data, start); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync blob: %w", err)
	}

	return c.store.AddCachedChunk(inode, start, end)
}

// Prefetch implements the §4.3 prefetch policy, triggered on open. It is
// best-effort: failures are logged and never surface to the caller.
func (c *Cache) Prefetch(ctx context.Context, inode uint64) {
	attrs, err := c.store.GetAttrs(inode)
	if err != nil || attrs.IsDir {
		return
	}
	if !isPrefetchableMime(attrs.MimeType) {
		return
	}
	remoteID, err := c.store.GetRemoteID(inode)
	if err != nil {
		return
	}
	fileSize := int64(attrs.Size)
	if fileSize == 0 {
		return
	}

	go func() {
		var err error
		if fileSize < prefetchWholeFileThreshold {
			err = c.prefetchWholeFile(ctx, inode, remoteID, fileSize)
		} else {
			err = c.prefetchHeadTail(ctx, inode, remoteID, fileSize)
		}
		if err != nil {
			log.Warn().Err(err).Uint64("inode", inode).Str("remote_id", remoteID).
				Msg("rangecache: prefetch failed")
		}
	}()
}

func isPrefetchableMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "audio/") ||
		strings.HasPrefix(mimeType, "video/") ||
		strings.HasPrefix(mimeType, "image/")
}

func (c *Cache) prefetchWholeFile(ctx context.Context, inode uint64, remoteID string, fileSize int64) error {
	path := c.blobPath(remoteID)
	if err := ensureBlobExists(path); err != nil {
		return err
	}

	if fileSize < prefetchSingleRangeMax {
		return c.fetchRange(ctx, inode, remoteID, path, 0, fileSize-1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchConcurrency)
	for start := int64(0); start < fileSize; start += prefetchChunkSize {
		start := start
		end := start + prefetchChunkSize - 1
		if end > fileSize-1 {
			end = fileSize - 1
		}
		g.Go(func() error {
			return c.fetchRange(gctx, inode, remoteID, path, start, end)
		})
	}
	return g.Wait()
}

func (c *Cache) prefetchHeadTail(ctx context.Context, inode uint64, remoteID string, fileSize int64) error {
	path := c.blobPath(remoteID)
	if err := ensureBlobExists(path); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		end := int64(prefetchHeadSize - 1)
		if end > fileSize-1 {
			end = fileSize - 1
		}
		return c.fetchRange(gctx, inode, remoteID, path, 0, end)
	})
	g.Go(func() error {
		start := fileSize - prefetchTailSize
		if start < 0 {
			start = 0
		}
		return c.fetchRange(gctx, inode, remoteID, path, start, fileSize-1)
	})
	return g.Wait()
}
