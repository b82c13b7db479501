// Package app is the composition root: it wires internal/store,
// internal/rangecache, internal/sync and internal/drivefs into one running
// mount, the way cmd/onedriver/main.go does for the teacher's Filesystem.
package app

import (
	"context"
	"path/filepath"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/rs/zerolog/log"

	"github.com/jstaf/driveflux/internal/drivefs"
	"github.com/jstaf/driveflux/internal/rangecache"
	"github.com/jstaf/driveflux/internal/remote"
	"github.com/jstaf/driveflux/internal/status"
	"github.com/jstaf/driveflux/internal/store"
	"github.com/jstaf/driveflux/internal/sync"
)

// Config is the subset of cmd/common.Config the app needs, kept decoupled
// from that package so internal/app never imports cmd/.
type Config struct {
	StorePath        string
	CacheDir         string
	TombstoneGrace   int
	PullerInterval   time.Duration
	PullerMaxBackoff time.Duration
	UploadInterval   time.Duration
	UploadMaxBackoff time.Duration
}

// App holds every long-lived component of a single mount.
type App struct {
	Store    *store.Store
	Cache    *rangecache.Cache
	Puller   *sync.Puller
	Uploader *sync.Uploader
	Fsys     *drivefs.Filesystem
}

// New opens the store at cfg.StorePath, bootstraps it against client if
// empty, reconciles cache-chunk coverage against the on-disk blobs, and
// wires the puller/uploader/dispatcher together. It does not start any
// goroutine or mount anything.
func New(ctx context.Context, cfg Config, client remote.Client, sink status.Sink) (*App, error) {
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, err
	}

	empty, err := st.IsEmpty()
	if err != nil {
		st.Close()
		return nil, err
	}
	if empty {
		if err := sync.Bootstrap(ctx, st, client); err != nil {
			st.Close()
			return nil, err
		}
	}

	cache, err := rangecache.New(cfg.CacheDir, st, client)
	if err != nil {
		st.Close()
		return nil, err
	}
	if err := reconcileCacheChunks(st, cfg.CacheDir); err != nil {
		st.Close()
		return nil, err
	}

	puller := sync.NewPuller(st, client, sync.PullerConfig{
		Interval:       cfg.PullerInterval,
		MaxBackoff:     cfg.PullerMaxBackoff,
		TombstoneGrace: cfg.TombstoneGrace,
	})
	uploader := sync.NewUploader(st, client, cfg.CacheDir, sync.UploaderConfig{
		Interval:   cfg.UploadInterval,
		MaxBackoff: cfg.UploadMaxBackoff,
	})
	uploader.SetSink(sink)

	return &App{
		Store:    st,
		Cache:    cache,
		Puller:   puller,
		Uploader: uploader,
		Fsys:     &drivefs.Filesystem{Store: st, Cache: cache},
	}, nil
}

// reconcileCacheChunks trims any CacheChunk row left pointing past the end
// of its on-disk blob, guarding against a crash mid-write (SPEC_FULL.md's
// resolution of the CacheChunk/blob-length reconciliation Open Question).
func reconcileCacheChunks(st *store.Store, cacheDir string) error {
	files, err := st.ListFileInodes()
	if err != nil {
		return err
	}
	for _, f := range files {
		blobPath := filepath.Join(cacheDir, f.RemoteID)
		if err := st.ReconcileCacheChunks(f.Inode, blobPath); err != nil {
			log.Warn().Err(err).Uint64("inode", f.Inode).Str("remote_id", f.RemoteID).
				Msg("app: cache-chunk reconciliation failed")
		}
	}
	return nil
}

// Start runs the puller and uploader loops until ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	go a.Puller.Run(ctx)
	go a.Uploader.Run(ctx)
}

// Mount projects the app at mountpoint via a kernel FUSE server.
func (a *App) Mount(mountpoint string, debug bool) (*fuse.Server, error) {
	return drivefs.Mount(mountpoint, a.Fsys, debug)
}

// Close releases the metadata store's handle.
func (a *App) Close() error {
	return a.Store.Close()
}
