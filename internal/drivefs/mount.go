package drivefs

import (
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// ttl is the TTL spec.md §4.2 requires on every lookup/getattr response.
const ttl = time.Second

// Mount starts a go-fuse server projecting fsys at mountpoint. The process-
// wide EntryTimeout/AttrTimeout in Options apply the §4.2 TTL uniformly,
// rather than each operation setting it by hand.
func Mount(mountpoint string, fsys *Filesystem, debug bool) (*fuse.Server, error) {
	opts := &fs.Options{
		EntryTimeout: &ttl,
		AttrTimeout:  &ttl,
		MountOptions: fuse.MountOptions{
			Name:          "driveflux",
			FsName:        "driveflux",
			DisableXAttrs: true,
			MaxBackground: 1024,
			Debug:         debug,
		},
	}
	return fs.Mount(mountpoint, Root(fsys), opts)
}
