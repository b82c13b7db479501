package main

import (
	"os"
	"strings"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/rs/zerolog/log"
)

// UnmountHandler blocks until a signal arrives on sig, then unmounts server
// and exits. Run as a goroutine, the way the teacher's fs.UnmountHandler is.
func UnmountHandler(sig <-chan os.Signal, server *fuse.Server) {
	s := <-sig
	log.Info().Str("signal", strings.ToUpper(s.String())).
		Msg("Signal received, unmounting filesystem.")

	if err := server.Unmount(); err != nil {
		log.Error().Err(err).Msg("Failed to unmount filesystem cleanly! " +
			"Run \"fusermount3 -uz /MOUNTPOINT/GOES/HERE\" to unmount.")
	}

	os.Exit(128)
}
