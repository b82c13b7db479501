// Command driveflux mounts a remote object-store account as a local POSIX
// filesystem. The concrete remote HTTP API and OAuth flow are outside the
// core's scope (spec.md §1, §6); this binary is the composition root that
// wires a caller-supplied remote.Client/Authenticator into the store, the
// cache, the synchronizer and the FUSE dispatcher.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/coreos/go-systemd/v22/unit"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/jstaf/driveflux/cmd/common"
	"github.com/jstaf/driveflux/internal/app"
	"github.com/jstaf/driveflux/internal/remote"
	"github.com/jstaf/driveflux/internal/status"
)

// newClient builds the remote.Client this process mounts against. The core
// never depends on a concrete provider (spec.md §1) - a real deployment
// replaces this var at build time with one that speaks to an actual
// account, the same extension point the teacher filled in with a hardcoded
// graph.Authenticate/fs.NewFilesystem pair.
var newClient = func(cfg *common.Config) (remote.Client, remote.Authenticator, error) {
	return nil, nil, errors.New("no remote.Client wired: build driveflux with a " +
		"concrete backend registered in cmd/driveflux.newClient")
}

func usage() {
	fmt.Printf(`driveflux - mounts a remote object-store account as a filesystem.

This program mounts a cloud drive account at the specified mountpoint. This
is not a sync client - files are fetched on demand and cached locally. Only
files you actually use are downloaded.

Usage: driveflux [options] <mountpoint>

Valid options:
`)
	flag.PrintDefaults()
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	configPath := flag.StringP("config-file", "f", common.DefaultConfigPath(),
		"A YAML-formatted configuration file.")
	logLevel := flag.StringP("log", "l", "",
		"Set logging level/verbosity. One of: fatal, error, warn, info, debug, trace")
	cacheDir := flag.StringP("cache-dir", "c", "",
		"Change the default cache directory. Created if it does not already exist.")
	wipeCache := flag.BoolP("wipe-cache", "w", false,
		"Delete the existing cache directory and then exit.")
	versionFlag := flag.BoolP("version", "v", false, "Display program version.")
	debugOn := flag.BoolP("debug", "d", false,
		"Enable FUSE debug logging of kernel/filesystem communication.")
	help := flag.BoolP("help", "h", false, "Displays this help message.")
	flag.Usage = usage
	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}
	if *versionFlag {
		fmt.Println("driveflux", common.Version())
		os.Exit(0)
	}

	config := common.LoadConfig(*configPath)
	if *cacheDir != "" {
		config.CacheDir = *cacheDir
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	zerolog.SetGlobalLevel(common.StringToLevel(config.LogLevel))

	if *wipeCache {
		log.Info().Str("path", config.CacheDir).Msg("Removing cache.")
		os.RemoveAll(config.CacheDir)
		os.Exit(0)
	}

	if len(flag.Args()) == 0 {
		flag.Usage()
		fmt.Fprintf(os.Stderr, "\nNo mountpoint provided, exiting.\n")
		os.Exit(1)
	}
	mountpoint := flag.Arg(0)
	st, err := os.Stat(mountpoint)
	if err != nil || !st.IsDir() {
		log.Fatal().Str("mountpoint", mountpoint).Msg("Mountpoint did not exist or was not a directory.")
	}
	if entries, _ := os.ReadDir(mountpoint); len(entries) > 0 {
		log.Fatal().Str("mountpoint", mountpoint).Msg("Mountpoint must be empty.")
	}

	// derive a per-mountpoint cache subdirectory, the same systemd-escaped
	// naming scheme the teacher uses for its cache path
	absMountPath, _ := filepath.Abs(mountpoint)
	config.CacheDir = filepath.Join(config.CacheDir, unit.UnitNamePathEscape(absMountPath))
	config.StorePath = filepath.Join(config.CacheDir, "metadata.db")
	os.MkdirAll(config.CacheDir, 0700)

	client, _, err := newClient(config)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not construct a remote.Client.")
	}

	log.Info().Msgf("driveflux %s", common.Version())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, app.Config{
		StorePath:        config.StorePath,
		CacheDir:         config.CacheDir,
		TombstoneGrace:   config.TombstoneGrace,
		PullerInterval:   config.PullerInterval,
		PullerMaxBackoff: config.PullerMaxBackoff,
		UploadInterval:   config.UploadInterval,
		UploadMaxBackoff: config.UploadMaxBackoff,
	}, client, status.NopSink{})
	if err != nil {
		log.Fatal().Err(err).Msg("Could not initialize filesystem state.")
	}
	defer a.Close()

	a.Start(ctx)

	server, err := a.Mount(mountpoint, *debugOn)
	if err != nil {
		log.Fatal().Err(err).Msgf("Mount failed. Is the mountpoint already in use? "+
			"(Try running \"fusermount3 -uz %s\")\n", mountpoint)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go UnmountHandler(sigChan, server)

	log.Info().
		Str("cacheDir", config.CacheDir).
		Str("mountpoint", absMountPath).
		Msg("Serving filesystem.")
	server.Serve()
}
