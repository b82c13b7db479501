package common

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/rs/zerolog/log"
	yaml "gopkg.in/yaml.v3"
)

// Config is driveflux's on-disk configuration. It carries only the ambient
// concerns a mount needs (store/cache locations, sync cadence, logging);
// credentials and the remote API shape are supplied by the caller's own
// Authenticator/RemoteDriveClient wiring (spec.md §6), not by this file.
type Config struct {
	CacheDir         string        `yaml:"cacheDir"`
	StorePath        string        `yaml:"storePath"`
	LogLevel         string        `yaml:"log"`
	TombstoneGrace   int           `yaml:"tombstoneGraceDays"`
	PullerInterval   time.Duration `yaml:"pullerInterval"`
	PullerMaxBackoff time.Duration `yaml:"pullerMaxBackoff"`
	UploadInterval   time.Duration `yaml:"uploadInterval"`
	UploadMaxBackoff time.Duration `yaml:"uploadMaxBackoff"`
}

// DefaultConfigPath returns the default config location for driveflux.
func DefaultConfigPath() string {
	confDir, err := os.UserConfigDir()
	if err != nil {
		log.Error().Err(err).Msg("Could not determine configuration directory.")
	}
	return filepath.Join(confDir, "driveflux/config.yml")
}

func defaultConfig() Config {
	xdgCacheDir, _ := os.UserCacheDir()
	cacheDir := filepath.Join(xdgCacheDir, "driveflux")
	return Config{
		CacheDir:         cacheDir,
		StorePath:        filepath.Join(cacheDir, "metadata.db"),
		LogLevel:         "debug",
		TombstoneGrace:   7,
		PullerInterval:   60 * time.Second,
		PullerMaxBackoff: 300 * time.Second,
		UploadInterval:   30 * time.Second,
		UploadMaxBackoff: 300 * time.Second,
	}
}

// LoadConfig is the primary way of loading driveflux's config.
func LoadConfig(path string) *Config {
	defaults := defaultConfig()

	conf, err := ioutil.ReadFile(path)
	if err != nil {
		log.Warn().
			Err(err).
			Str("path", path).
			Msg("Configuration file not found, using defaults.")
		return &defaults
	}
	config := &Config{}
	if err = yaml.Unmarshal(conf, config); err != nil {
		log.Error().
			Err(err).
			Str("path", path).
			Msg("Could not parse configuration file, using defaults.")
	}
	if err = mergo.Merge(config, defaults); err != nil {
		log.Error().
			Err(err).
			Str("path", path).
			Msg("Could not merge configuration file with defaults, using defaults only.")
	}

	config.CacheDir = expandHome(config.CacheDir)
	config.StorePath = expandHome(config.StorePath)
	return config
}

// expandHome replaces a leading "~" with the user's home directory, the
// same shorthand onedriver's config accepted via its ui package.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// WriteConfig writes c to path.
func (c Config) WriteConfig(path string) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		log.Error().Err(err).Msg("Could not marshal config!")
		return err
	}
	os.MkdirAll(filepath.Dir(path), 0700)
	err = ioutil.WriteFile(path, out, 0600)
	if err != nil {
		log.Error().Err(err).Msg("Could not write config to disk.")
	}
	return err
}
