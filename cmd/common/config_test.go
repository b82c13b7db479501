package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, "cacheDir: ~/somewhere/else\nlog: warn\n")
	conf := LoadConfig(path)

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "somewhere/else"), conf.CacheDir)
	assert.Equal(t, "warn", conf.LogLevel)
	// unset fields still come from the defaults
	assert.Equal(t, 7, conf.TombstoneGrace)
	assert.Equal(t, 60*time.Second, conf.PullerInterval)
}

func TestConfigMerge(t *testing.T) {
	path := writeConfigFile(t, "log: debug\ncacheDir: /some/directory\n")
	conf := LoadConfig(path)

	assert.Equal(t, "debug", conf.LogLevel)
	assert.Equal(t, "/some/directory", conf.CacheDir)
}

func TestLoadNonexistentConfig(t *testing.T) {
	conf := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yml"))

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".cache/driveflux"), conf.CacheDir)
	assert.Equal(t, "debug", conf.LogLevel)
	assert.Equal(t, 30*time.Second, conf.UploadInterval)
}
