package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ZORTEX_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zortex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
cache_capacity: 5
debounce: 300ms
watch_files: false
log_level: debug
`), 0o644))
	t.Setenv("ZORTEX_CONFIG", path)
	t.Setenv("ZORTEX_CACHE_CAPACITY", "7")
	t.Setenv("ZORTEX_VERIFY_INCREMENTAL", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 7, cfg.CacheCapacity)
	assert.Equal(t, 300*time.Millisecond, cfg.Debounce)
	assert.False(t, cfg.WatchFiles)
	assert.True(t, cfg.VerifyIncremental)
	assert.True(t, cfg.StampDone, "unset keys keep their defaults")
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestInvalidEnvIgnored(t *testing.T) {
	t.Setenv("ZORTEX_CONFIG", "")
	t.Setenv("ZORTEX_DEBOUNCE", "soon")
	t.Setenv("ZORTEX_CACHE_CAPACITY", "many")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 150*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 20, cfg.CacheCapacity)
}

func TestMissingFile(t *testing.T) {
	t.Setenv("ZORTEX_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"capacity", func(c *Config) { c.CacheCapacity = 0 }},
		{"debounce", func(c *Config) { c.Debounce = 0 }},
		{"port", func(c *Config) { c.Port = "" }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestListenAddrLoopbackWithoutKey(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "127.0.0.1:8095", cfg.ListenAddr())

	cfg.APIKey = "secret"
	assert.Equal(t, ":8095", cfg.ListenAddr())
}
