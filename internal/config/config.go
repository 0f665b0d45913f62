package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	// Auth; empty disables bearer checks.
	APIKey string `yaml:"api_key"`

	// Notes
	NotesDir    string `yaml:"notes_dir"`
	ScanWorkers int    `yaml:"scan_workers"`

	// File cache
	CacheCapacity int           `yaml:"cache_capacity"`
	WatchFiles    bool          `yaml:"watch_files"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Live buffers
	Debounce          time.Duration `yaml:"debounce"`
	VerifyIncremental bool          `yaml:"verify_incremental"`
	StampDone         bool          `yaml:"stamp_done"`

	// HTTP limits
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	LogLevel string `yaml:"log_level"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:            "8095",
		NotesDir:        ".",
		ScanWorkers:     4,
		CacheCapacity:   20,
		WatchFiles:      true,
		SweepInterval:   5 * time.Minute,
		Debounce:        150 * time.Millisecond,
		StampDone:       true,
		MaxBodyBytes:    4 << 20, // 4MB
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
	}
}

// Load starts from Defaults, applies the YAML file named by ZORTEX_CONFIG if
// set, then environment variables.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("ZORTEX_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.Port = envOr("ZORTEX_PORT", cfg.Port)
	cfg.APIKey = envOr("ZORTEX_API_KEY", cfg.APIKey)
	cfg.NotesDir = envOr("ZORTEX_NOTES_DIR", cfg.NotesDir)
	cfg.ScanWorkers = envInt("ZORTEX_SCAN_WORKERS", cfg.ScanWorkers)
	cfg.CacheCapacity = envInt("ZORTEX_CACHE_CAPACITY", cfg.CacheCapacity)
	cfg.WatchFiles = envBool("ZORTEX_WATCH_FILES", cfg.WatchFiles)
	cfg.SweepInterval = envDuration("ZORTEX_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.Debounce = envDuration("ZORTEX_DEBOUNCE", cfg.Debounce)
	cfg.VerifyIncremental = envBool("ZORTEX_VERIFY_INCREMENTAL", cfg.VerifyIncremental)
	cfg.StampDone = envBool("ZORTEX_STAMP_DONE", cfg.StampDone)
	cfg.MaxBodyBytes = envInt64("ZORTEX_MAX_BODY_BYTES", cfg.MaxBodyBytes)
	cfg.ShutdownTimeout = envDuration("ZORTEX_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.LogLevel = envOr("ZORTEX_LOG_LEVEL", cfg.LogLevel)

	if cfg.ScanWorkers <= 0 {
		cfg.ScanWorkers = 4
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 4 << 20
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("cache capacity must be positive, got %d", c.CacheCapacity)
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive, got %s", c.Debounce)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// ListenAddr is the HTTP listen address. Without an API key the daemon only
// listens on loopback.
func (c Config) ListenAddr() string {
	if c.APIKey == "" {
		return "127.0.0.1:" + c.Port
	}
	return ":" + c.Port
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
