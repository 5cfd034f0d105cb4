package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultManifest     = "fuser.toml"
	DefaultListen       = "127.0.0.1:9011"
	DefaultCacheDir     = ".fuser-cache"
	DefaultHistory      = true
	DefaultHistoryLimit = 200
	DefaultVerbose      = false
	DefaultStartTimeout = 2 * time.Second
)

// Holds the configuration options for fuser
type Config struct {
	// Path to the bundle manifest
	Manifest string

	// Address the asset server listens on
	Listen string

	// Directory holding the build history database
	CacheDir string

	// Record every build in the history database
	History bool

	// Builds kept per bundle in the history database
	HistoryLimit int

	// How long a file watcher may take to start
	StartTimeout time.Duration

	// Enable verbose output
	Verbose bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Manifest:     viper.GetString("manifest"),
		Listen:       viper.GetString("listen"),
		CacheDir:     viper.GetString("cache_dir"),
		History:      viper.GetBool("history"),
		HistoryLimit: viper.GetInt("history_limit"),
		StartTimeout: viper.GetDuration("start_timeout"),
		Verbose:      viper.GetBool("verbose"),
	}

	// Apply defaults if not set
	if cfg.Manifest == "" {
		cfg.Manifest = DefaultManifest
	}

	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}

	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir
	}

	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}

	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	abs, err := filepath.Abs(c.Manifest)
	if err != nil {
		return fmt.Errorf("invalid manifest path: %v", err)
	}

	c.Manifest = abs

	abs, err = filepath.Abs(c.CacheDir)
	if err != nil {
		return fmt.Errorf("invalid cache directory: %v", err)
	}

	c.CacheDir = abs

	if c.HistoryLimit < 0 {
		return fmt.Errorf("invalid history limit: %d", c.HistoryLimit)
	}

	if c.StartTimeout < 0 {
		return fmt.Errorf("invalid start timeout: %s", c.StartTimeout)
	}

	return nil
}
