package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setupViper  func()
		wantConfig  *Config
		wantErr     bool
		errContains string
	}{
		{
			name: "load with all defaults",
			setupViper: func() {
				viper.Reset()
				viper.SetDefault("manifest", DefaultManifest)
				viper.SetDefault("listen", DefaultListen)
				viper.SetDefault("cache_dir", DefaultCacheDir)
				viper.SetDefault("history", DefaultHistory)
				viper.SetDefault("start_timeout", DefaultStartTimeout)
				viper.SetDefault("verbose", DefaultVerbose)
			},
			wantConfig: &Config{
				Manifest: func() string {
					abs, _ := filepath.Abs(DefaultManifest)
					return abs
				}(),
				Listen: DefaultListen,
				CacheDir: func() string {
					abs, _ := filepath.Abs(DefaultCacheDir)
					return abs
				}(),
				History:      true,
				HistoryLimit: DefaultHistoryLimit,
				StartTimeout: DefaultStartTimeout,
				Verbose:      false,
			},
			wantErr: false,
		},
		{
			name: "load with custom values",
			setupViper: func() {
				viper.Reset()
				viper.Set("manifest", "web/bundles.toml")
				viper.Set("listen", ":8080")
				viper.Set("cache_dir", "/tmp/fuser-cache")
				viper.Set("history", false)
				viper.Set("history_limit", 25)
				viper.Set("start_timeout", "5s")
				viper.Set("verbose", true)
			},
			wantConfig: &Config{
				Manifest: func() string {
					abs, _ := filepath.Abs("web/bundles.toml")
					return abs
				}(),
				Listen:       ":8080",
				CacheDir:     "/tmp/fuser-cache",
				History:      false,
				HistoryLimit: 25,
				StartTimeout: 5 * time.Second,
				Verbose:      true,
			},
			wantErr: false,
		},
		{
			name: "empty values get defaults",
			setupViper: func() {
				viper.Reset()
				viper.Set("manifest", "")
				viper.Set("listen", "")
			},
			wantConfig: &Config{
				Manifest: func() string {
					abs, _ := filepath.Abs(DefaultManifest)
					return abs
				}(),
				Listen: DefaultListen,
				CacheDir: func() string {
					abs, _ := filepath.Abs(DefaultCacheDir)
					return abs
				}(),
				HistoryLimit: DefaultHistoryLimit,
				StartTimeout: DefaultStartTimeout,
			},
			wantErr: false,
		},
		{
			name: "negative history limit",
			setupViper: func() {
				viper.Reset()
				viper.Set("history_limit", -3)
			},
			wantErr:     true,
			errContains: "invalid history limit",
		},
		{
			name: "negative start timeout",
			setupViper: func() {
				viper.Reset()
				viper.Set("start_timeout", "-1s")
			},
			wantErr:     true,
			errContains: "invalid start timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupViper()

			cfg, err := Load()

			if tt.wantErr {
				require.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantConfig, cfg)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{
		Manifest:     "fuser.toml",
		CacheDir:     ".fuser-cache",
		StartTimeout: time.Second,
	}

	require.NoError(t, cfg.Validate())
	assert.True(t, filepath.IsAbs(cfg.Manifest), "Manifest should be resolved to absolute path")
	assert.True(t, filepath.IsAbs(cfg.CacheDir), "Cache dir should be resolved to absolute path")
}
