package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from various sources
type Loader struct {
	// ConfigFile, when set, replaces the global and local config lookup
	ConfigFile string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadForCommand loads configuration for any fuser command
func (l *Loader) LoadForCommand(cmd *cobra.Command) (*Config, error) {
	l.setupViperDefaults()
	l.bindEnv()

	if l.ConfigFile != "" {
		viper.SetConfigFile(l.ConfigFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		l.loadGlobalConfig()
		l.loadLocalConfig()
	}

	l.bindCommandFlags(cmd)

	return Load()
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("manifest", DefaultManifest)
	viper.SetDefault("listen", DefaultListen)
	viper.SetDefault("cache_dir", DefaultCacheDir)
	viper.SetDefault("history", DefaultHistory)
	viper.SetDefault("history_limit", DefaultHistoryLimit)
	viper.SetDefault("start_timeout", DefaultStartTimeout)
	viper.SetDefault("verbose", DefaultVerbose)
}

// bindEnv exposes every key as FUSER_<KEY>
func (l *Loader) bindEnv() {
	viper.SetEnvPrefix("fuser")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadGlobalConfig loads global configuration from the user config directory
func (l *Loader) loadGlobalConfig() {
	configDir, err := os.UserConfigDir()
	if err != nil || configDir == "" {
		return
	}

	globalDir := filepath.Join(configDir, "fuser")

	for _, ext := range configExts {
		globalPath := filepath.Join(globalDir, "config."+ext)

		if _, err := os.Stat(globalPath); err == nil {
			viper.SetConfigFile(globalPath)

			if err := viper.ReadInConfig(); err == nil {
				break
			}
		}
	}
}

// loadLocalConfig loads local configuration from the working directory or a parent
func (l *Loader) loadLocalConfig() {
	cwd, err := os.Getwd()
	if err != nil {
		return // silently ignore, config.Load() will handle validation
	}

	localPath := FindLocalConfig(cwd)
	if localPath != "" {
		viper.SetConfigFile(localPath)
		_ = viper.MergeInConfig()
	}
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	flags := map[string]string{
		"manifest":      "manifest",
		"listen":        "listen",
		"cache_dir":     "cache-dir",
		"start_timeout": "start-timeout",
		"verbose":       "verbose",
	}

	for key, name := range flags {
		if f := cmd.Flags().Lookup(name); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}

	// --no-history inverts the history key
	if f := cmd.Flags().Lookup("no-history"); f != nil && f.Changed {
		viper.Set("history", false)
	}
}
