package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/fuser/internal/cache"
	"github.com/Norgate-AV/fuser/internal/codes"
	"github.com/Norgate-AV/fuser/internal/config"
	"github.com/Norgate-AV/fuser/internal/fuser"
)

// Version is set at build time with -ldflags "-X github.com/Norgate-AV/fuser/cmd.Version=..."
var Version = "dev"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "fuser",
	Short: "JavaScript bundle concatenator and asset server",
	Long: `Concatenate JavaScript sources into combined files, keep them current
while the sources change, and serve them with their content hash and
position map.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		code := codes.FromError(err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		if code != codes.General {
			fmt.Fprintf(os.Stderr, "(exit code %d: %s)\n", code, codes.GetErrorMessage(code))
		}

		os.Exit(code)
	}
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default .fuser.{yml,yaml,json,toml} in this or a parent directory)")
	rootCmd.PersistentFlags().StringP("manifest", "m", "", "Bundle manifest (default fuser.toml)")
	rootCmd.PersistentFlags().String("cache-dir", "", "Directory for the build history database")
	rootCmd.PersistentFlags().Duration("start-timeout", 0, "How long a file watcher may take to start (default 2s)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().Bool("no-history", false, "Do not record builds in the history database")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(locateCmd)
}

// session holds what a command needs once configuration is loaded
type session struct {
	cfg      *config.Config
	manifest *config.Manifest
	history  *cache.Cache // nil when history is disabled or unavailable
	log      io.Writer
}

// loadSession loads configuration and the bundle manifest for cmd. The
// history database is opened when enabled; failing to open it only warns.
func loadSession(cmd *cobra.Command) (*session, error) {
	loader := config.NewLoader()
	loader.ConfigFile = configFile

	cfg, err := loader.LoadForCommand(cmd)
	if err != nil {
		return nil, &fuser.ConfigurationError{Err: err}
	}

	// An unspecified manifest is searched for in parent directories too
	if f := cmd.Flags().Lookup("manifest"); f == nil || !f.Changed {
		if found := config.FindManifest(filepath.Dir(cfg.Manifest), filepath.Base(cfg.Manifest)); found != "" {
			cfg.Manifest = found
		}
	}

	manifest, err := config.LoadManifest(cfg.Manifest)
	if err != nil {
		return nil, &fuser.ConfigurationError{Err: err}
	}

	s := &session{cfg: cfg, manifest: manifest}

	if cfg.Verbose {
		s.log = cmd.ErrOrStderr()
		fmt.Fprintf(s.log, "Manifest: %s\nBundles: %v\nCache: %s (history %t)\n",
			manifest.Path, manifest.Names(), cfg.CacheDir, cfg.History)
	}

	if cfg.History {
		history, err := cache.New(cfg.CacheDir)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Build history disabled: %v\n", err)
		} else {
			history.SetMaxEntries(cfg.HistoryLimit)
			s.history = history
		}
	}

	return s, nil
}

// fuserOptions returns the options every fuser of this session is created with
func (s *session) fuserOptions() []fuser.Option {
	opts := []fuser.Option{fuser.WithStartTimeout(s.cfg.StartTimeout)}

	if s.log != nil {
		opts = append(opts, fuser.WithLogger(s.log))
	}

	if s.history != nil {
		opts = append(opts, fuser.WithRecorder(s.history))
	}

	return opts
}

// selectBundles resolves bundle names against the manifest. With all set,
// or with no names and a single-bundle manifest, every bundle is selected.
func (s *session) selectBundles(names []string, all bool) ([]config.Bundle, error) {
	if all || (len(names) == 0 && len(s.manifest.Bundles) == 1) {
		return s.manifest.Bundles, nil
	}

	if len(names) == 0 {
		return nil, &fuser.ConfigurationError{
			Err: fmt.Errorf("no bundle named; choose from %v or use --all", s.manifest.Names()),
		}
	}

	bundles := make([]config.Bundle, 0, len(names))
	for _, name := range names {
		b, ok := s.manifest.Find(name)
		if !ok {
			return nil, &fuser.ConfigurationError{
				Err: fmt.Errorf("unknown bundle %q; choose from %v", name, s.manifest.Names()),
			}
		}

		bundles = append(bundles, b)
	}

	return bundles, nil
}

func (s *session) Close() error {
	if s.history != nil {
		return s.history.Close()
	}

	return nil
}

// commandContext returns the command's context, or a background context
// when the command was not started through Execute
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}
