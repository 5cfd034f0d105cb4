package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Norgate-AV/fuser/internal/config"
	"github.com/Norgate-AV/fuser/internal/fuser"
)

var buildCmd = &cobra.Command{
	Use:   "build [bundle...]",
	Short: "Build bundles once",
	Long: `Concatenate the named bundles and write their combined files and
position maps. Bundles are built in parallel.`,
	RunE:         runBuild,
	SilenceUsage: true,
}

func init() {
	buildCmd.Flags().BoolP("all", "a", false, "Build every bundle in the manifest")
}

func runBuild(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")

	s, err := loadSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	bundles, err := s.selectBundles(args, all)
	if err != nil {
		return err
	}

	results, err := buildBundles(commandContext(cmd), bundles, s.fuserOptions()...)
	if err != nil {
		return err
	}

	writeBuildSummary(cmd.OutOrStdout(), bundles, results)
	return nil
}

// buildBundles builds every bundle concurrently. The first failure cancels
// the bundles still waiting for their watcher.
func buildBundles(ctx context.Context, bundles []config.Bundle, opts ...fuser.Option) ([]*fuser.BuildResult, error) {
	results := make([]*fuser.BuildResult, len(bundles))
	g, ctx := errgroup.WithContext(ctx)

	for i, b := range bundles {
		i, b := i, b
		g.Go(func() error {
			f, err := fuser.New(b, opts...)
			if err != nil {
				return fmt.Errorf("bundle %s: %w", b.Name, err)
			}
			defer f.Close()

			res, err := f.Refresh(ctx)
			if err != nil {
				return fmt.Errorf("bundle %s: %w", b.Name, err)
			}

			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func writeBuildSummary(w io.Writer, bundles []config.Bundle, results []*fuser.BuildResult) {
	for i, b := range bundles {
		res := results[i]
		if res == nil {
			fmt.Fprintf(w, "%s: %s (up to date)\n", b.Name, b.CombinedPath())
			continue
		}

		fmt.Fprintf(w, "%s: %s (%d files, %d bytes, md5 %s)\n", b.Name, b.CombinedPath(), len(res.Files), res.Size, res.Digest)

		if b.SourceMap {
			fmt.Fprintf(w, "%s: %s\n", b.Name, b.SourceMapPath())
		}
	}
}
