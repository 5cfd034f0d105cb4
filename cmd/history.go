package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/fuser/internal/cache"
)

var historyCmd = &cobra.Command{
	Use:   "history [bundle]",
	Short: "Show or clear recorded builds",
	Long: `List the recorded builds of a bundle, oldest first. Without a bundle,
print how many builds are recorded. With --clear, delete the history of the
bundle, or of every bundle.`,
	Args:         cobra.MaximumNArgs(1),
	RunE:         runHistory,
	SilenceUsage: true,
}

func init() {
	historyCmd.Flags().Bool("clear", false, "Delete recorded builds")
	historyCmd.Flags().IntP("limit", "n", 0, "Show only the most recent n builds")
}

func runHistory(cmd *cobra.Command, args []string) error {
	clearHistory, _ := cmd.Flags().GetBool("clear")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := loadSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	history := s.history
	if history == nil {
		// Reading is allowed even when recording is disabled
		history, err = cache.New(s.cfg.CacheDir)
		if err != nil {
			return err
		}
		defer history.Close()
	}

	out := cmd.OutOrStdout()

	bundle := ""
	if len(args) == 1 {
		bundle = args[0]
		if _, ok := s.manifest.Find(bundle); !ok {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %q is not in %s\n", bundle, s.manifest.Path)
		}
	}

	if clearHistory {
		if err := history.Clear(bundle); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}

		if bundle == "" {
			fmt.Fprintln(out, "Cleared build history")
		} else {
			fmt.Fprintf(out, "Cleared build history of %s\n", bundle)
		}

		return nil
	}

	if bundle == "" {
		bundles, builds, err := history.Stats()
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "%d builds of %d bundles recorded in %s\n", builds, bundles, history.Root())
		return nil
	}

	entries, err := history.List(bundle)
	if err != nil {
		return err
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	return writeHistory(out, entries)
}

// writeHistory prints entries as an aligned table
func writeHistory(w io.Writer, entries []cache.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No builds recorded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDURATION\tFILES\tSIZE\tRESULT")

	for _, e := range entries {
		result := e.Digest
		if !e.Success {
			result = "failed: " + e.Error
		}

		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			e.Started.Local().Format(time.DateTime), e.Duration.Round(time.Microsecond), e.Files, e.Size, result)
	}

	return tw.Flush()
}
