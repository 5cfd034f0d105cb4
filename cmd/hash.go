package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/fuser/internal/fuser"
)

var hashCmd = &cobra.Command{
	Use:          "hash [bundle]",
	Short:        "Print the content hash of a bundle",
	Long:         `Rebuild the bundle if it is stale and print the MD5 of its combined file.`,
	Args:         cobra.MaximumNArgs(1),
	RunE:         runHash,
	SilenceUsage: true,
}

func runHash(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	bundles, err := s.selectBundles(args, false)
	if err != nil {
		return err
	}

	f, err := fuser.New(bundles[0], s.fuserOptions()...)
	if err != nil {
		return err
	}
	defer f.Close()

	sum, err := f.ContentHash(commandContext(cmd))
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), sum)
	return nil
}
