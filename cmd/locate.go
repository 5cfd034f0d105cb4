package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/fuser/internal/fuser"
	"github.com/Norgate-AV/fuser/internal/sourcemap"
)

var locateCmd = &cobra.Command{
	Use:   "locate <bundle> <line>",
	Short: "Map a combined file line back to its source",
	Long: `Look up a line of a bundle's combined file in its position map and
print the source file and line it came from. The bundle must have been
built with position maps enabled.`,
	Args:         cobra.ExactArgs(2),
	RunE:         runLocate,
	SilenceUsage: true,
}

func runLocate(cmd *cobra.Command, args []string) error {
	line, err := strconv.Atoi(args[1])
	if err != nil || line < 1 {
		return fmt.Errorf("invalid line %q: must be a positive number", args[1])
	}

	s, err := loadSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	bundles, err := s.selectBundles(args[:1], false)
	if err != nil {
		return err
	}

	f, err := fuser.New(bundles[0], s.fuserOptions()...)
	if err != nil {
		return err
	}
	defer f.Close()

	rc, err := f.PositionMapStream(commandContext(cmd))
	if err != nil {
		return err
	}
	defer rc.Close()

	m, err := readPositionMap(rc)
	if err != nil {
		return err
	}

	mapping, ok := m.Lookup(line, 1)
	if !ok {
		return fmt.Errorf("line %d of %s is not mapped to a source", line, bundles[0].CombinedFile)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s:%d\n", mapping.Source, mapping.Original.Line)
	return nil
}

func readPositionMap(r io.Reader) (*sourcemap.Map, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading position map: %w", err)
	}

	return sourcemap.Parse(data)
}
