package fuser

import (
	"github.com/Norgate-AV/fuser/internal/sourcemap"
)

// mappingSink receives position mappings. The sink decides any ordering.
type mappingSink interface {
	AddMapping(m sourcemap.Mapping) error
}

// recordOffsets maps every line of every file, plus the line after its
// last, to the matching line of the source. Columns are always 1.
func recordOffsets(sink mappingSink, offsets []FileOffset) error {
	if sink == nil {
		return nil
	}

	for _, off := range offsets {
		for i := 0; i <= off.LineCount; i++ {
			err := sink.AddMapping(sourcemap.Mapping{
				Generated: sourcemap.Position{Line: off.GeneratedLine + i, Column: 1},
				Original:  sourcemap.Position{Line: i + 1, Column: 1},
				Source:    off.Path,
			})
			if err != nil {
				return err
			}
		}
	}

	return nil
}
