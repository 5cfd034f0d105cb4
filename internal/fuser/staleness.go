package fuser

import (
	"fmt"
	"os"
	"time"
)

// isUpToDate reports whether the files in required still reflect the
// sources. Nothing built yet or a missing file means stale; otherwise the
// watcher alone decides. Errors are returned, never guessed around.
func isUpToDate(w Watcher, lastBuild time.Time, required ...string) (bool, error) {
	if lastBuild.IsZero() {
		return false, nil
	}

	for _, path := range required {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}

			return false, fmt.Errorf("checking %s: %w", path, err)
		}
	}

	changes, err := w.ChangesSince(lastBuild)
	if err != nil {
		return false, fmt.Errorf("querying changes since %s: %w", lastBuild.Format(time.RFC3339Nano), err)
	}

	return len(changes) == 0, nil
}
