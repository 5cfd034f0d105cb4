package cache

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicFile is a temporary file that replaces its destination only on Commit.
// Readers of the destination never observe a partially written file.
type AtomicFile struct {
	*os.File

	dest string
	done bool
}

// CreateAtomic opens a temporary file in the destination's directory
func CreateAtomic(dest string) (*AtomicFile, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// Same directory as the destination so the rename stays on one filesystem
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}

	return &AtomicFile{File: tmp, dest: dest}, nil
}

// Commit flushes and closes the temporary file and renames it over the destination
func (a *AtomicFile) Commit() error {
	if a.done {
		return fmt.Errorf("%s: already committed or aborted", a.dest)
	}

	a.done = true
	tmpName := a.Name()

	if err := a.Sync(); err != nil {
		_ = a.Close()
		_ = os.Remove(tmpName)
		return err
	}

	if err := a.Chmod(0o644); err != nil {
		_ = a.Close()
		_ = os.Remove(tmpName)
		return err
	}

	if err := a.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, a.dest); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", a.dest, err)
	}

	return nil
}

// Abort discards the temporary file, leaving the destination untouched.
// Calling Abort after Commit is a no-op.
func (a *AtomicFile) Abort() error {
	if a.done {
		return nil
	}

	a.done = true
	_ = a.Close()

	return os.Remove(a.Name())
}

// WriteFileAtomic replaces dest with data using a temporary file and rename
func WriteFileAtomic(dest string, data []byte) error {
	f, err := CreateAtomic(dest)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Abort()
		return err
	}

	return f.Commit()
}
