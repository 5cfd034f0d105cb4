package fuser

import (
	"errors"
	"fmt"

	"github.com/Norgate-AV/fuser/internal/codes"
)

var (
	// ErrStartTimeout is wrapped by a WatcherStartError when the watcher did
	// not finish starting within the configured timeout
	ErrStartTimeout = errors.New("watcher start timed out")

	// ErrClosed is returned by operations on a closed fuser
	ErrClosed = errors.New("fuser is closed")

	// ErrNoSourceMap is wrapped by an ArtifactAccessError when position
	// mapping is disabled for the bundle
	ErrNoSourceMap = errors.New("source map disabled for this bundle")
)

// ConfigurationError reports a bundle that cannot be built as configured
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("fuser requires a valid configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
func (e *ConfigurationError) Code() int     { return codes.Configuration }

// WatcherStartError reports a watcher that failed or timed out while starting.
// The next call to EnsureWatcher retries.
type WatcherStartError struct {
	BaseDir string
	Err     error
}

func (e *WatcherStartError) Error() string {
	if errors.Is(e.Err, ErrStartTimeout) {
		return "file fuser timed out while starting on " + e.BaseDir
	}

	return fmt.Sprintf("failed to start file watcher on %s: %v", e.BaseDir, e.Err)
}

func (e *WatcherStartError) Unwrap() error { return e.Err }
func (e *WatcherStartError) Code() int     { return codes.WatcherStart }

// SourceReadError reports a configured source that was missing or
// unreadable during a build
type SourceReadError struct {
	File string // As configured
	Path string // Resolved path
	Err  error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("error reading %s: %v", e.File, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }
func (e *SourceReadError) Code() int     { return codes.SourceRead }

// ArtifactAccessError reports a combined file or position map that could
// not be opened, created or replaced
type ArtifactAccessError struct {
	Op   string // "open" or "write"
	Path string
	Err  error
}

func (e *ArtifactAccessError) Error() string {
	return fmt.Sprintf("cannot %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ArtifactAccessError) Unwrap() error { return e.Err }
func (e *ArtifactAccessError) Code() int     { return codes.ArtifactAccess }

// DigestError reports a combined file stream that failed while being hashed
type DigestError struct {
	Path string
	Err  error
}

func (e *DigestError) Error() string {
	return fmt.Sprintf("failed to hash %s: %v", e.Path, e.Err)
}

func (e *DigestError) Unwrap() error { return e.Err }
func (e *DigestError) Code() int     { return codes.Digest }

// IsSourceReadError reports whether err is or wraps a SourceReadError
func IsSourceReadError(err error) bool {
	var e *SourceReadError
	return errors.As(err, &e)
}

// IsWatcherStartError reports whether err is or wraps a WatcherStartError
func IsWatcherStartError(err error) bool {
	var e *WatcherStartError
	return errors.As(err, &e)
}

// IsArtifactAccessError reports whether err is or wraps an ArtifactAccessError
func IsArtifactAccessError(err error) bool {
	var e *ArtifactAccessError
	return errors.As(err, &e)
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

// IsDigestError reports whether err is or wraps a DigestError
func IsDigestError(err error) bool {
	var e *DigestError
	return errors.As(err, &e)
}
