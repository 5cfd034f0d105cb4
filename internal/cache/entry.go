package cache

import "time"

// Entry represents one recorded build of a bundle
type Entry struct {
	// ID uniquely identifies this build
	ID string `json:"id"`

	// Bundle is the name of the bundle that was built
	Bundle string `json:"bundle"`

	// CombinedFile is the absolute path of the artifact written
	CombinedFile string `json:"combined_file"`

	// Started is the build timestamp, captured before writing began
	Started time.Time `json:"started"`

	// Duration is how long the write took
	Duration time.Duration `json:"duration"`

	// Files is the number of source files concatenated
	Files int `json:"files"`

	// Size is the artifact size in bytes (zero for failed builds)
	Size int64 `json:"size"`

	// Digest is the MD5 hex digest of the artifact bytes
	Digest string `json:"digest,omitempty"`

	// Success indicates if the build completed and the artifact was replaced
	Success bool `json:"success"`

	// Error holds the failure description for unsuccessful builds
	Error string `json:"error,omitempty"`
}
