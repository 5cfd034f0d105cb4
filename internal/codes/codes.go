package codes

import "errors"

// Process exit codes reported by the fuser CLI
const (
	Success        = 0
	General        = 1
	Configuration  = 2
	WatcherStart   = 3
	SourceRead     = 4
	ArtifactAccess = 5
	Digest         = 6
)

// ErrorCodes maps fuser exit codes to their descriptions
var ErrorCodes = map[int]string{
	Success:        "Success",
	General:        "General failure",
	Configuration:  "Invalid or missing configuration",
	WatcherStart:   "File watcher failed to start",
	SourceRead:     "Source file missing or unreadable",
	ArtifactAccess: "Combined file or source map cannot be opened",
	Digest:         "Combined file could not be hashed",
}

// Coder is implemented by errors that carry an exit code
type Coder interface {
	Code() int
}

// IsSuccess returns true if the exit code indicates a successful run
func IsSuccess(code int) bool {
	return code == Success
}

// GetErrorMessage returns the message for a given exit code, or a generic message if unknown
func GetErrorMessage(code int) string {
	if msg, ok := ErrorCodes[code]; ok {
		return msg
	}

	return "Unknown error"
}

// FromError extracts the exit code carried by err, falling back to General
func FromError(err error) int {
	if err == nil {
		return Success
	}

	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}

	return General
}
