package utils

import (
	"path/filepath"
	"strings"
)

// SourceMapSuffix is appended to an artifact path to name its position map
const SourceMapSuffix = ".jsm"

// SourceMapPath derives the position map path from an artifact path
func SourceMapPath(combinedFile string) string {
	return combinedFile + SourceMapSuffix
}

// QuoteManifest renders files as a comma-joined list of single-quoted strings,
// keeping the configured order
func QuoteManifest(files []string) string {
	quoted := make([]string, 0, len(files))

	for _, f := range files {
		quoted = append(quoted, "'"+f+"'")
	}

	return strings.Join(quoted, ",")
}

// ResolveIn joins rel onto base unless rel is already absolute
func ResolveIn(base, rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}

	return filepath.Join(base, rel)
}
