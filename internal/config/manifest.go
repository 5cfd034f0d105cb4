package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/Norgate-AV/fuser/internal/utils"
)

// Bundle describes one combined file: which sources go into it, in which
// order, and where the result is written
type Bundle struct {
	// Name identifies the bundle on the command line
	Name string

	// Directory every other path is relative to
	BaseDirectory string

	// Source files in concatenation order
	Files []string

	// Combined file path, relative to BaseDirectory
	CombinedFile string

	// Position map path, relative to BaseDirectory
	SourceMapFile string

	// Label embedded in the position map as its source root
	SourceRoot string

	// Write the position map alongside the combined file
	SourceMap bool
}

// Validate checks the invariants a bundle must hold before it can be built
func (b Bundle) Validate() error {
	if b.BaseDirectory == "" {
		return fmt.Errorf("bundle %q: base directory is required", b.Name)
	}

	if len(b.Files) == 0 {
		return fmt.Errorf("bundle %q: at least one source file is required", b.Name)
	}

	for i, f := range b.Files {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("bundle %q: file %d is empty", b.Name, i)
		}
	}

	if b.CombinedFile == "" {
		return fmt.Errorf("bundle %q: combined file is required", b.Name)
	}

	return nil
}

// CombinedPath returns the absolute path of the combined file
func (b Bundle) CombinedPath() string {
	return utils.ResolveIn(b.BaseDirectory, b.CombinedFile)
}

// SourceMapPath returns the absolute path of the position map
func (b Bundle) SourceMapPath() string {
	mapFile := b.SourceMapFile
	if mapFile == "" {
		mapFile = utils.SourceMapPath(b.CombinedFile)
	}

	return utils.ResolveIn(b.BaseDirectory, mapFile)
}

// Route returns the URL path the combined file is served under
func (b Bundle) Route() string {
	return path.Clean("/" + filepath.ToSlash(b.CombinedFile))
}

// Manifest is the parsed bundle manifest
type Manifest struct {
	// Absolute path the manifest was read from
	Path string

	Bundles []Bundle
}

// Find returns the bundle with the given name
func (m *Manifest) Find(name string) (Bundle, bool) {
	for _, b := range m.Bundles {
		if b.Name == name {
			return b, true
		}
	}

	return Bundle{}, false
}

// Names returns bundle names in manifest order
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Bundles))
	for _, b := range m.Bundles {
		names = append(names, b.Name)
	}

	return names
}

type manifestFile struct {
	Bundles []manifestBundle `toml:"bundle"`
}

type manifestBundle struct {
	Name          string   `toml:"name"`
	BaseDirectory string   `toml:"base_directory"`
	Files         []string `toml:"files"`
	CombinedFile  string   `toml:"combined_file"`
	SourceMapFile string   `toml:"source_map_file"`
	SourceRoot    string   `toml:"source_root"`
	SourceMap     *bool    `toml:"source_map"`
}

// LoadManifest reads and validates a bundle manifest
func LoadManifest(manifestPath string) (*Manifest, error) {
	abs, err := filepath.Abs(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest path: %w", err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	return ParseManifest(data, filepath.Dir(abs), abs)
}

// ParseManifest decodes manifest data. Relative base directories are
// resolved against dir.
func ParseManifest(data []byte, dir, source string) (*Manifest, error) {
	var raw manifestFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", source, err)
	}

	if len(raw.Bundles) == 0 {
		return nil, fmt.Errorf("%s: no [[bundle]] entries", source)
	}

	m := &Manifest{Path: source}
	seen := make(map[string]bool)

	for i, rb := range raw.Bundles {
		b := Bundle{
			Name:          rb.Name,
			BaseDirectory: rb.BaseDirectory,
			Files:         rb.Files,
			CombinedFile:  rb.CombinedFile,
			SourceMapFile: rb.SourceMapFile,
			SourceRoot:    rb.SourceRoot,
			SourceMap:     rb.SourceMap == nil || *rb.SourceMap,
		}

		if b.Name == "" {
			b.Name = strings.TrimSuffix(filepath.Base(b.CombinedFile), filepath.Ext(b.CombinedFile))
		}

		if b.Name == "" || b.Name == "." {
			return nil, fmt.Errorf("%s: bundle %d has no name and no combined file", source, i)
		}

		if seen[b.Name] {
			return nil, fmt.Errorf("%s: duplicate bundle name %q", source, b.Name)
		}

		seen[b.Name] = true

		if b.BaseDirectory == "" {
			b.BaseDirectory = "."
		}

		b.BaseDirectory = utils.ResolveIn(dir, b.BaseDirectory)

		if b.SourceMapFile == "" {
			b.SourceMapFile = utils.SourceMapPath(b.CombinedFile)
		}

		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}

		m.Bundles = append(m.Bundles, b)
	}

	return m, nil
}
