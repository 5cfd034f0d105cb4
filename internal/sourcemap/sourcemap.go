// Package sourcemap writes and reads Source Map Revision 3 documents.
//
// Only the parts fuser needs are supported: a single generated file, a list
// of sources, and mapping segments carrying a source position. Names and
// embedded sources content are not produced.
package sourcemap

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Position is a location in a file. Lines are 1-based, columns 0-based.
type Position struct {
	Line   int
	Column int
}

// Mapping ties a position in the generated file to a position in a source
type Mapping struct {
	Generated Position
	Original  Position
	Source    string
}

// Generator accumulates mappings and serialises them. Mappings may be added
// in any order; they are sorted by generated position when serialised.
type Generator struct {
	File       string
	SourceRoot string

	mappings  []Mapping
	sources   []string
	sourceIdx map[string]int
}

// NewGenerator creates an empty generator for the given file label
func NewGenerator(file, sourceRoot string) *Generator {
	return &Generator{
		File:       file,
		SourceRoot: sourceRoot,
		sourceIdx:  make(map[string]int),
	}
}

// AddMapping records one mapping
func (g *Generator) AddMapping(m Mapping) error {
	if m.Generated.Line < 1 || m.Generated.Column < 0 {
		return fmt.Errorf("invalid generated position %d:%d", m.Generated.Line, m.Generated.Column)
	}

	if m.Original.Line < 1 || m.Original.Column < 0 {
		return fmt.Errorf("invalid original position %d:%d", m.Original.Line, m.Original.Column)
	}

	if m.Source == "" {
		return fmt.Errorf("mapping at %d:%d has no source", m.Generated.Line, m.Generated.Column)
	}

	if g.sourceIdx == nil {
		g.sourceIdx = make(map[string]int)
	}

	if _, ok := g.sourceIdx[m.Source]; !ok {
		g.sourceIdx[m.Source] = len(g.sources)
		g.sources = append(g.sources, m.Source)
	}

	g.mappings = append(g.mappings, m)
	return nil
}

type document struct {
	Version    int      `json:"version"`
	Sources    []string `json:"sources"`
	Names      []string `json:"names"`
	Mappings   string   `json:"mappings"`
	File       string   `json:"file,omitempty"`
	SourceRoot string   `json:"sourceRoot,omitempty"`
}

// MarshalJSON renders the generator as a source map document
func (g *Generator) MarshalJSON() ([]byte, error) {
	sources := g.sources
	if sources == nil {
		sources = []string{}
	}

	return json.Marshal(document{
		Version:    3,
		Sources:    sources,
		Names:      []string{},
		Mappings:   g.encodeMappings(),
		File:       g.File,
		SourceRoot: g.SourceRoot,
	})
}

// String returns the JSON document, or an empty string if it cannot be encoded
func (g *Generator) String() string {
	data, err := g.MarshalJSON()
	if err != nil {
		return ""
	}

	return string(data)
}

func (g *Generator) encodeMappings() string {
	sorted := append([]Mapping(nil), g.mappings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Generated, sorted[j].Generated
		if a.Line != b.Line {
			return a.Line < b.Line
		}

		return a.Column < b.Column
	})

	var sb strings.Builder
	var prev *Mapping
	var prevGenCol, prevSource, prevOrigLine, prevOrigCol int
	line := 1

	for i := range sorted {
		m := &sorted[i]

		// Identical consecutive mappings add nothing
		if prev != nil && *prev == *m {
			continue
		}

		if m.Generated.Line != line {
			prevGenCol = 0
			for line < m.Generated.Line {
				sb.WriteByte(';')
				line++
			}
		} else if prev != nil && prev.Generated.Line == line {
			sb.WriteByte(',')
		}

		src := g.sourceIdx[m.Source]

		writeVLQ(&sb, m.Generated.Column-prevGenCol)
		writeVLQ(&sb, src-prevSource)
		writeVLQ(&sb, m.Original.Line-1-prevOrigLine)
		writeVLQ(&sb, m.Original.Column-prevOrigCol)

		prevGenCol = m.Generated.Column
		prevSource = src
		prevOrigLine = m.Original.Line - 1
		prevOrigCol = m.Original.Column
		prev = m
	}

	return sb.String()
}
