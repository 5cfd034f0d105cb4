package sourcemap

import (
	"encoding/json"
	"fmt"
)

// Map is a decoded source map
type Map struct {
	File       string
	SourceRoot string
	Sources    []string
	Mappings   []Mapping
}

// Parse decodes a source map document. Segments without a source are skipped.
func Parse(data []byte) (*Map, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing source map: %w", err)
	}

	if doc.Version != 3 {
		return nil, fmt.Errorf("unsupported source map version %d", doc.Version)
	}

	mappings, err := decodeMappings(doc.Mappings, doc.Sources)
	if err != nil {
		return nil, fmt.Errorf("decoding mappings: %w", err)
	}

	return &Map{
		File:       doc.File,
		SourceRoot: doc.SourceRoot,
		Sources:    doc.Sources,
		Mappings:   mappings,
	}, nil
}

// Lookup returns the mapping covering a generated line, choosing the last
// segment at or before column
func (m *Map) Lookup(line, column int) (Mapping, bool) {
	var found Mapping
	ok := false

	for _, mp := range m.Mappings {
		if mp.Generated.Line != line {
			continue
		}

		if mp.Generated.Column <= column || !ok {
			found = mp
			ok = true
		}
	}

	return found, ok
}

func decodeMappings(s string, sources []string) ([]Mapping, error) {
	var mappings []Mapping
	var fields [4]int
	genCol, line := 0, 1

	for pos := 0; pos < len(s); {
		switch s[pos] {
		case ';':
			line++
			genCol = 0
			pos++
			continue
		case ',':
			pos++
			continue
		}

		n := 0
		for pos < len(s) && s[pos] != ',' && s[pos] != ';' {
			if n >= 5 {
				return nil, fmt.Errorf("segment on line %d has too many fields", line)
			}

			v, next, err := readVLQ(s, pos)
			if err != nil {
				return nil, err
			}

			if n == 0 {
				genCol += v
			} else if n < 4 {
				fields[n] += v
			}

			pos = next
			n++
		}

		if n == 1 {
			continue
		}

		if n < 4 {
			return nil, fmt.Errorf("segment on line %d has %d fields", line, n)
		}

		src := fields[1]
		if src < 0 || src >= len(sources) {
			return nil, fmt.Errorf("source index %d out of range", src)
		}

		mappings = append(mappings, Mapping{
			Generated: Position{Line: line, Column: genCol},
			Original:  Position{Line: fields[2] + 1, Column: fields[3]},
			Source:    sources[src],
		})
	}

	return mappings, nil
}
