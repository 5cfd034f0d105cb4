package sourcemap

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteVLQ(t *testing.T) {
	tests := []struct {
		value int
		want  string
	}{
		{0, "A"},
		{1, "C"},
		{-1, "D"},
		{15, "e"},
		{16, "gB"},
		{-16, "hB"},
		{123, "2H"},
		{1000, "w+B"},
	}

	for _, tt := range tests {
		var sb strings.Builder
		writeVLQ(&sb, tt.value)
		assert.Equal(t, tt.want, sb.String(), "writeVLQ(%d)", tt.value)

		got, next, err := readVLQ(tt.want, 0)
		require.NoError(t, err)
		assert.Equal(t, tt.value, got)
		assert.Equal(t, len(tt.want), next)
	}
}

func TestReadVLQ_Errors(t *testing.T) {
	_, _, err := readVLQ("g", 0)
	assert.Error(t, err, "continuation bit without following digit")

	_, _, err = readVLQ("!", 0)
	assert.Error(t, err)
}

func TestGenerator_AddMappingValidation(t *testing.T) {
	g := NewGenerator("out.js", "")

	err := g.AddMapping(Mapping{Generated: Position{Line: 0}, Original: Position{Line: 1}, Source: "a.js"})
	assert.Error(t, err)

	err = g.AddMapping(Mapping{Generated: Position{Line: 1}, Original: Position{Line: 0}, Source: "a.js"})
	assert.Error(t, err)

	err = g.AddMapping(Mapping{Generated: Position{Line: 1}, Original: Position{Line: 1}})
	assert.Error(t, err)

	assert.Empty(t, g.mappings)
}

func TestGenerator_Document(t *testing.T) {
	g := NewGenerator("combined.js.jsm", "/src")

	// Added out of order; the generator sorts
	require.NoError(t, g.AddMapping(Mapping{Generated: Position{Line: 3, Column: 1}, Original: Position{Line: 1, Column: 1}, Source: "b.js"}))
	require.NoError(t, g.AddMapping(Mapping{Generated: Position{Line: 1, Column: 1}, Original: Position{Line: 1, Column: 1}, Source: "a.js"}))
	require.NoError(t, g.AddMapping(Mapping{Generated: Position{Line: 2, Column: 1}, Original: Position{Line: 2, Column: 1}, Source: "a.js"}))

	assert.Len(t, g.mappings, 3)
	assert.Equal(t, []string{"b.js", "a.js"}, g.sources)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(g.String()), &doc))

	assert.Equal(t, float64(3), doc["version"])
	assert.Equal(t, "combined.js.jsm", doc["file"])
	assert.Equal(t, "/src", doc["sourceRoot"])
	assert.Equal(t, []any{"b.js", "a.js"}, doc["sources"])
	assert.Equal(t, []any{}, doc["names"])

	// line1: col1 src+1 line0 col1; line2: col1 src0 line+1 col0; line3: col1 src-1 line-1 col0
	assert.Equal(t, "CCAC;CACA;CDDA", doc["mappings"])
}

func TestGenerator_SkipsDuplicates(t *testing.T) {
	g := NewGenerator("", "")
	m := Mapping{Generated: Position{Line: 1, Column: 1}, Original: Position{Line: 1, Column: 1}, Source: "a.js"}
	require.NoError(t, g.AddMapping(m))
	require.NoError(t, g.AddMapping(m))

	parsed, err := Parse([]byte(g.String()))
	require.NoError(t, err)
	assert.Len(t, parsed.Mappings, 1)
}

func TestGenerator_Empty(t *testing.T) {
	g := NewGenerator("", "")

	parsed, err := Parse([]byte(g.String()))
	require.NoError(t, err)
	assert.Empty(t, parsed.Mappings)
	assert.Empty(t, parsed.Sources)
}

func TestParse_RoundTrip(t *testing.T) {
	g := NewGenerator("app.js.jsm", "root")

	var want []Mapping
	line := 6
	for _, file := range []struct {
		name  string
		lines int
	}{{"a.js", 2}, {"b.js", 40}, {"c.js", 1}} {
		for i := 0; i <= file.lines; i++ {
			m := Mapping{
				Generated: Position{Line: line + i, Column: 1},
				Original:  Position{Line: i + 1, Column: 1},
				Source:    file.name,
			}
			require.NoError(t, g.AddMapping(m))
			want = append(want, m)
		}
		line += file.lines + 2
	}

	parsed, err := Parse([]byte(g.String()))
	require.NoError(t, err)

	assert.Equal(t, "app.js.jsm", parsed.File)
	assert.Equal(t, "root", parsed.SourceRoot)
	assert.Equal(t, []string{"a.js", "b.js", "c.js"}, parsed.Sources)
	assert.Equal(t, want, parsed.Mappings)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("not json"))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"version":2,"sources":[],"names":[],"mappings":""}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"version":3,"sources":[],"names":[],"mappings":"CCAC"}`))
	assert.Error(t, err, "source index out of range")

	_, err = Parse([]byte(`{"version":3,"sources":["a.js"],"names":[],"mappings":"CA"}`))
	assert.Error(t, err, "segment with two fields")
}

func TestMap_Lookup(t *testing.T) {
	g := NewGenerator("", "")
	require.NoError(t, g.AddMapping(Mapping{Generated: Position{Line: 6, Column: 1}, Original: Position{Line: 1, Column: 1}, Source: "a.js"}))
	require.NoError(t, g.AddMapping(Mapping{Generated: Position{Line: 7, Column: 1}, Original: Position{Line: 2, Column: 1}, Source: "a.js"}))

	parsed, err := Parse([]byte(g.String()))
	require.NoError(t, err)

	m, ok := parsed.Lookup(7, 10)
	require.True(t, ok)
	assert.Equal(t, "a.js", m.Source)
	assert.Equal(t, 2, m.Original.Line)

	// Column before the first segment still resolves to that line
	m, ok = parsed.Lookup(6, 0)
	require.True(t, ok)
	assert.Equal(t, 1, m.Original.Line)

	_, ok = parsed.Lookup(100, 0)
	assert.False(t, ok)
}
