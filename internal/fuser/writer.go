package fuser

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Norgate-AV/fuser/internal/utils"
)

const (
	// headerTimeFormat renders the generation time as an RFC 1123 GMT date
	headerTimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

	// firstContentLine is the generated line of the first source line: four
	// header lines and one separator line precede it
	firstContentLine = 6

	// separatorLines is what each file adds beyond its own lines: the
	// trailing blank line and the next file's separator
	separatorLines = 2

	fileTrailer = "\n\n"
)

// FileOffset records where one source file landed in the combined file
type FileOffset struct {
	// Path as configured
	Path string

	// GeneratedLine is the 1-based combined-file line of the source's first line
	GeneratedLine int

	// LineCount is the number of line breaks in the source plus one
	LineCount int
}

// Header returns the text written before the first source file
func Header(generated time.Time, files []string) string {
	return fmt.Sprintf("// This file was generated on %s\n\nJSLoader.expectToLoadModules([%s]);\n\n",
		generated.UTC().Format(headerTimeFormat), utils.QuoteManifest(files))
}

// fileSeparator returns the marker line written before a source file
func fileSeparator(file string) string {
	return ";// " + file + ":\n"
}

// concatenate writes the header and every file, in order, to w. Reading
// stops at the first failing file; the offsets of the files written before
// it are returned along with the error.
func concatenate(w io.Writer, baseDir string, files []string, generated time.Time) ([]FileOffset, error) {
	if _, err := io.WriteString(w, Header(generated, files)); err != nil {
		return nil, err
	}

	offsets := make([]FileOffset, 0, len(files))
	line := firstContentLine

	for _, file := range files {
		if _, err := io.WriteString(w, fileSeparator(file)); err != nil {
			return offsets, err
		}

		lines, err := copySource(w, baseDir, file)
		if err != nil {
			return offsets, err
		}

		if _, err := io.WriteString(w, fileTrailer); err != nil {
			return offsets, err
		}

		offsets = append(offsets, FileOffset{Path: file, GeneratedLine: line, LineCount: lines})
		line += lines + separatorLines
	}

	return offsets, nil
}

// readTracker remembers the last read error so copy failures can be
// attributed to the source rather than the destination
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}

	return n, err
}

// copySource streams one source file verbatim into w and returns its line count
func copySource(w io.Writer, baseDir, file string) (int, error) {
	path := utils.ResolveIn(baseDir, file)

	f, err := os.Open(path)
	if err != nil {
		return 0, &SourceReadError{File: file, Path: path, Err: err}
	}
	defer f.Close()

	var counter lineCounter
	src := &readTracker{r: f}

	if _, err := io.Copy(io.MultiWriter(w, &counter), src); err != nil {
		if src.err != nil {
			return 0, &SourceReadError{File: file, Path: path, Err: src.err}
		}

		return 0, err
	}

	return counter.Lines(), nil
}

// countingWriter counts bytes written through it
type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
