// Package watcher reports which of a fixed set of files changed since a
// given instant.
//
// Change detection combines two sources. fsnotify events on the parent
// directories of the watched files are recorded as they arrive, and every
// query first sweeps the files with stat, recording any file whose size,
// modification time or existence differs from the last snapshot. The sweep
// makes a change visible to the very next query even when the fsnotify
// event has not been delivered yet.
//
// A change is stamped with the instant it was detected, never with the
// file's modification time, so "changed since T" is conservative: a change
// that happened just before T but was detected after T is still reported.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Norgate-AV/fuser/internal/utils"
)

// ErrClosed is returned by queries on a closed handle
var ErrClosed = errors.New("watcher is closed")

// Op describes what happened to a watched file
type Op int

const (
	OpModified Op = iota // Contents or metadata changed
	OpCreated            // File appeared
	OpRemoved            // File was deleted or renamed away
)

func (o Op) String() string {
	switch o {
	case OpCreated:
		return "created"
	case OpRemoved:
		return "removed"
	default:
		return "modified"
	}
}

// Change describes the latest detected change of one watched file
type Change struct {
	Path string // As configured
	Op   Op
	Time time.Time
}

// ChangeSet lists changed files in configured order
type ChangeSet []Change

// Options tunes a Handle
type Options struct {
	// DisablePoll turns off the stat sweep run before each query, leaving
	// fsnotify events as the only change source
	DisablePoll bool

	// Clock overrides time.Now, for tests
	Clock func() time.Time
}

type fileState struct {
	exists  bool
	size    int64
	modTime time.Time
}

type record struct {
	op   Op
	when time.Time
}

// Handle watches a fixed list of files below a base directory
type Handle struct {
	baseDir string
	files   []string          // configured order
	byPath  map[string]string // absolute path -> configured path
	opts    Options

	mu        sync.Mutex
	snapshots map[string]fileState
	changes   map[string]record
	closed    bool

	fw   *fsnotify.Watcher
	done chan struct{}
}

// Start begins watching files. Relative paths are resolved against baseDir
// and absolute ones are used as given. The context bounds the setup only;
// the handle keeps running until Close.
func Start(ctx context.Context, baseDir string, files []string, opts Options) (*Handle, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to watch in %s", baseDir)
	}

	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	h := &Handle{
		baseDir:   baseDir,
		files:     append([]string(nil), files...),
		byPath:    make(map[string]string, len(files)),
		opts:      opts,
		snapshots: make(map[string]fileState, len(files)),
		changes:   make(map[string]record),
		fw:        fw,
		done:      make(chan struct{}),
	}

	dirs := make(map[string]struct{})
	for _, f := range files {
		abs := filepath.Clean(utils.ResolveIn(baseDir, f))
		h.byPath[abs] = f
		h.snapshots[f] = stat(abs)
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	for dir := range dirs {
		if err := ctx.Err(); err != nil {
			fw.Close()
			return nil, err
		}

		// A missing directory is not fatal; the stat sweep still covers its files
		if err := fw.Add(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	go h.loop()
	return h, nil
}

// ChangesSince returns the files whose latest change was detected strictly
// after since. An empty set means nothing relevant changed.
func (h *Handle) ChangesSince(since time.Time) (ChangeSet, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	if !h.opts.DisablePoll {
		h.sweepLocked()
	}

	var set ChangeSet
	for _, f := range h.files {
		rec, ok := h.changes[f]
		if ok && rec.when.After(since) {
			set = append(set, Change{Path: f, Op: rec.op, Time: rec.when})
		}
	}

	return set, nil
}

// Close stops watching. Closing twice is a no-op.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	err := h.fw.Close()
	<-h.done // Wait for loop to exit

	return err
}

func (h *Handle) loop() {
	defer close(h.done)

	for {
		select {
		case event, ok := <-h.fw.Events:
			if !ok {
				return
			}

			h.handleEvent(event)

		case _, ok := <-h.fw.Errors:
			if !ok {
				return
			}
			// Overflow and similar errors are covered by the stat sweep
		}
	}
}

func (h *Handle) handleEvent(event fsnotify.Event) {
	abs := filepath.Clean(event.Name)
	rel, ok := h.byPath[abs]
	if !ok {
		return
	}

	var op Op
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpRemoved
	case event.Has(fsnotify.Create):
		op = OpCreated
	case event.Has(fsnotify.Write):
		op = OpModified
	default:
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.changes[rel] = record{op: op, when: h.opts.Clock()}
	h.snapshots[rel] = stat(abs)
}

// sweepLocked records files whose on-disk state differs from the last snapshot
func (h *Handle) sweepLocked() {
	now := h.opts.Clock()

	for abs, rel := range h.byPath {
		cur := stat(abs)
		prev := h.snapshots[rel]
		if cur.equal(prev) {
			continue
		}

		op := OpModified
		switch {
		case !cur.exists:
			op = OpRemoved
		case !prev.exists:
			op = OpCreated
		}

		h.snapshots[rel] = cur
		h.changes[rel] = record{op: op, when: now}
	}
}

func (s fileState) equal(o fileState) bool {
	return s.exists == o.exists && s.size == o.size && s.modTime.Equal(o.modTime)
}

func stat(path string) fileState {
	fi, err := os.Stat(path)
	if err != nil {
		return fileState{}
	}

	return fileState{exists: true, size: fi.Size(), modTime: fi.ModTime()}
}
