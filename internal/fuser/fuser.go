// Package fuser concatenates a bundle's source files into one combined file
// and keeps it current.
//
// A Fuser owns one file watcher for its bundle. Every request for the
// combined file asks the watcher whether any source changed since the last
// build and rebuilds first if so. The combined file is replaced atomically,
// so readers never see a partial build, and concurrent requests share a
// single check-and-build.
package fuser

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Norgate-AV/fuser/internal/cache"
	"github.com/Norgate-AV/fuser/internal/config"
	"github.com/Norgate-AV/fuser/internal/sourcemap"
	"github.com/Norgate-AV/fuser/internal/utils"
	"github.com/Norgate-AV/fuser/internal/watcher"
)

// DefaultStartTimeout bounds how long a watcher may take to start
const DefaultStartTimeout = 2 * time.Second

// Watcher is the part of a file watcher a Fuser depends on
type Watcher interface {
	ChangesSince(since time.Time) (watcher.ChangeSet, error)
	Close() error
}

// StartFunc starts a watcher over files below baseDir. It should give up
// when ctx is done.
type StartFunc func(ctx context.Context, baseDir string, files []string) (Watcher, error)

// DefaultStarter starts an fsnotify-backed watcher
func DefaultStarter(opts watcher.Options) StartFunc {
	return func(ctx context.Context, baseDir string, files []string) (Watcher, error) {
		h, err := watcher.Start(ctx, baseDir, files, opts)
		if err != nil {
			return nil, err
		}

		return h, nil
	}
}

// Recorder receives one entry per build attempt
type Recorder interface {
	Record(entry cache.Entry) error
}

// Option configures a Fuser
type Option func(*Fuser)

// WithStarter replaces the watcher start function
func WithStarter(start StartFunc) Option {
	return func(f *Fuser) {
		if start != nil {
			f.start = start
		}
	}
}

// WithStartTimeout changes how long a watcher may take to start.
// Non-positive values keep the default.
func WithStartTimeout(d time.Duration) Option {
	return func(f *Fuser) {
		if d > 0 {
			f.startTimeout = d
		}
	}
}

// WithRecorder records every build attempt, typically in the history cache
func WithRecorder(r Recorder) Option {
	return func(f *Fuser) {
		f.recorder = r
	}
}

// WithLogger writes progress messages to w. Nil disables them.
func WithLogger(w io.Writer) Option {
	return func(f *Fuser) {
		f.log = w
	}
}

// BuildResult describes one successful write of the combined file
type BuildResult struct {
	Started  time.Time
	Duration time.Duration
	Files    []FileOffset
	Size     int64
	Digest   string // MD5 hex of the combined file
}

type startCall struct {
	done chan struct{}
	w    Watcher
	err  error
}

// Fuser builds and serves the combined file of one bundle
type Fuser struct {
	cfg          config.Bundle
	start        StartFunc
	startTimeout time.Duration
	recorder     Recorder
	log          io.Writer

	mu        sync.Mutex
	state     WatcherState
	watcher   Watcher
	starting  *startCall
	lastBuild time.Time
	builds    int

	flight  singleflight.Group
	buildMu sync.Mutex
}

// New creates a Fuser for a bundle. The watcher is started lazily by the
// first request, or explicitly with EnsureWatcher.
func New(cfg config.Bundle, opts ...Option) (*Fuser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	cfg.Files = append([]string(nil), cfg.Files...)
	if cfg.SourceMapFile == "" {
		cfg.SourceMapFile = utils.SourceMapPath(cfg.CombinedFile)
	}

	f := &Fuser{
		cfg:          cfg,
		start:        DefaultStarter(watcher.Options{}),
		startTimeout: DefaultStartTimeout,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// Open creates a Fuser and waits for its watcher to start
func Open(ctx context.Context, cfg config.Bundle, opts ...Option) (*Fuser, error) {
	f, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}

	if _, err := f.EnsureWatcher(ctx); err != nil {
		_ = f.Close()
		return nil, err
	}

	return f, nil
}

// Config returns the bundle configuration
func (f *Fuser) Config() config.Bundle {
	return f.cfg
}

// State returns the watcher lifecycle state
func (f *Fuser) State() WatcherState {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.state
}

// LastBuild returns the timestamp of the last build, or the zero time if
// nothing was built or the last build failed
func (f *Fuser) LastBuild() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.lastBuild
}

// Builds returns how many times the combined file was written, failed
// attempts included
func (f *Fuser) Builds() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.builds
}

// EnsureWatcher returns the running watcher, starting it if needed. All
// concurrent callers wait on the same start attempt. A failed or timed out
// start is reported to every waiter and retried by the next call.
func (f *Fuser) EnsureWatcher(ctx context.Context) (Watcher, error) {
	f.mu.Lock()
	switch f.state {
	case StateStarted:
		w := f.watcher
		f.mu.Unlock()
		return w, nil
	case StateClosed:
		f.mu.Unlock()
		return nil, ErrClosed
	}

	call := f.starting
	if call == nil {
		call = &startCall{done: make(chan struct{})}
		f.starting = call
		f.state = StateStarting
		go f.startWatcher(call)
	}
	f.mu.Unlock()

	select {
	case <-call.done:
		return call.w, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Fuser) startWatcher(call *startCall) {
	defer close(call.done)

	w, err := f.runStarter()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.starting = nil

	if err != nil {
		f.state = StateFailed
		call.err = &WatcherStartError{BaseDir: f.cfg.BaseDirectory, Err: err}
		f.logf("%v\n", call.err)
		return
	}

	f.state = StateStarted
	f.watcher = w
	call.w = w
	f.logf("Watching %d files in %s\n", len(f.cfg.Files), f.cfg.BaseDirectory)
}

type startResult struct {
	w   Watcher
	err error
}

// runStarter runs the start function under the start timeout. A watcher
// that arrives after the timeout is closed and dropped.
func (f *Fuser) runStarter() (Watcher, error) {
	ctx, cancel := context.WithTimeout(context.Background(), f.startTimeout)
	defer cancel()

	results := make(chan startResult, 1)
	go func() {
		w, err := f.start(ctx, f.cfg.BaseDirectory, f.cfg.Files)
		results <- startResult{w: w, err: err}
	}()

	select {
	case r := <-results:
		return r.unpack()
	case <-ctx.Done():
	}

	// The starter may have finished at the same instant
	select {
	case r := <-results:
		return r.unpack()
	default:
	}

	go func() {
		if r := <-results; r.err == nil && r.w != nil {
			_ = r.w.Close()
		}
	}()

	return nil, ErrStartTimeout
}

func (r startResult) unpack() (Watcher, error) {
	if r.err != nil {
		if errors.Is(r.err, context.DeadlineExceeded) {
			return nil, ErrStartTimeout
		}

		return nil, r.err
	}

	if r.w == nil {
		return nil, errors.New("starter returned no watcher")
	}

	return r.w, nil
}

// Refresh rebuilds the combined file if any source changed since the last
// build, or if the combined file or its position map is missing. It returns
// nil when nothing had to be built. Concurrent callers share one
// check-and-build; ctx only bounds the wait.
func (f *Fuser) Refresh(ctx context.Context) (*BuildResult, error) {
	w, err := f.EnsureWatcher(ctx)
	if err != nil {
		return nil, err
	}

	ch := f.flight.DoChan("refresh", func() (any, error) {
		fresh, err := isUpToDate(w, f.LastBuild(), f.requiredPaths()...)
		if err != nil {
			return nil, err
		}

		if fresh {
			return (*BuildResult)(nil), nil
		}

		return f.write()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		return res.Val.(*BuildResult), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ArtifactStream returns the combined file, rebuilding it first if it is stale
func (f *Fuser) ArtifactStream(ctx context.Context) (io.ReadCloser, error) {
	if _, err := f.Refresh(ctx); err != nil {
		return nil, err
	}

	path := f.cfg.CombinedPath()

	file, err := os.Open(path)
	if err != nil {
		return nil, &ArtifactAccessError{Op: "open", Path: path, Err: err}
	}

	return file, nil
}

// PositionMapStream returns the position map written by the last build.
// It does not check staleness.
func (f *Fuser) PositionMapStream(ctx context.Context) (io.ReadCloser, error) {
	path := f.cfg.SourceMapPath()

	if !f.cfg.SourceMap {
		return nil, &ArtifactAccessError{Op: "open", Path: path, Err: ErrNoSourceMap}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, &ArtifactAccessError{Op: "open", Path: path, Err: err}
	}

	return file, nil
}

// ContentHash returns the MD5 of the current combined file as lower-case hex.
// The file is refreshed and read in full on every call.
func (f *Fuser) ContentHash(ctx context.Context) (string, error) {
	rc, err := f.ArtifactStream(ctx)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	sum, err := cache.HashReader(rc)
	if err != nil {
		return "", &DigestError{Path: f.cfg.CombinedPath(), Err: err}
	}

	return sum, nil
}

// Close stops the watcher. A start in progress is waited for and its
// watcher closed. Closing a Fuser whose watcher never started is a no-op.
func (f *Fuser) Close() error {
	for {
		f.mu.Lock()

		switch f.state {
		case StateStarting:
			call := f.starting
			f.mu.Unlock()
			<-call.done

		case StateStarted:
			w := f.watcher
			f.watcher = nil
			f.state = StateClosed
			f.mu.Unlock()

			if err := w.Close(); err != nil {
				return fmt.Errorf("failed to close watcher on %s: %w", f.cfg.BaseDirectory, err)
			}

			return nil

		default:
			f.mu.Unlock()
			return nil
		}
	}
}

// requiredPaths lists the outputs whose absence makes a build stale
func (f *Fuser) requiredPaths() []string {
	paths := []string{f.cfg.CombinedPath()}
	if f.cfg.SourceMap {
		paths = append(paths, f.cfg.SourceMapPath())
	}

	return paths
}

// write builds the combined file and its position map. The build timestamp
// is taken before any source is read, so a change made during the build
// makes the next request rebuild. A failed build clears the timestamp.
func (f *Fuser) write() (*BuildResult, error) {
	f.buildMu.Lock()
	defer f.buildMu.Unlock()

	started := time.Now()

	f.mu.Lock()
	f.lastBuild = started
	f.builds++
	f.mu.Unlock()

	res, err := f.writeOutputs(started)
	f.record(started, res, err)

	if err != nil {
		f.mu.Lock()
		if f.lastBuild.Equal(started) {
			f.lastBuild = time.Time{}
		}
		f.mu.Unlock()

		f.logf("Build of %s failed: %v\n", f.cfg.Name, err)
		return nil, err
	}

	f.logf("Built %s (%d files, %d bytes) in %s\n", f.cfg.CombinedPath(), len(res.Files), res.Size, res.Duration)
	return res, nil
}

func (f *Fuser) writeOutputs(started time.Time) (*BuildResult, error) {
	dest := f.cfg.CombinedPath()

	out, err := cache.CreateAtomic(dest)
	if err != nil {
		return nil, &ArtifactAccessError{Op: "write", Path: dest, Err: err}
	}
	defer func() { _ = out.Abort() }() // No-op once committed

	digest := cache.NewDigest()
	size := &countingWriter{}

	offsets, err := concatenate(io.MultiWriter(out, digest, size), f.cfg.BaseDirectory, f.cfg.Files, started)
	if err != nil {
		if IsSourceReadError(err) {
			return nil, err
		}

		return nil, &ArtifactAccessError{Op: "write", Path: dest, Err: err}
	}

	if f.cfg.SourceMap {
		if err := f.writePositionMap(offsets); err != nil {
			return nil, err
		}
	}

	if err := out.Commit(); err != nil {
		return nil, &ArtifactAccessError{Op: "write", Path: dest, Err: err}
	}

	return &BuildResult{
		Started:  started,
		Duration: time.Since(started),
		Files:    offsets,
		Size:     size.n,
		Digest:   hex.EncodeToString(digest.Sum(nil)),
	}, nil
}

func (f *Fuser) writePositionMap(offsets []FileOffset) error {
	path := f.cfg.SourceMapPath()

	gen := sourcemap.NewGenerator(f.cfg.SourceMapFile, f.cfg.SourceRoot)
	if err := recordOffsets(gen, offsets); err != nil {
		return &ArtifactAccessError{Op: "write", Path: path, Err: err}
	}

	data, err := gen.MarshalJSON()
	if err != nil {
		return &ArtifactAccessError{Op: "write", Path: path, Err: err}
	}

	if err := cache.WriteFileAtomic(path, data); err != nil {
		return &ArtifactAccessError{Op: "write", Path: path, Err: err}
	}

	return nil
}

func (f *Fuser) record(started time.Time, res *BuildResult, buildErr error) {
	if f.recorder == nil {
		return
	}

	entry := cache.Entry{
		Bundle:       f.cfg.Name,
		CombinedFile: f.cfg.CombinedPath(),
		Started:      started,
		Duration:     time.Since(started),
		Files:        len(f.cfg.Files),
		Success:      buildErr == nil,
	}

	if res != nil {
		entry.Duration = res.Duration
		entry.Size = res.Size
		entry.Digest = res.Digest
	}

	if buildErr != nil {
		entry.Error = buildErr.Error()
	}

	if err := f.recorder.Record(entry); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to record build of %s: %v\n", f.cfg.Name, err)
	}
}

func (f *Fuser) logf(format string, args ...any) {
	if f.log == nil {
		return
	}

	fmt.Fprintf(f.log, format, args...)
}
