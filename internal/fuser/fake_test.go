package fuser

import (
	"context"
	"sync"
	"time"

	"github.com/Norgate-AV/fuser/internal/watcher"
)

// fakeWatcher reports only the changes a test feeds it
type fakeWatcher struct {
	mu      sync.Mutex
	changes watcher.ChangeSet
	err     error
	closed  bool
}

func (w *fakeWatcher) ChangesSince(since time.Time) (watcher.ChangeSet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return nil, w.err
	}

	var set watcher.ChangeSet
	for _, c := range w.changes {
		if c.Time.After(since) {
			set = append(set, c)
		}
	}

	return set, nil
}

func (w *fakeWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	return nil
}

func (w *fakeWatcher) touch(path string, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.changes = append(w.changes, watcher.Change{Path: path, Op: watcher.OpModified, Time: at})
}

func (w *fakeWatcher) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.closed
}

// fakeStarter hands out watchers and counts how often it was called
type fakeStarter struct {
	mu      sync.Mutex
	calls   int
	started []*fakeWatcher

	// block, when set, holds every start until it is closed
	block chan struct{}

	// failures makes the first n starts fail with err
	failures int
	err      error
}

func (s *fakeStarter) start(ctx context.Context, _ string, _ []string) (Watcher, error) {
	s.mu.Lock()
	s.calls++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	block := s.block
	s.mu.Unlock()

	if block != nil {
		<-block
	}

	if fail {
		return nil, s.err
	}

	w := &fakeWatcher{}

	s.mu.Lock()
	s.started = append(s.started, w)
	s.mu.Unlock()

	return w, nil
}

func (s *fakeStarter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

func (s *fakeStarter) watchers() []*fakeWatcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*fakeWatcher(nil), s.started...)
}
