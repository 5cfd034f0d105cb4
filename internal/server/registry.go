package server

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/Norgate-AV/fuser/internal/config"
	"github.com/Norgate-AV/fuser/internal/fuser"
	"github.com/Norgate-AV/fuser/internal/utils"
)

// Resource is what a route serves
type Resource int

const (
	ResourceArtifact    Resource = iota // The combined file, or its hash
	ResourcePositionMap                 // The position map side-file
)

type route struct {
	fuser    *fuser.Fuser
	resource Resource
}

// Registry maps URL paths to the fusers that serve them
type Registry struct {
	mu     sync.RWMutex
	routes map[string]route
	fusers []*fuser.Fuser
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]route)}
}

// OpenManifest opens a fuser per manifest bundle, waiting for every watcher
// to start, and registers them. Fusers opened before a failure are closed.
func OpenManifest(ctx context.Context, m *config.Manifest, opts ...fuser.Option) (*Registry, error) {
	r := NewRegistry()

	for _, b := range m.Bundles {
		f, err := fuser.Open(ctx, b, opts...)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("bundle %s: %w", b.Name, err)
		}

		if err := r.Add(f); err != nil {
			_ = f.Close()
			_ = r.Close()
			return nil, err
		}
	}

	return r, nil
}

// Add registers a fuser under its combined file path and its bundle name.
// The position map is served under the combined file path plus ".jsm".
func (r *Registry) Add(f *fuser.Fuser) error {
	cfg := f.Config()

	paths := map[string]Resource{
		cfg.Route(): ResourceArtifact,
	}

	if byName := path.Clean("/" + cfg.Name); byName != cfg.Route() {
		paths[byName] = ResourceArtifact
	}

	if cfg.SourceMap {
		paths[utils.SourceMapPath(cfg.Route())] = ResourcePositionMap
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for p := range paths {
		if _, taken := r.routes[p]; taken {
			return fmt.Errorf("bundle %s: route %s is already registered", cfg.Name, p)
		}
	}

	for p, res := range paths {
		r.routes[p] = route{fuser: f, resource: res}
	}

	r.fusers = append(r.fusers, f)
	return nil
}

// Lookup returns the fuser and resource for a URL path
func (r *Registry) Lookup(urlPath string) (*fuser.Fuser, Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.routes[path.Clean("/"+urlPath)]
	if !ok {
		return nil, ResourceArtifact, false
	}

	return rt.fuser, rt.resource, true
}

// Routes returns every registered path, sorted
func (r *Registry) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]string, 0, len(r.routes))
	for p := range r.routes {
		routes = append(routes, p)
	}

	sort.Strings(routes)
	return routes
}

// Close closes every registered fuser and empties the registry
func (r *Registry) Close() error {
	r.mu.Lock()
	fusers := r.fusers
	r.fusers = nil
	r.routes = make(map[string]route)
	r.mu.Unlock()

	var errs []error
	for _, f := range fusers {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
