// Package server exposes registered bundles over HTTP.
//
//	GET /<combined file>        the combined file, rebuilt first if stale
//	GET /<combined file>?hash   MD5 hex of the combined file
//	GET /<combined file>.jsm    the position map
//
// Bundles are also reachable by name. Any failure is answered with status
// 500 and the error text as body.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"
)

// Handler serves the bundles of a Registry
type Handler struct {
	registry *Registry
	log      io.Writer
}

// NewHandler creates a handler. Request failures are logged to log if not nil.
func NewHandler(registry *Registry, log io.Writer) *Handler {
	return &Handler{registry: registry, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	f, res, ok := h.registry.Lookup(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()
	w.Header().Set("Cache-Control", "no-cache")

	switch {
	case res == ResourcePositionMap:
		rc, err := f.PositionMapStream(ctx)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		defer rc.Close()

		h.stream(w, r, "application/json", rc)

	case r.URL.Query().Has("hash"):
		sum, err := f.ContentHash(ctx)
		if err != nil {
			h.fail(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, sum)

	default:
		rc, err := f.ArtifactStream(ctx)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		defer rc.Close()

		h.stream(w, r, "application/javascript; charset=utf-8", rc)
	}
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, contentType string, body io.Reader) {
	w.Header().Set("Content-Type", contentType)

	if r.Method == http.MethodHead {
		return
	}

	// Headers are already sent, so a copy failure can only be logged
	if _, err := io.Copy(w, body); err != nil {
		h.logf("%s %s: %v\n", r.Method, r.URL.Path, err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logf("%s %s: %v\n", r.Method, r.URL.Path, err)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = io.WriteString(w, err.Error())
}

func (h *Handler) logf(format string, args ...any) {
	if h.log != nil {
		fmt.Fprintf(h.log, format, args...)
	}
}

// Server runs a Handler on a TCP listener
type Server struct {
	handler *Handler
	srv     *http.Server
	ln      net.Listener
}

// New creates a server for the registry
func New(registry *Registry, log io.Writer) *Server {
	return &Server{handler: NewHandler(registry, log)}
}

// Start listens on addr and serves in the background. It returns once the
// listener is bound.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.ln = ln

	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "fuser: serve error: %v\n", err)
		}
	}()

	return nil
}

// Addr returns the listener address, useful for tests with port 0
func (s *Server) Addr() net.Addr {
	if s.ln != nil {
		return s.ln.Addr()
	}
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
