// Package server exposes the vexd index over HTTP.
//
// Endpoints:
//
//	POST /upload      enqueue a document for batched indexing (202)
//	POST /search      embed the query and return the top-k matches
//	POST /upload_old  embed and insert synchronously (legacy path)
//	GET  /            service banner
//	GET  /stats       index and ingest counters
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/screenager/vexd/internal/embed"
	"github.com/screenager/vexd/internal/hnsw"
	"github.com/screenager/vexd/internal/ingest"
)

// DefaultAddr is the default listen address.
const DefaultAddr = "127.0.0.1:8080"

// Server hosts the HTTP adapter over the shared application state: one
// index, one upload queue, one embedder.
type Server struct {
	index    *hnsw.Index
	queue    *ingest.Queue
	embedder embed.Embedder
	batcher  *ingest.Batcher
	log      *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// New builds a server around the shared state. batcher may be nil (stats
// then report the ingest counters as zero); log nil selects slog.Default.
func New(addr string, index *hnsw.Index, queue *ingest.Queue, embedder embed.Embedder, batcher *ingest.Batcher, log *slog.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		index:    index,
		queue:    queue,
		embedder: embedder,
		batcher:  batcher,
		log:      log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("POST /upload_old", s.handleUploadOld)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.logRequests(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the root handler; tests mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	s.log.Info("listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("serve failed", "err", err)
		}
	}()
	return nil
}

// Addr returns the bound address, once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully, letting in-flight requests finish
// until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// logRequests wraps the mux with a structured access log.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start))
	})
}
