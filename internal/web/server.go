// Package web provides the read-only HTTP status server for a running write.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/crmwriter/internal/core"
	"github.com/JonMunkholm/crmwriter/internal/logging"
	applog "github.com/JonMunkholm/crmwriter/internal/web/middleware"
)

// ErrUnknownCollection is returned for collections the run has not reached.
var ErrUnknownCollection = errors.New("collection has not been processed")

// Server exposes run progress over HTTP.
type Server struct {
	progress *core.Progress
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a new Server instance.
func NewServer(progress *core.Progress) *Server {
	s := &Server{
		progress: progress,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(applog.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(10 * time.Second))
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleStatusPage)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/status/{collection}", s.handleCollectionStatus)
}

// Start listens on addr and serves in the background. It returns once the
// listener is bound, so a bad address fails the run before any record is sent.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status server listen on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger := logging.FromContext(ctx)
	logger.Info("status server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.progress.Snapshot())
}

// handleStatusPage serves the HTML view of the current snapshot.
func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	templ.Handler(statusPage(s.progress.Snapshot())).ServeHTTP(w, r)
}

func (s *Server) handleCollectionStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "collection")
	for _, c := range s.progress.Snapshot().Collections {
		if c.Name == name {
			writeJSON(w, c)
			return
		}
	}
	respondError(w, r, fmt.Errorf("%w: %s", ErrUnknownCollection, name), http.StatusNotFound)
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Status responses are never cached
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(context.Background()).Error("json encode error", "error", err)
	}
}
