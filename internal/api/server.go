// Package api implements the HTTP API server exposing review sessions.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sprite-ai/revu/internal/aggregate"
	"github.com/sprite-ai/revu/internal/session"
)

// Service is what the server needs from the analysis backend: the workflow
// calls plus the two ingestion collaborators.
type Service interface {
	session.Service
	UploadProject(ctx context.Context, units []aggregate.Unit) ([]aggregate.Unit, error)
	FetchRepo(ctx context.Context, repoURL string) ([]aggregate.Unit, error)
}

// Server hosts independent review sessions over HTTP. Sessions share nothing;
// the registry map is the only cross-session state.
type Server struct {
	addr   string
	svc    Service
	logger *slog.Logger
	router chi.Router
	server *http.Server

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// sessionEntry pairs a controller with the hub fanning its events out to
// websocket subscribers.
type sessionEntry struct {
	ctrl *session.Controller
	hub  *hub
}

// New creates a server listening on addr, backed by the given service.
func New(addr string, svc Service, logger *slog.Logger) *Server {
	s := &Server{
		addr:     addr,
		svc:      svc,
		logger:   logger,
		sessions: make(map[string]*sessionEntry),
	}

	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleDelete)
			r.Post("/source", s.handleSource)
			r.Post("/analyze", s.handleAnalyze)
			r.Post("/select", s.handleSelect)
			r.Post("/fix", s.handleFix)
			r.Get("/delta", s.handleDelta)
			r.Get("/ws", s.handleWebSocket)
		})
	})
	s.router = r

	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
		// Analyze and fix block the handler for the duration of the remote
		// call, so the write timeout has to cover them.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.logger.Info("revu API server listening", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// createSession registers a new controller and wires its events to a hub.
func (s *Server) createSession(ctrl *session.Controller) string {
	id := uuid.NewString()
	entry := &sessionEntry{ctrl: ctrl, hub: newHub()}
	ctrl.Watch(entry.hub.broadcast)

	s.mu.Lock()
	s.sessions[id] = entry
	s.mu.Unlock()
	return id
}

func (s *Server) lookup(id string) (*sessionEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	return e, ok
}

func (s *Server) drop(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if ok {
		e.hub.closeAll()
		delete(s.sessions, id)
	}
	return ok
}
