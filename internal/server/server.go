// Package server assembles the coordinator's HTTP side channel: health
// probes, a version endpoint, and the WebSocket upgrade route that
// hands each accepted connection off to pkg/session.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skifli/bruty/internal/apperror"
	"github.com/skifli/bruty/internal/server/handlers"
	"github.com/skifli/bruty/internal/server/middleware"
	"github.com/skifli/bruty/pkg/admission"
	"github.com/skifli/bruty/pkg/session"
	"github.com/skifli/bruty/pkg/wire"
	"go.uber.org/zap"
)

// Version is stamped into build metadata responses; overridden via
// -ldflags in release builds.
var Version = "dev"

// Server is the coordinator's HTTP listener: chi router plus the
// session wiring every accepted WebSocket connection needs.
type Server struct {
	host string
	port int
	mux  *chi.Mux

	sessionConfig session.Config
	logger        *zap.Logger
	upgrader      websocket.Upgrader
}

// New builds a Server bound to host:port. Session wiring is attached
// separately via WireSessions once the coordinator's reconciler and
// admission table exist; routes that don't need it (health, version)
// are usable immediately, which is what server_test.go exercises.
func New(host string, port int) *Server {
	s := &Server{
		host:     host,
		port:     port,
		mux:      chi.NewRouter(),
		logger:   zap.NewNop(),
		upgrader: websocket.Upgrader{},
	}
	s.routes()
	return s
}

// WireSessions attaches the admission/dispatch wiring the /ws upgrade
// route needs to turn a connection into a pkg/session.Session. Routes
// are registered once at New time regardless, returning 503 for /ws
// until this is called.
func (s *Server) WireSessions(cfg session.Config, logger *zap.Logger) {
	s.sessionConfig = cfg
	if logger != nil {
		s.logger = logger
	}
}

func (s *Server) routes() {
	s.mux.Use(middleware.RequestID)
	s.mux.Use(middleware.Recovery)

	s.mux.Get("/health", handlers.HealthHandler)
	s.mux.Get("/health/live", handlers.LivenessHandler)
	s.mux.Get("/health/ready", handlers.ReadinessHandler)
	s.mux.Get("/health/startup", handlers.StartupHandler)
	s.mux.Get("/version", s.versionHandler)
	s.mux.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	s.mux.Get("/ws", s.wsHandler)

	s.mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apperror.RespondWithError(w, middleware.RequestIDFromContext(r.Context()), apperror.ErrNotFound)
	})
	s.mux.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apperror.RespondWithError(w, middleware.RequestIDFromContext(r.Context()), apperror.ErrMethodNotAllowed)
	})
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"version":%q}`, Version)
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	if s.sessionConfig.Reconciler == nil {
		apperror.RespondWithError(w, middleware.RequestIDFromContext(r.Context()), apperror.ErrServiceUnavailable)
		return
	}
	if !admission.CheckUserAgent(r.UserAgent()) {
		apperror.RespondWithError(w, middleware.RequestIDFromContext(r.Context()), apperror.New(http.StatusForbidden, "REJECTED_USER_AGENT", "this client is not recognized"))
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := wire.NewConn(ws)
	sess := session.New(uuid.NewString(), conn, s.sessionConfig)
	// net/http cancels r.Context() as soon as this handler returns, so
	// the session gets a context that outlives the handler.
	sessCtx := context.WithoutCancel(r.Context())
	go func() {
		if err := sess.Run(sessCtx); err != nil {
			s.logger.Info("session ended", zap.Error(err))
		}
	}()
}

// Handler returns the assembled router.
func (s *Server) Handler() http.Handler { return s.mux }

// Port reports the port Server was constructed with.
func (s *Server) Port() int { return s.port }

// Addr is the host:port pair ListenAndServe should bind.
func (s *Server) Addr() string { return fmt.Sprintf("%s:%d", s.host, s.port) }
