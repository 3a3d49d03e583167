// Package server exposes blitz over HTTP: the template and chat relay used by
// browser clients, a session API that drives builds on the server, health
// probes and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/felixgeelhaar/blitz/internal/health"
	"github.com/felixgeelhaar/blitz/internal/log"
	"github.com/felixgeelhaar/blitz/internal/metrics"
	"github.com/felixgeelhaar/blitz/internal/provider"
	"github.com/felixgeelhaar/blitz/internal/session"
)

// maxBodyBytes bounds request bodies; model transcripts can be large.
const maxBodyBytes = 10 << 20

// Config holds server configuration.
type Config struct {
	// Address is the listen address (e.g., ":3000", "127.0.0.1:3000")
	Address string

	// CORSOrigins lists allowed origins. "*" allows any origin.
	CORSOrigins []string

	// ShutdownTimeout is the maximum time to wait for connections to drain during shutdown.
	// Defaults to 10 seconds if not specified.
	ShutdownTimeout time.Duration

	// ReadTimeout defaults to 30 seconds.
	ReadTimeout time.Duration

	// WriteTimeout defaults to 2 minutes; generation is slow.
	WriteTimeout time.Duration

	// IdleTimeout defaults to 60 seconds.
	IdleTimeout time.Duration
}

// Deps are the collaborators the handlers call into. Only Probes is required.
type Deps struct {
	Probes *health.ProbeManager

	// Sessions backs the /sessions API. Without it those routes answer 503.
	Sessions *session.Manager

	// Generator backs /chat. Without it /chat answers 503.
	Generator provider.Generator

	// APIKeyConfigured is reported by GET /health.
	APIKeyConfigured bool

	Metrics *metrics.Metrics

	// MetricsHandler serves GET /metrics. Defaults to the process registry.
	MetricsHandler http.Handler

	Logger *log.Logger
}

// Server is the blitz HTTP server.
type Server struct {
	deps            Deps
	router          chi.Router
	httpServer      *http.Server
	logger          *log.Logger
	inShutdown      atomic.Bool
	shutdownTimeout time.Duration
}

// NewServer creates a server with all routes registered.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if deps.Probes == nil {
		deps.Probes = health.NewProbeManager("")
	}
	if deps.MetricsHandler == nil {
		deps.MetricsHandler = metrics.Handler()
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}

	s := &Server{
		deps:            deps,
		logger:          logger.With("component", "server"),
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	s.router = s.routes(cfg.CORSOrigins)

	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	return s
}

func (s *Server) routes(origins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(traceRequests)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors(origins))
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/startup", s.handleStartup)
	r.Get("/healthz", s.handleReadiness)
	r.Method(http.MethodGet, "/metrics", s.deps.MetricsHandler)

	r.Post("/template", s.handleTemplate)
	r.Post("/chat", s.handleChat)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleCreateSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/messages", s.handleMessage)
			r.Post("/artifacts", s.handleArtifact)
			r.Post("/checkpoint", s.handleCheckpoint)
			r.Get("/steps", s.handleSteps)
			r.Get("/tree", s.handleTree)
			r.Get("/mount", s.handleMount)
		})
	})

	return r
}

// ServeHTTP delegates to the router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start marks the process initialized and serves until Shutdown.
// It returns http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start() error {
	s.deps.Probes.MarkInitialized()
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown fails readiness, stops keep-alives and drains connections for at
// most the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.deps.Probes.MarkShutdown()
	s.httpServer.SetKeepAlivesEnabled(false)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// IsShuttingDown returns whether the server is shutting down.
func (s *Server) IsShuttingDown() bool {
	return s.inShutdown.Load()
}

type healthResponse struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	APIKeyConfigured bool      `json:"apiKeyConfigured"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:           "ok",
		Timestamp:        time.Now().UTC(),
		APIKeyConfigured: s.deps.APIKeyConfigured,
	})
}

// handleLiveness always answers 200, even while shutting down.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeProbe(w, s.deps.Probes.CheckLiveness(r.Context()), http.StatusOK)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.writeProbe(w, s.deps.Probes.CheckReadiness(r.Context()), http.StatusServiceUnavailable)
}

func (s *Server) handleStartup(w http.ResponseWriter, r *http.Request) {
	s.writeProbe(w, s.deps.Probes.CheckStartup(r.Context()), http.StatusServiceUnavailable)
}

func (s *Server) writeProbe(w http.ResponseWriter, result *health.ProbeResult, unhealthyStatus int) {
	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = unhealthyStatus
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
