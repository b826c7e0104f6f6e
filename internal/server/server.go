// Package server wires the job control service HTTP surface.
package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/powdr-labs/proverd/internal/server/handlers"
	"github.com/powdr-labs/proverd/internal/server/middleware"
)

// Server hosts the job control endpoints.
type Server struct {
	host   string
	port   int
	opts   Options
	router chi.Router
	http   *http.Server
}

// Options carries the dependencies of the HTTP surface.
type Options struct {
	Proofs         *handlers.ProofHandler
	Health         *handlers.HealthManager
	MetricsHandler http.Handler
	Logger         *zap.Logger

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func New(host string, port int, opts Options) *Server {
	if opts.Health == nil {
		opts.Health = handlers.NewHealthManager()
	}

	s := &Server{host: host, port: port, opts: opts}
	s.router = buildRouter(opts)
	return s
}

func buildRouter(opts Options) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	// Liveness is unconditional; readiness runs the registered checkers.
	r.Get("/healthz", handlers.Healthz)
	r.Get("/health", opts.Health.HealthHandler)

	if opts.Proofs != nil {
		r.Post("/start_proof", opts.Proofs.StartProof)
		r.Get("/proof_state/{proof_uuid}", opts.Proofs.ProofState)
		r.Get("/logs", opts.Proofs.Logs)
	}

	if opts.MetricsHandler != nil {
		r.Get("/metrics", opts.MetricsHandler.ServeHTTP)
	}

	return r
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       s.opts.IdleTimeout,
	}
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
