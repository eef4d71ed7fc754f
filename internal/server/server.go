// Package server exposes the orchestration engine over HTTP: job
// submission and inspection, server records, health, and metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/skycrane/skycrane/internal/errors"
	"github.com/skycrane/skycrane/internal/observability"
	"github.com/skycrane/skycrane/pkg/joblog"
	"github.com/skycrane/skycrane/pkg/jobs"
	"github.com/skycrane/skycrane/pkg/statestore"
)

// ServerStore is the read surface the HTTP handlers need for server records.
type ServerStore interface {
	GetServer(ctx context.Context, name string) (*statestore.ServerRecord, error)
	ListServers(ctx context.Context) ([]*statestore.ServerRecord, error)
	ListDeployments(ctx context.Context, server string, limit int) ([]*statestore.DeploymentRecord, error)
}

// Deps carries the collaborators the HTTP surface reads from and writes to.
type Deps struct {
	Manager  *jobs.Manager
	Registry *jobs.Registry
	Store    ServerStore
	Logs     *joblog.Capture
	Metrics  *observability.Metrics
	Version  string
	Logger   *zap.Logger
}

type Server struct {
	host string
	port int
	deps Deps
	mux  *chi.Mux
	http *http.Server
}

func New(host string, port int, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{host: host, port: port, deps: deps}
	s.mux = s.routes()
	return s
}

func (s *Server) Port() int {
	return s.port
}

// Handler returns the root handler, exposed for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apperrors.WriteError(w, http.StatusNotFound, apperrors.CodeNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		apperrors.WriteError(w, http.StatusMethodNotAllowed, apperrors.CodeMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/version", s.handleVersion)

	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleCreateJob)
			r.Get("/{id}", s.handleGetJob)
			r.Post("/{id}/cancel", s.handleCancelJob)
			r.Get("/{id}/logs", s.handleJobLogs)
		})
		r.Route("/servers", func(r chi.Router) {
			r.Get("/", s.handleListServers)
			r.Get("/{name}", s.handleGetServer)
			r.Get("/{name}/deployments", s.handleListDeployments)
		})
	})

	return r
}

// recoverer converts handler panics into the JSON error envelope instead of
// letting the connection drop.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.deps.Logger.Error("handler panic",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec))
				apperrors.WriteError(w, http.StatusInternalServerError,
					apperrors.CodeInternal, fmt.Sprintf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe runs the server until ctx is cancelled, then drains with
// the given shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context, readTimeout, writeTimeout, idleTimeout, shutdownTimeout time.Duration) error {
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:      s.mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("http server listening", zap.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
