// Package api exposes the runner over HTTP for a trusted local caller.
package api

import (
	"net/http"

	"github.com/fgeck/homelab-remote/internal/catalog"
	"github.com/fgeck/homelab-remote/internal/models"
	"github.com/fgeck/homelab-remote/internal/services/runner"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server holds what the handlers need.
type Server struct {
	runner  runner.Service
	targets map[string]models.ConnectionTarget
	catalog *catalog.Catalog
	logger  zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(logger zerolog.Logger, runnerSvc runner.Service, targets map[string]models.ConnectionTarget, cat *catalog.Catalog) *Server {
	return &Server{
		runner:  runnerSvc,
		targets: targets,
		catalog: cat,
		logger:  logger,
	}
}

// NewRouter registers all routes.
func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/catalog", s.handleCatalog).Methods("GET")

	r.HandleFunc("/targets/{name}/exec", s.handleExec).Methods("POST")
	r.HandleFunc("/targets/{name}/service/ensure", s.handleAction(models.ActionEnsure)).Methods("POST")
	r.HandleFunc("/targets/{name}/service/status", s.handleAction(models.ActionStatus)).Methods("GET")
	r.HandleFunc("/targets/{name}/service/stop", s.handleAction(models.ActionStop)).Methods("POST")
	r.HandleFunc("/targets/{name}/test", s.handleAction(models.ActionTest)).Methods("POST")

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Msg("http request")
		next.ServeHTTP(w, r)
	})
}
