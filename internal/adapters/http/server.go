// Package http provides the HTTP server and handlers.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/geotools/internal/config"
	"github.com/jobrunner/geotools/internal/ports/input"
)

// Services groups the primary ports served over HTTP.
type Services struct {
	Buildings input.BuildingService
	Jobs      input.JobService
	Artifacts input.ArtifactService
	Health    input.HealthService
	Ledger    input.JobLookup // nil disables the job status route
}

// JobDefaults holds upload parameter defaults.
type JobDefaults struct {
	MinSamples int
	BinSize    int
}

// Server wraps the HTTP server with application handlers.
type Server struct {
	server     *http.Server
	router     *mux.Router
	buildings  input.BuildingService
	jobs       input.JobService
	artifacts  input.ArtifactService
	health     input.HealthService
	ledger     input.JobLookup
	defaults   JobDefaults
	logger     *slog.Logger
	config     config.ServerConfig
	middleware []mux.MiddlewareFunc
}

// NewServer creates a new HTTP server. Extra middleware runs after logging
// and recovery.
func NewServer(
	cfg config.ServerConfig,
	services Services,
	defaults JobDefaults,
	logger *slog.Logger,
	middleware ...mux.MiddlewareFunc,
) *Server {
	s := &Server{
		buildings:  services.Buildings,
		jobs:       services.Jobs,
		artifacts:  services.Artifacts,
		health:     services.Health,
		ledger:     services.Ledger,
		defaults:   defaults,
		logger:     logger,
		config:     cfg,
		middleware: middleware,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Address(),
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Add middleware
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	for _, mw := range s.middleware {
		r.Use(mw)
	}

	// Add CORS middleware if configured. Preflight requests only reach the
	// middleware on routes that accept OPTIONS.
	postMethods := []string{http.MethodPost}
	if s.config.CORS.Enabled() {
		r.Use(s.corsMiddleware)
		postMethods = append(postMethods, http.MethodOptions)
	}

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)

	// Health endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Building extraction
	buildings := r.PathPrefix("/api/buildings").Subrouter()
	buildings.HandleFunc("/health", s.handleBuildingsHealth).Methods(http.MethodGet)
	buildings.HandleFunc("/generate", s.handleGenerate).Methods(postMethods...)
	buildings.HandleFunc("/test", s.handleBuildingsTest).Methods(http.MethodGet)

	// Cell-site jobs
	cellSite := r.PathPrefix("/api/cell-site").Subrouter()
	cellSite.HandleFunc("/health", s.handleCellSiteHealth).Methods(http.MethodGet)
	cellSite.HandleFunc("/upload", s.handleUpload).Methods(postMethods...)
	cellSite.HandleFunc("/download/{output_dir}/{filename}", s.handleDownload).Methods(http.MethodGet)
	cellSite.HandleFunc("/outputs/{output_dir}", s.handleListOutputs).Methods(http.MethodGet)

	// Job status (only if the ledger is configured)
	if s.ledger != nil {
		cellSite.HandleFunc("/jobs/{job_id}", s.handleGetJob).Methods(http.MethodGet)
	}

	// OpenAPI spec
	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)

	return r
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs incoming requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware recovers from panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				s.writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
