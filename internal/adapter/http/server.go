package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cwygoda/mixpack/internal/domain"
	"github.com/cwygoda/mixpack/internal/workspace"
)

const maxBodyBytes = 1 << 20

// Runner runs the download pipeline for one job.
type Runner interface {
	Run(ctx context.Context, jobID string) (*domain.Result, error)
}

// Options tune the HTTP server.
type Options struct {
	// WriteTimeout bounds a whole synchronous pipeline run.
	WriteTimeout time.Duration
}

// Server is the inbound HTTP adapter.
type Server struct {
	runner Runner
	router chi.Router
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a new HTTP server.
func NewServer(runner Runner, addr string, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Minute
	}
	s := &Server{
		runner: runner,
		logger: logger,
	}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Post("/api/download-playlist", s.handleDownloadPlaylist)
	r.Get("/health", s.handleHealth)
	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// downloadRequest is the request body for POST /api/download-playlist.
type downloadRequest struct {
	JobID string `json:"jobId"`
}

// downloadResponse is the success body for POST /api/download-playlist.
type downloadResponse struct {
	Success          bool   `json:"success"`
	DownloadURL      string `json:"downloadUrl"`
	SuccessfulTracks int    `json:"successfulTracks"`
	FailedTracks     int    `json:"failedTracks"`
	SkippedTracks    int    `json:"skippedTracks"`
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleDownloadPlaylist(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req downloadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		s.writeError(w, http.StatusBadRequest, "Missing jobId")
		return
	}
	if err := workspace.ValidateID(jobID); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid jobId")
		return
	}

	// A client disconnect must not abort a run half-way.
	result, err := s.runner.Run(context.WithoutCancel(r.Context()), jobID)
	if err != nil {
		status, msg := errorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("download failed", "job_id", jobID, "error", err)
		}
		s.writeError(w, status, msg)
		return
	}

	s.writeJSON(w, http.StatusOK, downloadResponse{
		Success:          result.Success,
		DownloadURL:      result.DownloadURL,
		SuccessfulTracks: result.SuccessfulTracks,
		FailedTracks:     result.FailedTracks,
		SkippedTracks:    result.SkippedTracks,
	})
}

// errorStatus maps a pipeline error to a status code. The body always carries
// the error message, the same text the tracker receives.
func errorStatus(err error) (int, string) {
	var de *domain.Error
	if !errors.As(err, &de) {
		return http.StatusInternalServerError, err.Error()
	}
	switch de.Kind {
	case domain.KindNotFound:
		return http.StatusNotFound, de.Error()
	case domain.KindNoDownloadableTracks, domain.KindAllDownloadsFailed:
		return http.StatusUnprocessableEntity, de.Error()
	default:
		return http.StatusInternalServerError, de.Error()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.server.Addr
}
