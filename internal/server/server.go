// Package server exposes the job handler over HTTP in the style of a serverless runtime:
// POST /runsync runs one job synchronously, GET /health runs health_check, GET /metrics
// serves Prometheus metrics and GET /jobs/{id} reads back job history when it is enabled.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/basel-ax/stylemesh/internal/domain"
)

// maxBodyBytes bounds a job document; images travel base64 encoded inside it
const maxBodyBytes = 64 << 20

// JobHandler runs a single job
type JobHandler interface {
	Handle(ctx context.Context, job domain.Job) domain.Result
}

// HistoryReader looks up finished jobs. It returns nil, nil for an unknown id.
type HistoryReader interface {
	Get(ctx context.Context, id string) (*domain.JobRecord, error)
}

// Config holds HTTP server settings
type Config struct {
	Addr            string
	Concurrency     int64
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default server configuration. Write timeouts are left unset
// because a diffusion job can run for minutes.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		Concurrency:     1,
		ReadTimeout:     60 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Server is the HTTP transport
type Server struct {
	handler  JobHandler
	sem      *semaphore.Weighted
	gatherer prometheus.Gatherer
	history  HistoryReader
	config   Config
	logger   *zap.Logger
}

// New creates a new HTTP transport. gatherer may be nil, in which case /metrics is not served.
func New(handler JobHandler, gatherer prometheus.Gatherer, config Config, logger *zap.Logger) *Server {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Server{
		handler:  handler,
		sem:      semaphore.NewWeighted(config.Concurrency),
		gatherer: gatherer,
		config:   config,
		logger:   logger.With(zap.String("component", "http_server")),
	}
}

// WithHistory serves GET /jobs/{id} from history
func (s *Server) WithHistory(history HistoryReader) *Server {
	s.history = history
	return s
}

// Routes returns the HTTP handler with all routes and middleware
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /runsync", s.handleRunSync)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.history != nil {
		mux.HandleFunc("GET /jobs/{id}", s.handleJob)
	}
	return s.recovery(s.requestLogger(mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:     s.Routes(),
		ReadTimeout: s.config.ReadTimeout,
		IdleTimeout: s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", zap.String("addr", listener.Addr().String()))
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return <-errCh
}

func (s *Server) handleRunSync(w http.ResponseWriter, r *http.Request) {
	var job domain.Job
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&job); err != nil {
		s.writeJSON(w, http.StatusBadRequest, domain.Result{
			Status:    domain.StatusError,
			Error:     "invalid job document: " + err.Error(),
			ErrorType: domain.KindValidation,
		})
		return
	}
	s.run(w, r, job)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, domain.Job{Input: domain.JobInput{Action: domain.ActionHealthCheck}})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.history.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to read job history", zap.String("job_id", id), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, domain.Result{
			ID:        id,
			Status:    domain.StatusError,
			Error:     "failed to read job history",
			ErrorType: domain.KindDependency,
		})
		return
	}
	if rec == nil {
		s.writeJSON(w, http.StatusNotFound, domain.Result{
			ID:        id,
			Status:    domain.StatusError,
			Error:     "job not found: " + id,
			ErrorType: domain.KindValidation,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, job domain.Job) {
	if err := s.sem.Acquire(r.Context(), 1); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, domain.Result{
			ID:        job.ID,
			Status:    domain.StatusError,
			Error:     "request cancelled while waiting for a free worker",
			ErrorType: domain.KindRuntime,
		})
		return
	}
	defer s.sem.Release(1)

	res := s.handler.Handle(r.Context(), job)
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", zap.Any("error", err), zap.String("path", r.URL.Path))
				s.writeJSON(w, http.StatusInternalServerError, domain.Result{
					Status:    domain.StatusError,
					Error:     "internal server error",
					ErrorType: domain.KindRuntime,
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
