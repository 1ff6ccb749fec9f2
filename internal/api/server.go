package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pulsestack/pulse-insights/internal/services"
)

// Server exposes the insights engine over HTTP JSON.
type Server struct {
	logger     *slog.Logger
	service    *services.InsightsService
	httpServer *http.Server
}

// NewServer wires routes onto a fresh mux and returns a server listening on addr.
func NewServer(logger *slog.Logger, addr string, service *services.InsightsService) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		logger:  logger,
		service: service,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/v1/insights/compute", s.handleCompute)
	mux.HandleFunc("/api/v1/insights/retention", s.handleRetention)
	mux.HandleFunc("/api/v1/insights/anomalies", s.handleAnomalies)
	mux.HandleFunc("/api/v1/insights/health-scores", s.handleHealthScores)
	mux.HandleFunc("/api/v1/insights/forecasts", s.handleForecasts)
	mux.HandleFunc("/api/v1/insights/patterns", s.handlePatterns)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.logRequests(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("HTTP API listening", slog.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Duration("duration", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
