// Package health exposes the liveness, readiness and metrics endpoints used by
// the hosting platform.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"tg_movie_gate_bot/internal/logging"
)

const (
	pingTimeout        = 2 * time.Second
	readHeaderTimeout  = 2 * time.Second
	healthListenPrefix = ":"

	bodyOK          = "OK"
	bodyUnavailable = "UNAVAILABLE"
)

// Checker reports whether a backing dependency is reachable.
type Checker interface {
	Ping(ctx context.Context) error
}

// Server hosts the health endpoints and owns the underlying HTTP server.
type Server struct {
	server  *http.Server
	logger  *logrus.Entry
	checker Checker
}

// NewServer constructs a server on the provided port. GET / and GET /healthz
// always answer OK; /readyz pings checker when one is configured.
func NewServer(port int, checker Checker, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		logger:  logger,
		checker: checker,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", srv.handleLive)
	mux.HandleFunc("/healthz", srv.handleLive)
	mux.HandleFunc("/readyz", srv.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", healthListenPrefix, port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// ListenAndServe starts the health server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "health_listen",
		"addr":  s.server.Addr,
	}).Info("starting health server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "health_stopped").Info("health server stopped")
			return nil
		}

		return fmt.Errorf("health server listen: %w", err)
	}

	s.logger.WithField("event", "health_stopped").Info("health server stopped")
	return nil
}

// Shutdown gracefully stops the health server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	s.write(w, http.StatusOK, bodyOK)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		s.write(w, http.StatusOK, bodyOK)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	err := s.checker.Ping(ctx)
	cancel()

	if err != nil {
		s.logger.WithField("event", "health_ping_error").WithError(err).Warn("store ping failed during readiness check")
		s.write(w, http.StatusServiceUnavailable, bodyUnavailable)
		return
	}

	s.write(w, http.StatusOK, bodyOK)
}

func (s *Server) write(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.WithField("event", "health_write_error").WithError(err).Error("failed to write health response")
	}
}
