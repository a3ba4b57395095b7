// Package status serves a small local HTTP API describing the current run:
// liveness, the runner's progress snapshot, and its metrics.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/yourflock/roost-autoconfig/internal/metrics"
	"github.com/yourflock/roost-autoconfig/internal/setup"
	"github.com/yourflock/roost-autoconfig/internal/telemetry"
)

// Snapshotter reports run progress. *setup.Runner implements it.
type Snapshotter interface {
	Status() setup.Status
}

// Config configures the router.
type Config struct {
	Version  string
	Runner   Snapshotter
	Gatherer prometheus.Gatherer
	Logger   *logrus.Entry
}

// Health is the /health payload.
type Health struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	GoVersion string `json:"go_version"`
}

// NewRouter returns the status API handler.
func NewRouter(cfg Config) http.Handler {
	started := time.Now()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(telemetry.PanicRecoveryMiddleware)
	if cfg.Logger != nil {
		r.Use(requestLogger(cfg.Logger))
	}
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Health{
			Status:    "ok",
			Version:   cfg.Version,
			Uptime:    fmt.Sprintf("%.0fs", time.Since(started).Seconds()),
			GoVersion: runtime.Version(),
		})
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no_run", "message": "no run in progress"})
			return
		}
		writeJSON(w, http.StatusOK, cfg.Runner.Status())
	})
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	}
	return r
}

// Server is a running status server.
type Server struct {
	srv *http.Server
	ln  net.Listener
	log *logrus.Entry
}

// Start listens on addr and serves h in the background. Listen errors are
// returned immediately.
func Start(addr string, h http.Handler, log *logrus.Entry) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("status: listen %s: %w", addr, err)
	}
	s := &Server{
		srv: &http.Server{
			Handler:      h,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		ln:  ln,
		log: log,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("status server stopped")
		}
	}()
	log.WithField("addr", s.Addr()).Info("status server listening")
	return s, nil
}

// Addr is the bound address, useful when addr had port 0.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func requestLogger(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			}).Debug("status request")
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
