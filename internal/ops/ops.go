// Package ops serves the operational HTTP endpoint: Prometheus metrics and
// a liveness probe. It is separate from the protocol port and entirely
// optional; when disabled in configuration nothing here runs.
package ops

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/groupds/groupds/internal/logger"
)

// Server is the operational HTTP server. It supports graceful shutdown and
// may be started at most once.
type Server struct {
	server       *http.Server
	port         int
	shutdownOnce sync.Once
}

// NewRouter builds the operational route tree.
//
// Routes:
//   - GET /metrics  - Prometheus metrics
//   - GET /healthz  - liveness probe
func NewRouter(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	return r
}

// NewServer creates the operational server exposing the given registry.
func NewServer(port int, reg *prometheus.Registry) *Server {
	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      NewRouter(reg),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		port: port,
	}
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}

	logger.Info("Operational endpoint listening", "port", s.port)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errChan:
		return err
	}
}

// Addr returns the bound listener address (for tests).
func (s *Server) Addr() string {
	return s.server.Addr
}

// Shutdown stops the server, waiting up to five seconds for in-flight
// requests. Safe to call more than once.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.server.Shutdown(ctx)
	})
	return err
}
