// Package http serves the control API: job submission and inspection,
// system status, and health checks.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/retroscale/retroscale/internal/config"
	"github.com/retroscale/retroscale/internal/queue"
	"github.com/retroscale/retroscale/internal/version"
)

// Server wraps the HTTP listener and its graceful shutdown.
type Server struct {
	srv    *http.Server
	cfg    config.ServerConfig
	logger *slog.Logger
}

// NewServer builds the router, the OpenAPI layer, and the listener. Nothing
// starts listening until Start.
func NewServer(cfg config.ServerConfig, q *queue.ProcessingQueue, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(requestLogger(logger))
	router.Use(recoverer(logger))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	api := humachi.New(router, huma.DefaultConfig("RetroScale API", version.Version))
	registerJobRoutes(api, q)
	registerSystemRoutes(api, q)

	return &Server{
		srv: &http.Server{
			Addr:         cfg.Address(),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// Start blocks serving requests until Shutdown or a listener failure.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	return s.srv.Shutdown(ctx)
}

// Handler exposes the assembled router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }
