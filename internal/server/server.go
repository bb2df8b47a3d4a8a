// Package server serves the read-only deployment history API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pendergraft/contradeploy/internal/config"
	"github.com/pendergraft/contradeploy/internal/history"
	"github.com/pendergraft/contradeploy/internal/observability/metrics"
)

// Server is the HTTP server
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	router  *chi.Mux
	limiter *RateLimiter

	historySvc history.Service
}

// New creates a new server
func New(cfg *config.Config, svc history.Service, logger *slog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		router:     chi.NewRouter(),
		historySvc: history.LoggingMiddleware(logger)(svc),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeout) * time.Second,
	}
	defer s.Close()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Close releases background resources
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
		s.limiter = nil
	}
}

func (s *Server) setupMiddleware() {
	// Client IP first so the limiter and logs see it
	s.router.Use(ClientIPMiddleware(s.cfg.Proxy.TrustProxy, s.cfg.Proxy.TrustedProxies))

	if s.cfg.RateLimit.Enabled {
		s.limiter = NewRateLimiter(s.cfg.RateLimit)
		s.router.Use(s.limiter.Middleware)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second))
	}
	s.router.Use(middleware.Compress(5))

	// The API is public and read-only
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	historyHandler := history.NewHandler(s.historySvc)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/deployments", historyHandler.RegisterRoutes)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
