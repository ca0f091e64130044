// Package api exposes the claim analysis service over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/claimrisk/internal/analysis"
	"github.com/opensource-finance/claimrisk/internal/domain"
	"github.com/opensource-finance/claimrisk/internal/metrics"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, svc *analysis.Service, version string) *Server {
	handler := NewHandler(svc, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(metrics.Middleware)     // Prometheus request metrics
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Route("/analysis", func(r chi.Router) {
			r.Post("/analyze", handler.Analyze)
			r.Get("/results/{claimID}", handler.GetResult)
			r.Delete("/results/{claimID}", handler.DeleteResult)
			r.Post("/batch", handler.Batch)
			r.Get("/batch-analyze", handler.BatchQuery)
			r.Get("/feature-importance", handler.FeatureImportance)
			r.Post("/explain/{claimID}", handler.Explain)
			r.Get("/explain/{claimID}", handler.Explain)
		})

		r.Post("/claims", handler.SubmitClaim)
		r.Get("/claims/{claimID}", handler.GetClaim)
		r.Get("/claims/{claimID}/benford", handler.BenfordChart)

		r.Get("/rules", handler.ListRules)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
