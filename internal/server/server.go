package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deskdata/deskdata/internal/handler"
	"github.com/deskdata/deskdata/internal/observability"
	"github.com/deskdata/deskdata/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	MaxBodySize     int64 // bytes
	// RateLimit is requests per minute per tenant. 0 disables limiting.
	RateLimit int
	// IPRateLimit is requests per minute per client IP on /readyz and
	// /metrics. 0 disables limiting.
	IPRateLimit int
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		MaxBodySize:     1 << 20, // 1MB
		RateLimit:       120,
		IPRateLimit:     600,
	}
}

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components the server routes to.
type Deps struct {
	Auth    middleware.TokenValidator
	Tenant  handler.TenantDeps
	Metrics *observability.Metrics
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Ready lists named dependencies checked by /readyz.
	Ready map[string]Pinger
	// OnShutdown runs after the listener drains, e.g. closing tenant pools.
	OnShutdown func()
}

// Server is the top-level HTTP server for deskdata. It owns the Chi router
// and routes tenant requests to the query layer and retrieval.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Tenant.Logger == nil {
		deps.Tenant.Logger = logger
	}
	if deps.Tenant.UserOf == nil {
		deps.Tenant.UserOf = middleware.PrincipalEmail
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger, s.deps.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// --- Health checks and metrics (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Group(func(r chi.Router) {
		// readyz pings every backend, so unauthenticated callers are throttled.
		if s.cfg.IPRateLimit > 0 {
			r.Use(middleware.RateLimit(s.cfg.IPRateLimit))
		}
		r.Get("/readyz", s.handleReadyz)
		if s.deps.Gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
		}
	})

	// --- Tenant API ---
	r.Route("/api/v1/tenants/{tenantID}", func(r chi.Router) {
		r.Use(middleware.Authenticate(s.deps.Auth))
		r.Use(middleware.RequireTenant("tenantID"))
		if s.cfg.RateLimit > 0 {
			r.Use(middleware.RateLimitByTenant(s.cfg.RateLimit))
		}
		if s.cfg.MaxBodySize > 0 {
			r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
		}

		h := handler.NewTenantHandler(s.deps.Tenant)

		r.Post("/ask", h.Ask)

		r.Get("/tables", h.ListTables)
		r.Get("/tables/{tableName}", h.QueryTable)
		r.Get("/tables/{tableName}/preview", h.PreviewTable)

		r.Put("/database", h.ConfigureDatabase)
		r.Delete("/database", h.RemoveDatabase)
		r.Post("/database/test", h.TestDatabase)
		r.Delete("/database/cache", h.InvalidateCache)

		r.Post("/ingest", h.Ingest)
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when every registered
// dependency answers a ping, or 503 if any does not. Tenant backends are
// not probed.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	for name, dep := range s.deps.Ready {
		if err := dep.Ping(r.Context()); err != nil {
			checks[name] = "error: " + err.Error()
			status = "degraded"
		} else {
			checks[name] = "ok"
		}
	}

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before running OnShutdown.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if s.deps.OnShutdown != nil {
		s.deps.OnShutdown()
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
