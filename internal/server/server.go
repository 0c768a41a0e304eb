package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	v1 "github.com/gosuda/relaygate/internal/api/v1"
	"github.com/gosuda/relaygate/internal/audit"
	"github.com/gosuda/relaygate/internal/config"
	"github.com/gosuda/relaygate/internal/metrics"
	"github.com/gosuda/relaygate/internal/server/middleware"
	"github.com/gosuda/relaygate/internal/webhook"
)

const (
	apiRequestsPerSecond = 100
	apiBurst             = 200
	healthCheckTimeout   = 2 * time.Second
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components the HTTP surface serves. Credentials, Audit and
// Webhooks are optional; their routes are mounted only when set.
type Deps struct {
	Gateway        v1.Gateway
	Credentials    v1.CredentialStore
	Audit          v1.AuditLog
	Emitter        *audit.Emitter
	Webhooks       *webhook.Receiver
	WebhookHandler webhook.Handler
	// Health maps a component name to its liveness check.
	Health map[string]Pinger
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	deps       Deps
}

// New creates a Server with all routes wired. ctx bounds the background
// work of the rate limiters.
func New(ctx context.Context, cfg *config.Config, deps Deps) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Logger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	s := &Server{
		router: router,
		deps:   deps,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	// Every API request carries a caller, anonymous or not. The gateway
	// decides per function whether an identity is required; the management
	// routes are for tenant admins only.
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identify(cfg.JWT.Secret))
		r.Use(middleware.RateLimit(ctx, apiRequestsPerSecond, apiBurst))

		r.Group(func(r chi.Router) {
			api := humachi.New(r, apiConfig("Relaygate API", ""))
			registerAPIRoutes(api, deps)
		})

		if deps.Credentials != nil || deps.Audit != nil {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireTenant())
				r.Use(middleware.RequireAdmin())

				api := humachi.New(r, apiConfig("Relaygate Admin API", "/admin"))
				registerAdminRoutes(api, deps)
			})
		}
	})

	// Webhook receivers authenticate by signature, not by caller identity.
	if deps.Webhooks != nil && deps.WebhookHandler != nil {
		router.Route("/webhooks", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(ctx, cfg.Webhook.RatePerSec, cfg.Webhook.Burst))
			registerWebhookRoutes(r, deps.Webhooks, deps.WebhookHandler)
		})
	}

	// Health check and metrics (unauthenticated).
	router.Get("/healthz", s.handleHealth)
	router.Handle("/metrics", metrics.Handler())

	return s
}

// apiConfig returns the huma config of one API group. Groups share the
// /api/v1 mount, so each serves its docs under its own prefix.
func apiConfig(title, docsPrefix string) huma.Config {
	c := huma.DefaultConfig(title, "1.0.0")
	c.Servers = []*huma.Server{{URL: "/api/v1"}}
	c.OpenAPIPath = docsPrefix + c.OpenAPIPath
	c.DocsPath = docsPrefix + c.DocsPath
	c.SchemasPath = docsPrefix + c.SchemasPath
	return c
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	status := http.StatusOK

	names := make([]string, 0, len(s.deps.Health))
	for name := range s.deps.Health {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string, len(names))
		}
		if err := s.deps.Health[name].Ping(ctx); err != nil {
			log.Warn().Err(err).Str("component", name).Msg("server: health check failed")
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("server: encode health response")
	}
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("server: listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
