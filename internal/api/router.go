// Package api provides the HTTP API for FleetRoute.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/fleetroute/fleetroute/internal/api/handler"
	"github.com/fleetroute/fleetroute/internal/api/middleware"
	"github.com/fleetroute/fleetroute/internal/api/response"
	"github.com/fleetroute/fleetroute/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger
	Metrics   *middleware.Metrics

	// Planner serves the optimize and baseline endpoints.
	Planner handler.RoutePlanner

	// Registry exposes provider health on /v1/ops/status. Optional.
	Registry *resilience.Registry

	// CORSAllowedOrigin is "*" or a single origin; empty disables CORS.
	CORSAllowedOrigin string
	RequireTLS        bool

	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler

	// Per-IP limits for the planning and insights routes. A zero
	// RequestLimit uses the middleware default for the tier.
	PlanningRateLimit middleware.RateLimitConfig
	InsightsRateLimit middleware.RateLimitConfig
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	planningLimit := cfg.PlanningRateLimit
	if planningLimit.RequestLimit == 0 {
		planningLimit = middleware.PlanningRateLimit
	}
	insightsLimit := cfg.InsightsRateLimit
	if insightsLimit.RequestLimit == 0 {
		insightsLimit = middleware.InsightsRateLimit
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Tracing())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigin))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.MethodNotAllowed(w, r, r.Method+" is not supported on "+r.URL.Path)
	})

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry)
	routeHandler := handler.NewRouteHandler(cfg.Planner, cfg.Logger)
	insightsHandler := handler.NewInsightsHandler()

	// One limiter per tier so /v1 routes and their /api aliases share a budget.
	planningRateLimit := middleware.RateLimitByIP(planningLimit)
	insightsRateLimit := middleware.RateLimitByIP(insightsLimit)
	acceptRoutes := middleware.RequireMediaType("application/json", "text/csv")

	// Optimize and baseline call the routing provider and the solver.
	planning := func(r chi.Router) {
		r.Use(planningRateLimit)
		r.Use(acceptRoutes)
		r.Use(middleware.ContentTypeJSON)
	}
	insight := func(r chi.Router) {
		r.Use(insightsRateLimit)
		r.Use(middleware.RequireJSON)
		r.Use(middleware.ContentTypeJSON)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Group(func(r chi.Router) {
			planning(r)
			r.Post("/routes:optimize", routeHandler.Optimize)
			r.Post("/routes:baseline", routeHandler.Baseline)
		})

		r.Group(func(r chi.Router) {
			insight(r)
			r.Post("/insights:explain", insightsHandler.Explain)
			r.Post("/insights:ask", insightsHandler.Ask)
		})
	})

	// Paths used by existing map front ends.
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			planning(r)
			r.Post("/optimize_routes", routeHandler.Optimize)
			r.Post("/calculate_before_metrics", routeHandler.Baseline)
		})

		r.Group(func(r chi.Router) {
			insight(r)
			r.Post("/explain_routes", insightsHandler.Explain)
			r.Post("/ask", insightsHandler.Ask)
		})
	})

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	return r
}
