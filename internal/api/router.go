// Package api provides the HTTP API for SafeRoute.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/alert"
	"github.com/saferoute/saferoute/internal/api/handler"
	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/contact"
	"github.com/saferoute/saferoute/internal/geofence"
	"github.com/saferoute/saferoute/internal/provider/resilience"
	"github.com/saferoute/saferoute/internal/saferoute"
	"github.com/saferoute/saferoute/internal/threat"
	"github.com/saferoute/saferoute/internal/tracker"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	Auth        middleware.AuthConfig

	ThreatService   *threat.Service
	GeofenceService *geofence.Service
	ContactService  *contact.Service
	Planner         *saferoute.Planner
	Dispatcher      *alert.Dispatcher
	Tracker         *tracker.Tracker

	// DB is the storage pinger for readiness checks; nil when running on
	// in-memory stores.
	DB handler.Pinger

	// ProviderRegistry reports external provider health; defaults to the
	// global registry.
	ProviderRegistry *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "saferoute-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.DB, cfg.ProviderRegistry)
	threatHandler := handler.NewThreatHandler(cfg.ThreatService)
	geofenceHandler := handler.NewGeofenceHandler(cfg.GeofenceService)
	contactHandler := handler.NewContactHandler(cfg.ContactService)
	routeHandler := handler.NewRouteHandler(cfg.Planner)
	alertHandler := handler.NewAlertHandler(cfg.Dispatcher, cfg.Tracker)

	authMiddleware := middleware.Auth(cfg.Auth)

	// Rate limit middleware for different endpoint categories
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	// Ops endpoints (public, unversioned)
	r.Get("/health", opsHandler.Health)
	r.Get("/ready", opsHandler.Ready)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// System status requires authentication
		r.With(authMiddleware).Get("/status", opsHandler.Status)

		// Threat registry - reads are public, writes require authentication
		r.Route("/threats", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", threatHandler.ListThreats)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware)
				r.Use(middleware.RateLimitByUser(middleware.StandardRateLimit))
				r.Post("/", threatHandler.CreateThreat)
				r.Route("/{threatId}", func(r chi.Router) {
					r.Post("/report", threatHandler.ReportThreat)
					r.Post("/vote", threatHandler.VoteThreat)
					r.Post("/verify", threatHandler.VerifyThreat)
					r.Delete("/", threatHandler.DeleteThreat)
				})
			})
		})

		// Geofences - reads are public, writes require authentication
		r.Route("/geofences", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", geofenceHandler.ListGeofences)
			r.Get("/{geofenceId}", geofenceHandler.GetGeofence)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware)
				r.Use(middleware.RateLimitByUser(middleware.StandardRateLimit))
				r.Post("/", geofenceHandler.CreateGeofence)
				r.Patch("/{geofenceId}", geofenceHandler.UpdateGeofence)
				r.Delete("/{geofenceId}", geofenceHandler.DeleteGeofence)
			})
		})

		// Route planning - expensive compute, strict rate limiting
		r.With(authMiddleware, expensiveRateLimit).Post("/routes/safest", routeHandler.ComputeSafeRoute)

		// Emergency contacts (authenticated)
		r.Route("/contacts", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RateLimitByUser(middleware.StandardRateLimit))
			r.Get("/", contactHandler.ListContacts)
			r.Post("/", contactHandler.CreateContact)
			r.Delete("/{contactId}", contactHandler.DeleteContact)
		})

		// SOS endpoints (authenticated). No rate limit on the panic path.
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/sos", alertHandler.TriggerSOS)
			r.Post("/sos/safe", alertHandler.MarkSafe)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RateLimitByUser(middleware.StandardRateLimit))
			r.Get("/", alertHandler.ListAlerts)
			r.Post("/{alertId}/read", alertHandler.MarkAlertRead)
		})

		// Location fixes (authenticated). Clients post these continuously
		// while tracking is on, so they get their own generous tier.
		r.With(authMiddleware).Post("/location/fix", alertHandler.PostLocationFix)
	})

	return r
}
