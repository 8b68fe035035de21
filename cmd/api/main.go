// Package main provides the entrypoint for the SafeRoute API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/alert"
	"github.com/saferoute/saferoute/internal/api"
	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/contact"
	"github.com/saferoute/saferoute/internal/database"
	"github.com/saferoute/saferoute/internal/geocode/pelias"
	"github.com/saferoute/saferoute/internal/geofence"
	"github.com/saferoute/saferoute/internal/notify"
	"github.com/saferoute/saferoute/internal/routing/openrouteservice"
	"github.com/saferoute/saferoute/internal/saferoute"
	"github.com/saferoute/saferoute/internal/telemetry"
	"github.com/saferoute/saferoute/internal/threat"
	"github.com/saferoute/saferoute/internal/tracker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "saferoute-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting SafeRoute API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// JWT access token verification
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	authConfig := middleware.AuthConfig{
		Secret: []byte(jwtSigningKey),
		Issuer: os.Getenv("JWT_ISSUER"),
	}

	// Domain services on Postgres stores
	threatService := threat.NewService(threat.ServiceConfig{
		Repository: threat.NewPostgresRepository(pool),
		Logger:     log,
	})
	log.Info().Msg("threat registry initialized")

	geofenceService := geofence.NewService(geofence.ServiceConfig{
		Repository: geofence.NewPostgresRepository(pool),
		Logger:     log,
	})
	log.Info().Msg("geofence store initialized")

	contactService := contact.NewService(contact.ServiceConfig{
		Repository: contact.NewPostgresRepository(pool),
		Logger:     log,
	})
	log.Info().Msg("contact service initialized")

	// Routing provider
	orsClient := openrouteservice.NewClient(openrouteservice.ClientConfig{
		APIKey: os.Getenv("ORS_API_KEY"),
		Logger: log,
	})

	// Geocoding provider
	peliasClient := pelias.NewClient(pelias.ClientConfig{
		APIKey: os.Getenv("GEOCODE_API_KEY"),
		Logger: log,
	})

	planner := saferoute.NewPlanner(saferoute.PlannerConfig{
		Routing:  orsClient,
		Geocoder: peliasClient,
		Threats:  threatService,
		Logger:   log,
	})
	log.Info().Msg("route planner initialized")

	// Notification gateway
	gateway := notify.NewClient(notify.ClientConfig{
		APIKey:  os.Getenv("NOTIFY_API_KEY"),
		BaseURL: os.Getenv("NOTIFY_BASE_URL"),
		Logger:  log,
	})

	dispatcher := alert.NewDispatcher(alert.DispatcherConfig{
		Gateway:  gateway,
		Contacts: contactService,
		History:  alert.NewPostgresRepository(pool),
		Logger:   log,
	})
	log.Info().Msg("alert dispatcher initialized")

	trk := tracker.New(tracker.Config{
		Fences:  geofenceService,
		Handler: dispatcher,
		Logger:  log,
	})
	log.Info().Msg("geofence tracker initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Logger:          log,
		ServiceName:     serviceName,
		Metrics:         metrics,
		Auth:            authConfig,
		ThreatService:   threatService,
		GeofenceService: geofenceService,
		ContactService:  contactService,
		Planner:         planner,
		Dispatcher:      dispatcher,
		Tracker:         trk,
		DB:              pool,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	// Let in-flight evidence captures finish before exit.
	dispatcher.Wait()

	log.Info().Msg("server stopped")
}
