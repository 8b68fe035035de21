// Package main provides the entrypoint for the SafeRoute background worker.
// It consumes location fix messages from Pub/Sub and runs them through the
// geofence tracker, dispatching danger-zone alerts to emergency contacts.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/alert"
	"github.com/saferoute/saferoute/internal/contact"
	"github.com/saferoute/saferoute/internal/database"
	"github.com/saferoute/saferoute/internal/geofence"
	"github.com/saferoute/saferoute/internal/notify"
	"github.com/saferoute/saferoute/internal/tracker"
	"github.com/saferoute/saferoute/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "saferoute-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting SafeRoute worker")

	// Worker also exposes a health endpoint for Cloud Run
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	// Domain wiring: fences feed the tracker, danger transitions fan out
	// through the dispatcher.
	geofenceService := geofence.NewService(geofence.ServiceConfig{
		Repository: geofence.NewPostgresRepository(pool),
		Logger:     log,
	})

	contactService := contact.NewService(contact.ServiceConfig{
		Repository: contact.NewPostgresRepository(pool),
		Logger:     log,
	})

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

	trk := tracker.New(tracker.Config{
		Fences:  geofenceService,
		Handler: dispatcher,
		Logger:  log,
	})

	ingestJob := worker.NewIngestJob(worker.IngestJobConfig{
		Config:  worker.DefaultIngestConfig(),
		Tracker: trk,
		Logger:  log,
	})

	// Pub/Sub subscription for location fixes
	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	subscription := os.Getenv("PUBSUB_SUBSCRIPTION")
	if subscription == "" {
		subscription = "location-fixes"
	}

	pubsubHandler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        projectID,
		SubscriptionName: subscription,
		IngestJob:        ingestJob,
		Logger:           log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create pubsub handler")
	}
	defer pubsubHandler.Close()

	// Health check server
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","version":%q}`, Version)
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Start consuming location fixes
	go func() {
		if err := pubsubHandler.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("pubsub handler failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	// Let in-flight evidence captures finish before exit.
	dispatcher.Wait()

	log.Info().Msg("worker stopped")
}
