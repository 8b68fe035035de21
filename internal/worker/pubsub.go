package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/tracker"
	"github.com/saferoute/saferoute/pkg/geo"
)

// PubSubHandler consumes location fix messages for the worker. Mobile clients
// publish background fixes to a topic instead of hitting the API directly;
// the worker runs them through the geofence tracker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	ingestJob        *IngestJob
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	IngestJob        *IngestJob
	Logger           zerolog.Logger
}

// FixMessage is a location fix published by a client.
type FixMessage struct {
	JobType    string    `json:"job_type"`
	UserID     string    `json:"user_id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	AccuracyM  float64   `json:"accuracy_m,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 50
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		ingestJob:        cfg.IngestJob,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	var fixMsg FixMessage
	if err := json.Unmarshal(msg.Data, &fixMsg); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		msg.Nack()
		return
	}

	switch fixMsg.JobType {
	case "", "location_fix":
		// Default job type; fall through to ingest.
	default:
		logger.Warn().Str("job_type", fixMsg.JobType).Msg("unknown job type")
		msg.Ack() // Ack unknown messages to prevent redelivery
		return
	}

	events, err := h.ingestJob.Process(ctx, tracker.Fix{
		UserID:     fixMsg.UserID,
		Coordinate: geo.Coordinate{Lat: fixMsg.Lat, Lon: fixMsg.Lon},
		AccuracyM:  fixMsg.AccuracyM,
		RecordedAt: fixMsg.RecordedAt,
	})
	if err != nil {
		// Drops are terminal: redelivering a stale or superseded fix
		// cannot make it useful.
		if errors.Is(err, ErrStaleFix) ||
			errors.Is(err, tracker.ErrFixInFlight) ||
			errors.Is(err, tracker.ErrInvalidFix) {
			logger.Debug().Err(err).Str("user_id", fixMsg.UserID).Msg("dropping location fix")
			msg.Ack()
			return
		}
		logger.Error().Err(err).Str("user_id", fixMsg.UserID).Msg("fix processing failed")
		msg.Nack()
		return
	}

	logger.Info().
		Str("user_id", fixMsg.UserID).
		Int("transitions", len(events)).
		Dur("duration", time.Since(startTime)).
		Msg("location fix processed")

	msg.Ack()
}
