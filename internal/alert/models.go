// Package alert decides how safety events reach a user's emergency contacts.
// It owns the per-user alert state machine (idle, alert, sos, safe), manual
// SOS with evidence capture, zone-alert escalation from the geofence tracker
// and the persisted alert history.
package alert

import (
	"context"
	"errors"
	"time"

	"github.com/saferoute/saferoute/internal/contact"
	"github.com/saferoute/saferoute/internal/notify"
	"github.com/saferoute/saferoute/pkg/geo"
)

// Dispatcher errors.
var (
	// ErrNoContacts indicates the user has no emergency contacts configured.
	// A precondition failure, not a transient one: retrying will not help.
	ErrNoContacts = errors.New("no emergency contacts configured")

	// ErrDeliveryFailed indicates the notification gateway call itself
	// failed. Retryable, unlike ErrNoContacts.
	ErrDeliveryFailed = errors.New("alert delivery failed")

	// ErrAlertNotFound indicates the requested alert record does not exist.
	ErrAlertNotFound = errors.New("alert not found")
)

// Status is the per-user alert state.
type Status string

// Alert states. Manual "mark safe" parks the user in StatusSafe for a short
// cool-down before returning to StatusIdle.
const (
	StatusIdle  Status = "idle"
	StatusAlert Status = "alert"
	StatusSOS   Status = "sos"
	StatusSafe  Status = "safe"
)

// LocationErrorKind distinguishes the user-facing location failure modes.
type LocationErrorKind string

// Location failure kinds.
const (
	LocationDenied      LocationErrorKind = "denied"
	LocationUnavailable LocationErrorKind = "unavailable"
	LocationTimeout     LocationErrorKind = "timeout"
)

// LocationError reports a failed location acquisition during SOS.
type LocationError struct {
	Kind LocationErrorKind
	Err  error
}

func (e *LocationError) Error() string {
	msg := "location acquisition failed: " + string(e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LocationError) Unwrap() error {
	return e.Err
}

// LocationSource acquires the user's current position when an SOS fires
// without a cached fix.
type LocationSource interface {
	Current(ctx context.Context, userID string) (geo.Coordinate, error)
}

// EvidenceRecorder captures audio/video evidence during an SOS. Capture runs
// in the background with a hard time cap and never blocks alert delivery.
type EvidenceRecorder interface {
	Capture(ctx context.Context, userID string) (ref string, err error)
}

// ContactSource supplies a user's emergency contacts. Implemented by the
// contact service.
type ContactSource interface {
	ListByUser(ctx context.Context, userID string) ([]*contact.Contact, error)
}

// SafetyAlert is one persisted alert history entry.
type SafetyAlert struct {
	ID         string
	UserID     string
	Type       notify.MessageType
	Location   *geo.Coordinate
	GeofenceID string
	Detail     string

	// Notified is the number of contacts the message reached; Partial is
	// set when some deliveries failed but the dispatch itself succeeded.
	Notified int
	Partial  bool

	Read      bool
	CreatedAt time.Time
}

// DispatchResult summarizes one dispatch to the notification channel.
type DispatchResult struct {
	Alert  *SafetyAlert
	Status Status

	// Failed lists the per-contact deliveries that did not go through.
	// Partial is true when Failed is non-empty but the dispatch succeeded.
	Failed  []notify.Delivery
	Partial bool
}
