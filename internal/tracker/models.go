// Package tracker maintains per-user geofence membership from a stream of
// location fixes and emits enter/exit transition events with debouncing.
package tracker

import (
	"errors"
	"time"

	"github.com/saferoute/saferoute/internal/geofence"
	"github.com/saferoute/saferoute/pkg/geo"
)

// Tracker errors.
var (
	// ErrFixInFlight indicates a fix arrived while a previous fix for the
	// same user was still being processed. The new fix is dropped, not
	// queued; the next fix carries fresher data anyway.
	ErrFixInFlight = errors.New("location fix dropped: previous fix still in flight")

	// ErrInvalidFix indicates the fix carries out-of-range coordinates.
	ErrInvalidFix = errors.New("invalid location fix")
)

// Fix is one location update for a user.
type Fix struct {
	UserID     string
	Coordinate geo.Coordinate

	// AccuracyM is the reported horizontal accuracy in meters, zero when
	// the device does not supply one.
	AccuracyM float64

	RecordedAt time.Time
}

// EventType is the direction of a membership flip.
type EventType string

// Transition event types.
const (
	EventEnter EventType = "enter"
	EventExit  EventType = "exit"
)

// Severity classifies how a transition should be surfaced.
type Severity string

// Transition severities. Entering a danger zone escalates to the alert
// dispatcher; entering a caution zone is a non-blocking notice; everything
// else is informational.
const (
	SeverityInfo   Severity = "info"
	SeverityNotice Severity = "notice"
	SeverityAlert  Severity = "alert"
)

// Event is an enter or exit transition for one user and one geofence.
type Event struct {
	UserID   string
	Fence    *geofence.Fence
	Type     EventType
	Severity Severity
	Fix      Fix
	At       time.Time
}

// severityFor maps a transition to its surfacing severity.
func severityFor(fenceType geofence.Type, et EventType) Severity {
	if et != EventEnter {
		return SeverityInfo
	}
	switch fenceType {
	case geofence.TypeDanger:
		return SeverityAlert
	case geofence.TypeCaution:
		return SeverityNotice
	default:
		return SeverityInfo
	}
}
