package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/contact"
	"github.com/saferoute/saferoute/internal/notify"
	"github.com/saferoute/saferoute/internal/tracker"
	"github.com/saferoute/saferoute/pkg/geo"
)

// Dispatcher defaults.
const (
	// DefaultLocationTimeout bounds location acquisition during SOS.
	DefaultLocationTimeout = 8 * time.Second

	// DefaultEvidenceCap hard-caps background evidence recording.
	DefaultEvidenceCap = 10 * time.Second

	// DefaultSafeCooldown is how long a user stays in StatusSafe before
	// returning to StatusIdle.
	DefaultSafeCooldown = 5 * time.Second

	// DefaultZoneAlertWindow suppresses repeated zone alerts for the same
	// geofence within this window.
	DefaultZoneAlertWindow = 30 * time.Second
)

// DispatcherConfig holds configuration for the alert dispatcher.
type DispatcherConfig struct {
	// Gateway is the outbound notification channel (required).
	Gateway notify.Gateway

	// Contacts supplies emergency contacts (required).
	Contacts ContactSource

	// History persists alert records (required).
	History Repository

	// Location acquires the user's position for SOS without a cached fix
	// (optional).
	Location LocationSource

	// Evidence records audio/video during SOS (optional).
	Evidence EvidenceRecorder

	// Logger for dispatcher operations.
	Logger zerolog.Logger

	// LocationTimeout overrides DefaultLocationTimeout when > 0.
	LocationTimeout time.Duration

	// EvidenceCap overrides DefaultEvidenceCap when > 0.
	EvidenceCap time.Duration

	// SafeCooldown overrides DefaultSafeCooldown when > 0.
	SafeCooldown time.Duration

	// ZoneAlertWindow overrides DefaultZoneAlertWindow when > 0.
	ZoneAlertWindow time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// userAlertState is the dispatcher's per-user bookkeeping.
type userAlertState struct {
	status   Status
	safeTill time.Time

	// lastZoneAlert records when each geofence last fired a zone alert.
	lastZoneAlert map[string]time.Time
}

// Dispatcher is the alert state machine. It consumes geofence transition
// events and manual SOS/safe actions, deduplicates repeated alerts and hands
// structured messages to the notification gateway.
type Dispatcher struct {
	gateway  notify.Gateway
	contacts ContactSource
	history  Repository
	location LocationSource
	evidence EvidenceRecorder
	logger   zerolog.Logger

	locationTimeout time.Duration
	evidenceCap     time.Duration
	safeCooldown    time.Duration
	zoneAlertWindow time.Duration
	clock           func() time.Time

	mu    sync.Mutex
	users map[string]*userAlertState

	captures sync.WaitGroup
}

// NewDispatcher creates a new alert dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	locationTimeout := cfg.LocationTimeout
	if locationTimeout <= 0 {
		locationTimeout = DefaultLocationTimeout
	}
	evidenceCap := cfg.EvidenceCap
	if evidenceCap <= 0 {
		evidenceCap = DefaultEvidenceCap
	}
	safeCooldown := cfg.SafeCooldown
	if safeCooldown <= 0 {
		safeCooldown = DefaultSafeCooldown
	}
	zoneAlertWindow := cfg.ZoneAlertWindow
	if zoneAlertWindow <= 0 {
		zoneAlertWindow = DefaultZoneAlertWindow
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Dispatcher{
		gateway:         cfg.Gateway,
		contacts:        cfg.Contacts,
		history:         cfg.History,
		location:        cfg.Location,
		evidence:        cfg.Evidence,
		logger:          cfg.Logger,
		locationTimeout: locationTimeout,
		evidenceCap:     evidenceCap,
		safeCooldown:    safeCooldown,
		zoneAlertWindow: zoneAlertWindow,
		clock:           clock,
		users:           make(map[string]*userAlertState),
	}
}

// Status returns the user's current alert state. A user parked in
// StatusSafe falls back to StatusIdle once the cool-down elapses.
func (d *Dispatcher) Status(userID string) Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statusLocked(userID)
}

func (d *Dispatcher) statusLocked(userID string) Status {
	state, ok := d.users[userID]
	if !ok {
		return StatusIdle
	}
	if state.status == StatusSafe && !d.clock().Before(state.safeTill) {
		state.status = StatusIdle
	}
	return state.status
}

// TriggerSOS fires a manual SOS: acquires the user's location if none is
// supplied, notifies every emergency contact over SMS and voice, and starts
// a capped background evidence capture that never blocks delivery.
func (d *Dispatcher) TriggerSOS(ctx context.Context, userID string, loc *geo.Coordinate) (*DispatchResult, error) {
	location, err := d.resolveLocation(ctx, userID, loc)
	if err != nil {
		return nil, err
	}

	contacts, err := d.loadContacts(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Evidence capture starts before delivery and runs independently of it.
	d.startEvidenceCapture(userID)

	result, err := d.gateway.Send(ctx, notify.Request{
		Contacts: toNotifyContacts(contacts),
		Message: notify.Message{
			UserID:    userID,
			Type:      notify.MessageSOS,
			Location:  location,
			Detail:    "Emergency SOS triggered",
			Timestamp: d.clock(),
		},
		Channels: notify.Channels{SMS: true, Call: true, Push: true},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDeliveryFailed, err)
	}

	d.setStatus(userID, StatusSOS)

	record := d.record(ctx, &SafetyAlert{
		UserID:   userID,
		Type:     notify.MessageSOS,
		Location: location,
		Detail:   "Emergency SOS triggered",
	}, result, len(contacts))

	d.logger.Info().
		Str("user_id", userID).
		Int("contacts", len(contacts)).
		Bool("partial", record.Partial).
		Msg("sos dispatched")

	return &DispatchResult{
		Alert:   record,
		Status:  StatusSOS,
		Failed:  result.Failed(),
		Partial: record.Partial,
	}, nil
}

// HandleTransition consumes a geofence transition event. Entering a danger
// zone while idle escalates to a zone alert; entering a caution zone records
// a notice without contacting anyone. Repeated alerts for the same geofence
// are deduplicated within the zone-alert window.
func (d *Dispatcher) HandleTransition(ctx context.Context, ev tracker.Event) error {
	switch ev.Severity {
	case tracker.SeverityAlert:
		return d.zoneAlert(ctx, ev)
	case tracker.SeverityNotice:
		loc := ev.Fix.Coordinate
		d.record(ctx, &SafetyAlert{
			UserID:     ev.UserID,
			Type:       notify.MessageNotice,
			Location:   &loc,
			GeofenceID: ev.Fence.ID,
			Detail:     "Entered caution zone " + ev.Fence.Name,
		}, nil, 0)
		return nil
	default:
		return nil
	}
}

func (d *Dispatcher) zoneAlert(ctx context.Context, ev tracker.Event) error {
	if !d.shouldZoneAlert(ev.UserID, ev.Fence.ID) {
		d.logger.Debug().
			Str("user_id", ev.UserID).
			Str("geofence_id", ev.Fence.ID).
			Msg("zone alert suppressed")
		return nil
	}

	contacts, err := d.loadContacts(ctx, ev.UserID)
	if err != nil {
		if errors.Is(err, ErrNoContacts) {
			// Still record the event so the user sees it in history.
			loc := ev.Fix.Coordinate
			d.record(ctx, &SafetyAlert{
				UserID:     ev.UserID,
				Type:       notify.MessageAlert,
				Location:   &loc,
				GeofenceID: ev.Fence.ID,
				Detail:     "Entered danger zone " + ev.Fence.Name,
			}, nil, 0)
			return nil
		}
		return err
	}

	loc := ev.Fix.Coordinate
	result, err := d.gateway.Send(ctx, notify.Request{
		Contacts: toNotifyContacts(contacts),
		Message: notify.Message{
			UserID:    ev.UserID,
			Type:      notify.MessageAlert,
			Location:  &loc,
			Detail:    "Entered danger zone " + ev.Fence.Name,
			Timestamp: d.clock(),
		},
		Channels: notify.Channels{SMS: true, Push: true},
	})
	if err != nil {
		return fmt.Errorf("%w: %s", ErrDeliveryFailed, err)
	}

	d.setStatus(ev.UserID, StatusAlert)
	d.record(ctx, &SafetyAlert{
		UserID:     ev.UserID,
		Type:       notify.MessageAlert,
		Location:   &loc,
		GeofenceID: ev.Fence.ID,
		Detail:     "Entered danger zone " + ev.Fence.Name,
	}, result, len(contacts))

	return nil
}

// MarkSafe sends a "safe" message to the user's contacts (SMS only) and
// parks the state machine in StatusSafe for the cool-down.
func (d *Dispatcher) MarkSafe(ctx context.Context, userID string, loc *geo.Coordinate) (*DispatchResult, error) {
	contacts, err := d.loadContacts(ctx, userID)
	if err != nil {
		return nil, err
	}

	result, err := d.gateway.Send(ctx, notify.Request{
		Contacts: toNotifyContacts(contacts),
		Message: notify.Message{
			UserID:    userID,
			Type:      notify.MessageSafe,
			Location:  loc,
			Detail:    "Marked safe",
			Timestamp: d.clock(),
		},
		Channels: notify.Channels{SMS: true},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDeliveryFailed, err)
	}

	d.mu.Lock()
	state := d.stateLocked(userID)
	state.status = StatusSafe
	state.safeTill = d.clock().Add(d.safeCooldown)
	d.mu.Unlock()

	record := d.record(ctx, &SafetyAlert{
		UserID:   userID,
		Type:     notify.MessageSafe,
		Location: loc,
		Detail:   "Marked safe",
	}, result, len(contacts))

	return &DispatchResult{
		Alert:   record,
		Status:  StatusSafe,
		Failed:  result.Failed(),
		Partial: record.Partial,
	}, nil
}

// Alerts returns the user's alert history, newest first.
func (d *Dispatcher) Alerts(ctx context.Context, userID string) ([]*SafetyAlert, error) {
	return d.history.ListByUser(ctx, userID)
}

// MarkRead flags an alert as read. Unknown ids are reported as (false, nil)
// rather than an error.
func (d *Dispatcher) MarkRead(ctx context.Context, id string) (bool, error) {
	err := d.history.MarkRead(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAlertNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Wait blocks until all background evidence captures finish. Called on
// shutdown.
func (d *Dispatcher) Wait() {
	d.captures.Wait()
}

// resolveLocation returns the supplied coordinate or acquires one from the
// location source, mapping failures to the typed LocationError kinds.
func (d *Dispatcher) resolveLocation(ctx context.Context, userID string, loc *geo.Coordinate) (*geo.Coordinate, error) {
	if loc != nil {
		return loc, nil
	}
	if d.location == nil {
		return nil, &LocationError{Kind: LocationUnavailable}
	}

	ctx, cancel := context.WithTimeout(ctx, d.locationTimeout)
	defer cancel()

	current, err := d.location.Current(ctx, userID)
	if err != nil {
		var locErr *LocationError
		if errors.As(err, &locErr) {
			return nil, locErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &LocationError{Kind: LocationTimeout, Err: err}
		}
		return nil, &LocationError{Kind: LocationUnavailable, Err: err}
	}

	return &current, nil
}

func (d *Dispatcher) loadContacts(ctx context.Context, userID string) ([]*contact.Contact, error) {
	contacts, err := d.contacts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, ErrNoContacts
	}
	return contacts, nil
}

// startEvidenceCapture launches a capped background recording. The capture
// context is detached from the request so it survives the SOS call.
func (d *Dispatcher) startEvidenceCapture(userID string) {
	if d.evidence == nil {
		return
	}

	d.captures.Add(1)
	go func() {
		defer d.captures.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.evidenceCap)
		defer cancel()

		ref, err := d.evidence.Capture(ctx, userID)
		if err != nil {
			d.logger.Warn().
				Err(err).
				Str("user_id", userID).
				Msg("evidence capture failed")
			return
		}

		d.logger.Info().
			Str("user_id", userID).
			Str("evidence_ref", ref).
			Msg("evidence captured")
	}()
}

// shouldZoneAlert applies the state machine and dedup window to a danger
// zone entry.
func (d *Dispatcher) shouldZoneAlert(userID, fenceID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.statusLocked(userID) != StatusIdle {
		return false
	}

	state := d.stateLocked(userID)
	now := d.clock()
	if last, ok := state.lastZoneAlert[fenceID]; ok && now.Sub(last) < d.zoneAlertWindow {
		return false
	}
	state.lastZoneAlert[fenceID] = now
	return true
}

func (d *Dispatcher) setStatus(userID string, status Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stateLocked(userID).status = status
}

func (d *Dispatcher) stateLocked(userID string) *userAlertState {
	state, ok := d.users[userID]
	if !ok {
		state = &userAlertState{
			status:        StatusIdle,
			lastZoneAlert: make(map[string]time.Time),
		}
		d.users[userID] = state
	}
	return state
}

// record persists an alert history entry and returns it. Persistence
// failures are logged, never propagated: losing a history row must not fail
// an alert that already reached the contacts.
func (d *Dispatcher) record(ctx context.Context, a *SafetyAlert, result *notify.Result, notified int) *SafetyAlert {
	a.ID = "al_" + uuid.New().String()[:22]
	a.CreatedAt = d.clock()
	a.Notified = notified
	if result != nil && len(result.Failed()) > 0 {
		a.Partial = true
		a.Notified = notified - len(uniqueContacts(result.Failed()))
	}

	if err := d.history.Create(ctx, a); err != nil {
		d.logger.Error().
			Err(err).
			Str("user_id", a.UserID).
			Str("type", string(a.Type)).
			Msg("failed to persist alert record")
	}
	return a
}

func toNotifyContacts(contacts []*contact.Contact) []notify.Contact {
	result := make([]notify.Contact, 0, len(contacts))
	for _, c := range contacts {
		result = append(result, notify.Contact{
			ID:    c.ID,
			Name:  c.Name,
			Phone: c.Phone,
		})
	}
	return result
}

func uniqueContacts(deliveries []notify.Delivery) map[string]struct{} {
	ids := make(map[string]struct{}, len(deliveries))
	for _, del := range deliveries {
		ids[del.ContactID] = struct{}{}
	}
	return ids
}

// Ensure Dispatcher consumes tracker transitions.
var _ tracker.TransitionHandler = (*Dispatcher)(nil)
