package alert_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/alert"
	"github.com/saferoute/saferoute/internal/contact"
	"github.com/saferoute/saferoute/internal/geofence"
	"github.com/saferoute/saferoute/internal/notify"
	"github.com/saferoute/saferoute/internal/tracker"
	"github.com/saferoute/saferoute/pkg/geo"
)

var testLocation = geo.Coordinate{Lat: 12.9716, Lon: 77.5946}

type stubGateway struct {
	mu       sync.Mutex
	requests []notify.Request
	result   *notify.Result
	err      error
}

func (g *stubGateway) Send(_ context.Context, req notify.Request) (*notify.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	if g.result != nil {
		return g.result, nil
	}

	// All deliveries succeed by default.
	var result notify.Result
	for _, c := range req.Contacts {
		result.Deliveries = append(result.Deliveries, notify.Delivery{
			ContactID: c.ID,
			Channel:   notify.ChannelSMS,
			Delivered: true,
		})
	}
	return &result, nil
}

func (g *stubGateway) Name() string { return "stub" }

func (g *stubGateway) sent() []notify.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]notify.Request(nil), g.requests...)
}

type stubLocation struct {
	coord geo.Coordinate
	err   error
	block bool
}

func (s *stubLocation) Current(ctx context.Context, _ string) (geo.Coordinate, error) {
	if s.block {
		<-ctx.Done()
		return geo.Coordinate{}, ctx.Err()
	}
	if s.err != nil {
		return geo.Coordinate{}, s.err
	}
	return s.coord, nil
}

type stubEvidence struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubEvidence) Capture(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "ev_recording_1", nil
}

func (s *stubEvidence) captureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	dispatcher *alert.Dispatcher
	gateway    *stubGateway
	contacts   *contact.Service
	history    *alert.InMemoryRepository
	evidence   *stubEvidence
	clock      *fakeClock
}

func newFixture(t *testing.T, mutate func(*alert.DispatcherConfig)) *fixture {
	t.Helper()

	gateway := &stubGateway{}
	contacts := contact.NewService(contact.ServiceConfig{
		Repository: contact.NewInMemoryRepository(),
		Logger:     zerolog.New(io.Discard),
	})
	history := alert.NewInMemoryRepository()
	evidence := &stubEvidence{}
	clock := &fakeClock{now: time.Now()}

	cfg := alert.DispatcherConfig{
		Gateway:  gateway,
		Contacts: contacts,
		History:  history,
		Location: &stubLocation{coord: testLocation},
		Evidence: evidence,
		Logger:   zerolog.New(io.Discard),
		Clock:    clock.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	return &fixture{
		dispatcher: alert.NewDispatcher(cfg),
		gateway:    gateway,
		contacts:   contacts,
		history:    history,
		evidence:   evidence,
		clock:      clock,
	}
}

func (f *fixture) addContact(t *testing.T, userID, name string) *contact.Contact {
	t.Helper()
	c, err := f.contacts.Create(context.Background(), contact.CreateInput{
		UserID: userID,
		Name:   name,
		Phone:  "+919900000001",
	})
	require.NoError(t, err)
	return c
}

func dangerEnter(userID, fenceID string) tracker.Event {
	return tracker.Event{
		UserID: userID,
		Fence: &geofence.Fence{
			ID:       fenceID,
			Name:     "Old mill road",
			Type:     geofence.TypeDanger,
			Points:   []geo.Coordinate{testLocation},
			RadiusKm: 0.5,
		},
		Type:     tracker.EventEnter,
		Severity: tracker.SeverityAlert,
		Fix:      tracker.Fix{UserID: userID, Coordinate: testLocation},
	}
}

func TestDispatcher_TriggerSOS(t *testing.T) {
	f := newFixture(t, nil)
	f.addContact(t, "user-1", "Asha")
	f.addContact(t, "user-1", "Priya")

	result, err := f.dispatcher.TriggerSOS(context.Background(), "user-1", &testLocation)
	require.NoError(t, err)

	assert.Equal(t, alert.StatusSOS, result.Status)
	assert.False(t, result.Partial)
	assert.Equal(t, alert.StatusSOS, f.dispatcher.Status("user-1"))

	sent := f.gateway.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.MessageSOS, sent[0].Message.Type)
	assert.True(t, sent[0].Channels.SMS)
	assert.True(t, sent[0].Channels.Call)
	assert.Len(t, sent[0].Contacts, 2)

	// Evidence capture ran alongside delivery.
	f.dispatcher.Wait()
	assert.Equal(t, 1, f.evidence.captureCount())

	alerts, err := f.dispatcher.Alerts(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, notify.MessageSOS, alerts[0].Type)
	assert.Equal(t, 2, alerts[0].Notified)
}

func TestDispatcher_TriggerSOS_NoContacts(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.dispatcher.TriggerSOS(context.Background(), "user-1", &testLocation)
	assert.ErrorIs(t, err, alert.ErrNoContacts)
	assert.NotErrorIs(t, err, alert.ErrDeliveryFailed)
	assert.Equal(t, alert.StatusIdle, f.dispatcher.Status("user-1"))
}

func TestDispatcher_TriggerSOS_GatewayFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.addContact(t, "user-1", "Asha")
	f.gateway.err = notify.ErrGatewayUnavailable

	_, err := f.dispatcher.TriggerSOS(context.Background(), "user-1", &testLocation)
	assert.ErrorIs(t, err, alert.ErrDeliveryFailed)
	assert.Equal(t, alert.StatusIdle, f.dispatcher.Status("user-1"))
}

func TestDispatcher_TriggerSOS_PartialFailure(t *testing.T) {
	f := newFixture(t, nil)
	first := f.addContact(t, "user-1", "Asha")
	second := f.addContact(t, "user-1", "Priya")

	f.gateway.result = &notify.Result{Deliveries: []notify.Delivery{
		{ContactID: first.ID, Channel: notify.ChannelSMS, Delivered: true},
		{ContactID: second.ID, Channel: notify.ChannelSMS, Delivered: false, Error: "unreachable"},
	}}

	result, err := f.dispatcher.TriggerSOS(context.Background(), "user-1", &testLocation)
	require.NoError(t, err)

	assert.True(t, result.Partial)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, second.ID, result.Failed[0].ContactID)
	assert.Equal(t, 1, result.Alert.Notified)
}

func TestDispatcher_TriggerSOS_AcquiresLocation(t *testing.T) {
	f := newFixture(t, nil)
	f.addContact(t, "user-1", "Asha")

	_, err := f.dispatcher.TriggerSOS(context.Background(), "user-1", nil)
	require.NoError(t, err)

	sent := f.gateway.sent()
	require.Len(t, sent, 1)
	require.NotNil(t, sent[0].Message.Location)
	assert.Equal(t, testLocation, *sent[0].Message.Location)
}

func TestDispatcher_TriggerSOS_LocationErrors(t *testing.T) {
	t.Run("denied", func(t *testing.T) {
		f := newFixture(t, func(cfg *alert.DispatcherConfig) {
			cfg.Location = &stubLocation{err: &alert.LocationError{Kind: alert.LocationDenied}}
		})
		f.addContact(t, "user-1", "Asha")

		_, err := f.dispatcher.TriggerSOS(context.Background(), "user-1", nil)
		var locErr *alert.LocationError
		require.ErrorAs(t, err, &locErr)
		assert.Equal(t, alert.LocationDenied, locErr.Kind)
	})

	t.Run("timeout", func(t *testing.T) {
		f := newFixture(t, func(cfg *alert.DispatcherConfig) {
			cfg.Location = &stubLocation{block: true}
			cfg.LocationTimeout = 20 * time.Millisecond
		})
		f.addContact(t, "user-1", "Asha")

		_, err := f.dispatcher.TriggerSOS(context.Background(), "user-1", nil)
		var locErr *alert.LocationError
		require.ErrorAs(t, err, &locErr)
		assert.Equal(t, alert.LocationTimeout, locErr.Kind)
	})

	t.Run("unavailable when no source", func(t *testing.T) {
		f := newFixture(t, func(cfg *alert.DispatcherConfig) {
			cfg.Location = nil
		})
		f.addContact(t, "user-1", "Asha")

		_, err := f.dispatcher.TriggerSOS(context.Background(), "user-1", nil)
		var locErr *alert.LocationError
		require.ErrorAs(t, err, &locErr)
		assert.Equal(t, alert.LocationUnavailable, locErr.Kind)
	})
}

func TestDispatcher_TriggerSOS_EvidenceFailureDoesNotBlock(t *testing.T) {
	f := newFixture(t, nil)
	f.addContact(t, "user-1", "Asha")
	f.evidence.err = errors.New("camera unavailable")

	result, err := f.dispatcher.TriggerSOS(context.Background(), "user-1", &testLocation)
	require.NoError(t, err)
	assert.Equal(t, alert.StatusSOS, result.Status)

	f.dispatcher.Wait()
	assert.Equal(t, 1, f.evidence.captureCount())
}

func TestDispatcher_HandleTransition_DangerZoneAlert(t *testing.T) {
	f := newFixture(t, nil)
	f.addContact(t, "user-1", "Asha")

	require.NoError(t, f.dispatcher.HandleTransition(context.Background(), dangerEnter("user-1", "gf_1")))

	assert.Equal(t, alert.StatusAlert, f.dispatcher.Status("user-1"))

	sent := f.gateway.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.MessageAlert, sent[0].Message.Type)
	assert.True(t, sent[0].Channels.SMS)
	assert.False(t, sent[0].Channels.Call)

	// A second danger entry while already alerted is deduplicated.
	require.NoError(t, f.dispatcher.HandleTransition(context.Background(), dangerEnter("user-1", "gf_1")))
	assert.Len(t, f.gateway.sent(), 1)
}

func TestDispatcher_HandleTransition_ZoneAlertWindow(t *testing.T) {
	f := newFixture(t, nil)
	f.addContact(t, "user-1", "Asha")

	require.NoError(t, f.dispatcher.HandleTransition(context.Background(), dangerEnter("user-1", "gf_1")))
	require.Len(t, f.gateway.sent(), 1)

	// Mark safe and wait out the cool-down: status is idle again, but the
	// same fence stays suppressed inside the zone-alert window.
	_, err := f.dispatcher.MarkSafe(context.Background(), "user-1", &testLocation)
	require.NoError(t, err)
	f.clock.Advance(6 * time.Second)
	require.Equal(t, alert.StatusIdle, f.dispatcher.Status("user-1"))

	require.NoError(t, f.dispatcher.HandleTransition(context.Background(), dangerEnter("user-1", "gf_1")))
	assert.Len(t, f.gateway.sent(), 2) // only the mark-safe message was added

	// Past the window the same fence can alert again.
	f.clock.Advance(31 * time.Second)
	require.NoError(t, f.dispatcher.HandleTransition(context.Background(), dangerEnter("user-1", "gf_1")))
	assert.Len(t, f.gateway.sent(), 3)
}

func TestDispatcher_HandleTransition_CautionNotice(t *testing.T) {
	f := newFixture(t, nil)
	f.addContact(t, "user-1", "Asha")

	ev := dangerEnter("user-1", "gf_2")
	ev.Fence.Type = geofence.TypeCaution
	ev.Severity = tracker.SeverityNotice

	require.NoError(t, f.dispatcher.HandleTransition(context.Background(), ev))

	// No contact dispatch, but the notice lands in history.
	assert.Empty(t, f.gateway.sent())
	assert.Equal(t, alert.StatusIdle, f.dispatcher.Status("user-1"))

	alerts, err := f.dispatcher.Alerts(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, notify.MessageNotice, alerts[0].Type)
	assert.Equal(t, "gf_2", alerts[0].GeofenceID)
}

func TestDispatcher_HandleTransition_NoContactsStillRecorded(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.dispatcher.HandleTransition(context.Background(), dangerEnter("user-1", "gf_1")))

	assert.Empty(t, f.gateway.sent())
	alerts, err := f.dispatcher.Alerts(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, notify.MessageAlert, alerts[0].Type)
}

func TestDispatcher_MarkSafe(t *testing.T) {
	f := newFixture(t, nil)
	f.addContact(t, "user-1", "Asha")

	_, err := f.dispatcher.TriggerSOS(context.Background(), "user-1", &testLocation)
	require.NoError(t, err)
	require.Equal(t, alert.StatusSOS, f.dispatcher.Status("user-1"))

	result, err := f.dispatcher.MarkSafe(context.Background(), "user-1", &testLocation)
	require.NoError(t, err)
	assert.Equal(t, alert.StatusSafe, result.Status)

	sent := f.gateway.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, notify.MessageSafe, sent[1].Message.Type)
	assert.True(t, sent[1].Channels.SMS)
	assert.False(t, sent[1].Channels.Call)

	// Safe decays to idle after the cool-down.
	assert.Equal(t, alert.StatusSafe, f.dispatcher.Status("user-1"))
	f.clock.Advance(6 * time.Second)
	assert.Equal(t, alert.StatusIdle, f.dispatcher.Status("user-1"))
}

func TestDispatcher_MarkRead(t *testing.T) {
	f := newFixture(t, nil)
	f.addContact(t, "user-1", "Asha")

	_, err := f.dispatcher.TriggerSOS(context.Background(), "user-1", &testLocation)
	require.NoError(t, err)

	alerts, err := f.dispatcher.Alerts(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.False(t, alerts[0].Read)

	ok, err := f.dispatcher.MarkRead(context.Background(), alerts[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)

	alerts, err = f.dispatcher.Alerts(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, alerts[0].Read)

	// Unknown ids are a silent no-op.
	ok, err = f.dispatcher.MarkRead(context.Background(), "al_missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
