package tracker_test

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

	"github.com/saferoute/saferoute/internal/geofence"
	"github.com/saferoute/saferoute/internal/tracker"
	"github.com/saferoute/saferoute/pkg/geo"
)

var (
	zoneCenter = geo.Coordinate{Lat: 12.9716, Lon: 77.5946}
	insidePt   = geo.Coordinate{Lat: 12.9716, Lon: 77.5946}
	outsidePt  = geo.Coordinate{Lat: 12.9850, Lon: 77.5946} // ~1.5km north
)

type stubFences struct {
	mu     sync.Mutex
	fences []*geofence.Fence
	err    error

	// block, when set, is waited on before returning. started is closed
	// once Active has been entered.
	block   chan struct{}
	started chan struct{}
}

func (s *stubFences) Active(context.Context) ([]*geofence.Fence, error) {
	s.mu.Lock()
	fences, err, block, started := s.fences, s.err, s.block, s.started
	s.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	return fences, err
}

func (s *stubFences) set(fences []*geofence.Fence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fences = fences
}

type recordingHandler struct {
	mu     sync.Mutex
	events []tracker.Event
	err    error
}

func (r *recordingHandler) HandleTransition(_ context.Context, ev tracker.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingHandler) all() []tracker.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tracker.Event(nil), r.events...)
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

func circleFence(id string, typ geofence.Type, center geo.Coordinate, radiusKm float64) *geofence.Fence {
	return &geofence.Fence{
		ID:       id,
		Name:     id,
		Type:     typ,
		Points:   []geo.Coordinate{center},
		RadiusKm: radiusKm,
	}
}

func newTracker(t *testing.T, cfg tracker.Config) *tracker.Tracker {
	t.Helper()
	cfg.Logger = zerolog.New(io.Discard)
	return tracker.New(cfg)
}

func fixAt(userID string, c geo.Coordinate) tracker.Fix {
	return tracker.Fix{UserID: userID, Coordinate: c, RecordedAt: time.Now()}
}

func feed(t *testing.T, tr *tracker.Tracker, userID string, clk *fakeClock, step time.Duration, points ...geo.Coordinate) []tracker.Event {
	t.Helper()
	var all []tracker.Event
	for _, p := range points {
		events, err := tr.ProcessFix(context.Background(), fixAt(userID, p))
		require.NoError(t, err)
		all = append(all, events...)
		if clk != nil {
			clk.Advance(step)
		}
	}
	return all
}

func TestTracker_EnterExitSequence(t *testing.T) {
	fences := &stubFences{fences: []*geofence.Fence{
		circleFence("gf_danger", geofence.TypeDanger, zoneCenter, 0.5),
	}}
	clk := &fakeClock{now: time.Now()}
	tr := newTracker(t, tracker.Config{Fences: fences, Clock: clk.Now})

	events := feed(t, tr, "user-1", clk, 10*time.Second,
		outsidePt, insidePt, insidePt, outsidePt)

	require.Len(t, events, 2)
	assert.Equal(t, tracker.EventEnter, events[0].Type)
	assert.Equal(t, "gf_danger", events[0].Fence.ID)
	assert.Equal(t, tracker.EventExit, events[1].Type)
	assert.Empty(t, tr.Inside("user-1"))
}

func TestTracker_BoundaryJitterSuppressed(t *testing.T) {
	fences := &stubFences{fences: []*geofence.Fence{
		circleFence("gf_zone", geofence.TypeCaution, zoneCenter, 0.5),
	}}
	clk := &fakeClock{now: time.Now()}
	tr := newTracker(t, tracker.Config{Fences: fences, Clock: clk.Now})

	// One fix per second straddling the boundary: only the first enter and
	// the first exit fire within the 5s window.
	events := feed(t, tr, "user-1", clk, time.Second,
		insidePt, outsidePt, insidePt, outsidePt, insidePt)

	require.Len(t, events, 2)
	assert.Equal(t, tracker.EventEnter, events[0].Type)
	assert.Equal(t, tracker.EventExit, events[1].Type)

	// Membership still tracks the latest fix even when events were
	// suppressed.
	assert.Equal(t, []string{"gf_zone"}, tr.Inside("user-1"))
}

func TestTracker_MinStableFixesDwell(t *testing.T) {
	fences := &stubFences{fences: []*geofence.Fence{
		circleFence("gf_zone", geofence.TypeDanger, zoneCenter, 0.5),
	}}
	clk := &fakeClock{now: time.Now()}
	tr := newTracker(t, tracker.Config{
		Fences:         fences,
		Clock:          clk.Now,
		MinStableFixes: 2,
	})

	// A single-fix blip does not confirm the flip.
	events := feed(t, tr, "user-1", clk, 10*time.Second,
		outsidePt, insidePt, outsidePt, outsidePt)
	assert.Empty(t, events)

	// Two consecutive inside fixes do.
	events = feed(t, tr, "user-1", clk, 10*time.Second, insidePt, insidePt)
	require.Len(t, events, 1)
	assert.Equal(t, tracker.EventEnter, events[0].Type)
}

func TestTracker_SeverityByFenceType(t *testing.T) {
	fences := &stubFences{fences: []*geofence.Fence{
		circleFence("gf_danger", geofence.TypeDanger, zoneCenter, 0.5),
	}}
	handler := &recordingHandler{}
	clk := &fakeClock{now: time.Now()}
	tr := newTracker(t, tracker.Config{Fences: fences, Handler: handler, Clock: clk.Now})

	events := feed(t, tr, "user-1", clk, 10*time.Second, outsidePt, insidePt, outsidePt)
	require.Len(t, events, 2)

	assert.Equal(t, tracker.SeverityAlert, events[0].Severity)
	assert.Equal(t, tracker.SeverityInfo, events[1].Severity)

	// Handler saw everything the caller did.
	assert.Equal(t, events, handler.all())

	// Caution zones only produce a notice.
	fences.set([]*geofence.Fence{
		circleFence("gf_caution", geofence.TypeCaution, zoneCenter, 0.5),
	})
	events = feed(t, tr, "user-2", clk, 10*time.Second, outsidePt, insidePt)
	require.Len(t, events, 1)
	assert.Equal(t, tracker.SeverityNotice, events[0].Severity)
}

func TestTracker_OverlappingZones(t *testing.T) {
	fences := &stubFences{fences: []*geofence.Fence{
		circleFence("gf_a", geofence.TypeDanger, zoneCenter, 0.5),
		circleFence("gf_b", geofence.TypeCaution, zoneCenter, 1.0),
	}}
	clk := &fakeClock{now: time.Now()}
	tr := newTracker(t, tracker.Config{Fences: fences, Clock: clk.Now})

	events := feed(t, tr, "user-1", clk, 10*time.Second, outsidePt, insidePt)
	require.Len(t, events, 2)
	assert.ElementsMatch(t, []string{"gf_a", "gf_b"}, []string{events[0].Fence.ID, events[1].Fence.ID})
	assert.ElementsMatch(t, []string{"gf_a", "gf_b"}, tr.Inside("user-1"))
}

func TestTracker_HandlerErrorDoesNotFailProcessing(t *testing.T) {
	fences := &stubFences{fences: []*geofence.Fence{
		circleFence("gf_zone", geofence.TypeDanger, zoneCenter, 0.5),
	}}
	handler := &recordingHandler{err: errors.New("notifier down")}
	tr := newTracker(t, tracker.Config{Fences: fences, Handler: handler})

	events, err := tr.ProcessFix(context.Background(), fixAt("user-1", insidePt))
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestTracker_ConcurrentFixDropped(t *testing.T) {
	fences := &stubFences{
		fences:  []*geofence.Fence{circleFence("gf_zone", geofence.TypeDanger, zoneCenter, 0.5)},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	tr := newTracker(t, tracker.Config{Fences: fences})

	firstDone := make(chan error, 1)
	go func() {
		_, err := tr.ProcessFix(context.Background(), fixAt("user-1", insidePt))
		firstDone <- err
	}()
	<-fences.started

	// Same user while the first fix is in flight: dropped.
	_, err := tr.ProcessFix(context.Background(), fixAt("user-1", insidePt))
	assert.ErrorIs(t, err, tracker.ErrFixInFlight)

	close(fences.block)
	require.NoError(t, <-firstDone)

	// After the first fix completes, the user can be processed again.
	fences.mu.Lock()
	fences.block, fences.started = nil, nil
	fences.mu.Unlock()
	_, err = tr.ProcessFix(context.Background(), fixAt("user-1", insidePt))
	require.NoError(t, err)
}

func TestTracker_InvalidFix(t *testing.T) {
	tr := newTracker(t, tracker.Config{Fences: &stubFences{}})

	_, err := tr.ProcessFix(context.Background(), tracker.Fix{
		UserID:     "user-1",
		Coordinate: geo.Coordinate{Lat: 120, Lon: 77},
	})
	assert.ErrorIs(t, err, tracker.ErrInvalidFix)

	_, err = tr.ProcessFix(context.Background(), fixAt("", insidePt))
	assert.ErrorIs(t, err, tracker.ErrInvalidFix)
}

func TestTracker_RemovedFenceNoSyntheticExit(t *testing.T) {
	fence := circleFence("gf_zone", geofence.TypeDanger, zoneCenter, 0.5)
	fences := &stubFences{fences: []*geofence.Fence{fence}}
	clk := &fakeClock{now: time.Now()}
	tr := newTracker(t, tracker.Config{Fences: fences, Clock: clk.Now})

	events := feed(t, tr, "user-1", clk, 10*time.Second, insidePt)
	require.Len(t, events, 1)

	fences.set(nil)
	events = feed(t, tr, "user-1", clk, 10*time.Second, insidePt)
	assert.Empty(t, events)
	assert.Empty(t, tr.Inside("user-1"))
}

func TestTracker_FenceSourceFailure(t *testing.T) {
	fences := &stubFences{err: errors.New("store down")}
	tr := newTracker(t, tracker.Config{Fences: fences})

	_, err := tr.ProcessFix(context.Background(), fixAt("user-1", insidePt))
	require.Error(t, err)
}
