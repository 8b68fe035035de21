package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/geofence"
	"github.com/saferoute/saferoute/pkg/geo"
)

// Defaults for the debounce policy.
const (
	// DefaultMinStableFixes is the number of consecutive fixes that must
	// agree before a membership flip is confirmed. 1 means flips are
	// confirmed immediately.
	DefaultMinStableFixes = 1

	// DefaultMinEventInterval is the minimum time between identical events
	// (same fence, same direction) for one user. Suppresses alert storms
	// from a user walking along a fence boundary.
	DefaultMinEventInterval = 5 * time.Second
)

// FenceSource supplies the active geofences checked against each fix.
// Implemented by the geofence service.
type FenceSource interface {
	Active(ctx context.Context) ([]*geofence.Fence, error)
}

// TransitionHandler consumes transition events. Implemented by the alert
// dispatcher. Handler errors are logged, never propagated: a failing alert
// pipeline must not stall membership tracking.
type TransitionHandler interface {
	HandleTransition(ctx context.Context, event Event) error
}

// Config holds configuration for the tracker.
type Config struct {
	// Fences supplies active geofences (required).
	Fences FenceSource

	// Handler receives transition events (optional).
	Handler TransitionHandler

	// Logger for tracker operations.
	Logger zerolog.Logger

	// MinStableFixes overrides DefaultMinStableFixes when > 0.
	MinStableFixes int

	// MinEventInterval overrides DefaultMinEventInterval when > 0.
	MinEventInterval time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// userState is the confirmed membership bookkeeping for one user. It is only
// touched by the goroutine holding the user's in-flight slot.
type userState struct {
	inFlight bool

	// confirmed holds fence ids the user is currently inside.
	confirmed map[string]bool

	// streak counts consecutive fixes that disagree with confirmed
	// membership, per fence.
	streak map[string]int

	// lastEvent records when each (fence, direction) event last fired.
	lastEvent map[string]time.Time
}

// Tracker detects geofence enter/exit transitions from location fixes.
// Fixes are serialized per user: a fix arriving while the previous one is
// still being processed is dropped with ErrFixInFlight. Distinct users are
// processed concurrently.
type Tracker struct {
	fences  FenceSource
	handler TransitionHandler
	logger  zerolog.Logger

	minStableFixes   int
	minEventInterval time.Duration
	clock            func() time.Time

	mu    sync.Mutex
	users map[string]*userState
}

// New creates a new tracker.
func New(cfg Config) *Tracker {
	minStable := cfg.MinStableFixes
	if minStable <= 0 {
		minStable = DefaultMinStableFixes
	}
	minInterval := cfg.MinEventInterval
	if minInterval <= 0 {
		minInterval = DefaultMinEventInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Tracker{
		fences:           cfg.Fences,
		handler:          cfg.Handler,
		logger:           cfg.Logger,
		minStableFixes:   minStable,
		minEventInterval: minInterval,
		clock:            clock,
		users:            make(map[string]*userState),
	}
}

// ProcessFix recomputes the user's membership against every active geofence
// and returns the transition events this fix produced. Events are also
// forwarded to the configured handler.
func (t *Tracker) ProcessFix(ctx context.Context, fix Fix) ([]Event, error) {
	if fix.UserID == "" || !geo.ValidCoordinate(fix.Coordinate) {
		return nil, ErrInvalidFix
	}

	state, acquired := t.acquire(fix.UserID)
	if !acquired {
		t.logger.Debug().
			Str("user_id", fix.UserID).
			Msg("dropping location fix, previous fix still in flight")
		return nil, ErrFixInFlight
	}
	defer t.release(fix.UserID)

	fences, err := t.fences.Active(ctx)
	if err != nil {
		return nil, err
	}

	now := t.clock()
	var events []Event
	seen := make(map[string]bool, len(fences))

	for _, f := range fences {
		seen[f.ID] = true
		if ev, ok := t.observe(state, f, f.Contains(fix.Coordinate), fix, now); ok {
			events = append(events, ev)
		}
	}

	// Fences removed since the last fix: drop their state without emitting
	// a synthetic exit.
	for id := range state.confirmed {
		if !seen[id] {
			delete(state.confirmed, id)
			delete(state.streak, id)
		}
	}

	for _, ev := range events {
		t.logger.Info().
			Str("user_id", ev.UserID).
			Str("geofence_id", ev.Fence.ID).
			Str("event", string(ev.Type)).
			Str("severity", string(ev.Severity)).
			Msg("geofence transition")

		if t.handler == nil {
			continue
		}
		if err := t.handler.HandleTransition(ctx, ev); err != nil {
			t.logger.Warn().
				Err(err).
				Str("user_id", ev.UserID).
				Str("geofence_id", ev.Fence.ID).
				Msg("transition handler failed")
		}
	}

	return events, nil
}

// Inside returns the ids of the fences the user is currently confirmed
// inside of.
func (t *Tracker) Inside(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.users[userID]
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(state.confirmed))
	for id, inside := range state.confirmed {
		if inside {
			ids = append(ids, id)
		}
	}
	return ids
}

// Forget drops all membership state for a user, e.g. on session end.
func (t *Tracker) Forget(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.users, userID)
}

// observe applies one containment observation to the user's state. It
// returns an event when a debounced membership flip is confirmed.
func (t *Tracker) observe(state *userState, f *geofence.Fence, inside bool, fix Fix, now time.Time) (Event, bool) {
	if inside == state.confirmed[f.ID] {
		delete(state.streak, f.ID)
		return Event{}, false
	}

	state.streak[f.ID]++
	if state.streak[f.ID] < t.minStableFixes {
		return Event{}, false
	}

	// Flip confirmed. The flip sticks even if the event itself is
	// suppressed by the interval guard below.
	if inside {
		state.confirmed[f.ID] = true
	} else {
		delete(state.confirmed, f.ID)
	}
	delete(state.streak, f.ID)

	eventType := EventExit
	if inside {
		eventType = EventEnter
	}

	key := f.ID + "|" + string(eventType)
	if last, ok := state.lastEvent[key]; ok && now.Sub(last) < t.minEventInterval {
		return Event{}, false
	}
	state.lastEvent[key] = now

	return Event{
		UserID:   fix.UserID,
		Fence:    f,
		Type:     eventType,
		Severity: severityFor(f.Type, eventType),
		Fix:      fix,
		At:       now,
	}, true
}

// acquire claims the user's in-flight slot. Returns false when a fix for
// the same user is already being processed.
func (t *Tracker) acquire(userID string) (*userState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.users[userID]
	if !ok {
		state = &userState{
			confirmed: make(map[string]bool),
			streak:    make(map[string]int),
			lastEvent: make(map[string]time.Time),
		}
		t.users[userID] = state
	}
	if state.inFlight {
		return nil, false
	}
	state.inFlight = true
	return state, true
}

func (t *Tracker) release(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.users[userID]; ok {
		state.inFlight = false
	}
}
