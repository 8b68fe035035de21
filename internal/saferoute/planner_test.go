package saferoute_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/geocode"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/saferoute"
	"github.com/saferoute/saferoute/internal/threat"
	"github.com/saferoute/saferoute/pkg/geo"
)

// MG Road to Cubbon Park, roughly 550m apart.
var (
	mgRoad     = geo.Coordinate{Lat: 12.9716, Lon: 77.5946}
	cubbonPark = geo.Coordinate{Lat: 12.9763, Lon: 77.5929}
)

type stubRouter struct {
	fn    func(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error)
	calls int
}

func (s *stubRouter) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	s.calls++
	return s.fn(ctx, req)
}

func (s *stubRouter) Name() string { return "stub" }

type stubGeocoder struct {
	results map[string]geo.Coordinate
	calls   int
}

func (s *stubGeocoder) Search(_ context.Context, req geocode.SearchRequest) ([]geocode.Result, error) {
	s.calls++
	c, ok := s.results[req.Query]
	if !ok {
		return nil, geocode.ErrNotFound
	}
	return []geocode.Result{{Name: req.Query, Coordinate: c, Confidence: 0.9}}, nil
}

func (s *stubGeocoder) Name() string { return "stub" }

type stubThreats struct {
	locations []*threat.Location
	err       error
	calls     int
}

func (s *stubThreats) Near(context.Context, geo.Coordinate, float64) ([]*threat.Location, error) {
	s.calls++
	return s.locations, s.err
}

func newPlanner(router routing.Provider, geocoder geocode.Provider, threats saferoute.ThreatSource) *saferoute.Planner {
	return saferoute.NewPlanner(saferoute.PlannerConfig{
		Routing:  router,
		Geocoder: geocoder,
		Threats:  threats,
		Logger:   zerolog.New(io.Discard),
	})
}

func makeRoute(distanceMeters int, coords ...geo.Coordinate) routing.Route {
	return routing.Route{
		GeometryPolyline: geo.Encode(coords),
		DistanceMeters:   distanceMeters,
		DurationSeconds:  distanceMeters, // walking pace, close enough for tests
	}
}

func highThreat(at geo.Coordinate) *threat.Location {
	return &threat.Location{
		ID:         "thr_test0000000000000001",
		Name:       "MG Road underpass",
		Coordinate: at,
		Level:      threat.LevelHigh,
		Category:   threat.CategoryHarassment,
	}
}

func fixedRoutes(routes ...routing.Route) func(context.Context, routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	return func(context.Context, routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
		return &routing.DirectionsResponse{Routes: routes, Provider: "stub"}, nil
	}
}

func coordRequest() saferoute.PlanRequest {
	return saferoute.PlanRequest{
		Origin:       saferoute.Endpoint{Coordinate: &mgRoad},
		Destination:  saferoute.Endpoint{Coordinate: &cubbonPark},
		Profile:      routing.ProfileWalk,
		AvoidThreats: true,
	}
}

func TestPlanner_Plan_PrefersSaferRoute(t *testing.T) {
	// Direct route passes right through a high-level threat; the detour keeps
	// every vertex well over 1km clear of it but is much longer. Endpoints
	// sit beyond the threat's capture window so only the direct route's
	// middle vertex picks up exposure.
	origin := geo.Coordinate{Lat: 12.9600, Lon: 77.5946}
	dest := geo.Coordinate{Lat: 12.9830, Lon: 77.5946}

	direct := makeRoute(2600,
		origin,
		mgRoad, // the threat location itself
		dest,
	)
	detour := makeRoute(4200,
		origin,
		geo.Coordinate{Lat: 12.9600, Lon: 77.6100},
		geo.Coordinate{Lat: 12.9830, Lon: 77.6100},
		dest,
	)

	router := &stubRouter{fn: fixedRoutes(direct, detour)}
	threats := &stubThreats{locations: []*threat.Location{highThreat(mgRoad)}}
	planner := newPlanner(router, nil, threats)

	result, err := planner.Plan(context.Background(), saferoute.PlanRequest{
		Origin:       saferoute.Endpoint{Coordinate: &origin},
		Destination:  saferoute.Endpoint{Coordinate: &dest},
		Profile:      routing.ProfileWalk,
		AvoidThreats: true,
	})
	require.NoError(t, err)

	require.True(t, result.Scored)
	require.Len(t, result.Routes, 2)

	// The detour wins despite the distance penalty.
	assert.Equal(t, detour.GeometryPolyline, result.Recommended.Route.GeometryPolyline)
	assert.Zero(t, result.Recommended.ThreatScore)
	assert.InDelta(t, 0.84, result.Recommended.TotalScore, 1e-9)

	// The direct route picked up exposure: its vertex at the threat center
	// alone contributes the full level weight of 5.
	directScored := result.Routes[1]
	assert.GreaterOrEqual(t, directScored.ThreatScore, 5.0)
	assert.Greater(t, directScored.TotalScore, result.Recommended.TotalScore)
}

func TestPlanner_Plan_Deterministic(t *testing.T) {
	direct := makeRoute(200, mgRoad, cubbonPark)
	detour := makeRoute(2000,
		mgRoad,
		geo.Coordinate{Lat: 12.9740, Lon: 77.6100},
		cubbonPark,
	)

	router := &stubRouter{fn: fixedRoutes(direct, detour)}
	threats := &stubThreats{locations: []*threat.Location{highThreat(mgRoad)}}
	planner := newPlanner(router, nil, threats)

	first, err := planner.Plan(context.Background(), coordRequest())
	require.NoError(t, err)
	second, err := planner.Plan(context.Background(), coordRequest())
	require.NoError(t, err)

	require.Len(t, second.Routes, len(first.Routes))
	for i := range first.Routes {
		assert.Equal(t, first.Routes[i].Route.GeometryPolyline, second.Routes[i].Route.GeometryPolyline)
		assert.Equal(t, first.Routes[i].ThreatScore, second.Routes[i].ThreatScore)
		assert.Equal(t, first.Routes[i].TotalScore, second.Routes[i].TotalScore)
	}
}

func TestPlanner_Plan_AddingThreatNeverLowersScore(t *testing.T) {
	routeA := makeRoute(500, mgRoad, cubbonPark)
	routeB := makeRoute(600,
		mgRoad,
		geo.Coordinate{Lat: 12.9745, Lon: 77.5960},
		cubbonPark,
	)
	router := &stubRouter{fn: fixedRoutes(routeA, routeB)}

	threats := &stubThreats{}
	planner := newPlanner(router, nil, threats)

	before, err := planner.Plan(context.Background(), coordRequest())
	require.NoError(t, err)

	threats.locations = []*threat.Location{highThreat(mgRoad)}
	after, err := planner.Plan(context.Background(), coordRequest())
	require.NoError(t, err)

	scoreByGeometry := func(r *saferoute.PlanResult) map[string]float64 {
		m := make(map[string]float64)
		for _, sr := range r.Routes {
			m[sr.Route.GeometryPolyline] = sr.ThreatScore
		}
		return m
	}
	beforeScores := scoreByGeometry(before)
	for geom, score := range scoreByGeometry(after) {
		assert.GreaterOrEqual(t, score, beforeScores[geom])
	}
}

func TestPlanner_Plan_DistancePenaltyBreaksTies(t *testing.T) {
	// No threats: both routes score zero, the shorter one must win.
	shorter := makeRoute(500, mgRoad, cubbonPark)
	longer := makeRoute(900,
		mgRoad,
		geo.Coordinate{Lat: 12.9745, Lon: 77.5990},
		cubbonPark,
	)

	router := &stubRouter{fn: fixedRoutes(longer, shorter)}
	planner := newPlanner(router, nil, &stubThreats{})

	result, err := planner.Plan(context.Background(), coordRequest())
	require.NoError(t, err)

	require.True(t, result.Scored)
	assert.Equal(t, shorter.GeometryPolyline, result.Recommended.Route.GeometryPolyline)
	assert.InDelta(t, 0.1, result.Recommended.TotalScore, 1e-9)
}

func TestPlanner_Plan_SingleRouteUnscored(t *testing.T) {
	only := makeRoute(500, mgRoad, cubbonPark)
	router := &stubRouter{fn: fixedRoutes(only)}
	threats := &stubThreats{locations: []*threat.Location{highThreat(mgRoad)}}
	planner := newPlanner(router, nil, threats)

	result, err := planner.Plan(context.Background(), coordRequest())
	require.NoError(t, err)

	assert.False(t, result.Scored)
	require.Len(t, result.Routes, 1)
	assert.Zero(t, result.Recommended.ThreatScore)
	assert.Zero(t, result.Recommended.TotalScore)
}

func TestPlanner_Plan_AvoidanceDisabled(t *testing.T) {
	first := makeRoute(900, mgRoad, cubbonPark)
	second := makeRoute(500, mgRoad, cubbonPark)
	router := &stubRouter{fn: fixedRoutes(first, second)}
	threats := &stubThreats{locations: []*threat.Location{highThreat(mgRoad)}}
	planner := newPlanner(router, nil, threats)

	req := coordRequest()
	req.AvoidThreats = false

	result, err := planner.Plan(context.Background(), req)
	require.NoError(t, err)

	// Provider order is kept, threats are never queried.
	assert.False(t, result.Scored)
	assert.Equal(t, first.GeometryPolyline, result.Recommended.Route.GeometryPolyline)
	assert.Zero(t, threats.calls)
	assert.Empty(t, result.AvoidedThreats)
}

func TestPlanner_Plan_ForwardsThreatAvoidAreas(t *testing.T) {
	var gotReq routing.DirectionsRequest
	router := &stubRouter{fn: func(_ context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
		gotReq = req
		return &routing.DirectionsResponse{Routes: []routing.Route{makeRoute(500, mgRoad, cubbonPark)}}, nil
	}}
	threats := &stubThreats{locations: []*threat.Location{highThreat(mgRoad)}}
	planner := newPlanner(router, nil, threats)

	_, err := planner.Plan(context.Background(), coordRequest())
	require.NoError(t, err)

	require.Len(t, gotReq.AvoidAreas, 1)
	assert.Equal(t, mgRoad, gotReq.AvoidAreas[0].Center)
	assert.InDelta(t, threat.LevelHigh.AvoidRadiusKm(), gotReq.AvoidAreas[0].RadiusKm, 1e-9)
}

func TestPlanner_Plan_AvoidedThreatsNearEndpoints(t *testing.T) {
	near := highThreat(geo.Coordinate{Lat: 12.9720, Lon: 77.5950}) // ~70m from origin
	far := &threat.Location{
		ID:         "thr_test0000000000000002",
		Name:       "Airport road stretch",
		Coordinate: geo.Coordinate{Lat: 13.1986, Lon: 77.7066}, // ~28km away
		Level:      threat.LevelMedium,
		Category:   threat.CategoryPoorLighting,
	}

	router := &stubRouter{fn: fixedRoutes(
		makeRoute(500, mgRoad, cubbonPark),
		makeRoute(700, mgRoad, cubbonPark),
	)}
	threats := &stubThreats{locations: []*threat.Location{near, far}}
	planner := newPlanner(router, nil, threats)

	result, err := planner.Plan(context.Background(), coordRequest())
	require.NoError(t, err)

	require.Len(t, result.AvoidedThreats, 1)
	assert.Equal(t, near.ID, result.AvoidedThreats[0].ID)
	assert.Equal(t, threat.LevelHigh, result.AvoidedThreats[0].Level)
	assert.Less(t, result.AvoidedThreats[0].DistanceKm, 1.0)
}

func TestPlanner_Plan_GeocodesNamedEndpoints(t *testing.T) {
	router := &stubRouter{fn: fixedRoutes(makeRoute(500, mgRoad, cubbonPark))}
	geocoder := &stubGeocoder{results: map[string]geo.Coordinate{
		"MG Road":     mgRoad,
		"Cubbon Park": cubbonPark,
	}}
	planner := newPlanner(router, geocoder, &stubThreats{})

	result, err := planner.Plan(context.Background(), saferoute.PlanRequest{
		Origin:      saferoute.Endpoint{Query: "MG Road"},
		Destination: saferoute.Endpoint{Query: "Cubbon Park"},
		Profile:     routing.ProfileWalk,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, geocoder.calls)
	assert.Equal(t, mgRoad, result.Origin)
	assert.Equal(t, cubbonPark, result.Destination)
}

func TestPlanner_Plan_LocationNotFound(t *testing.T) {
	router := &stubRouter{fn: fixedRoutes(makeRoute(500, mgRoad, cubbonPark))}
	geocoder := &stubGeocoder{results: map[string]geo.Coordinate{}}
	planner := newPlanner(router, geocoder, &stubThreats{})

	_, err := planner.Plan(context.Background(), saferoute.PlanRequest{
		Origin:      saferoute.Endpoint{Query: "nowhere at all"},
		Destination: saferoute.Endpoint{Coordinate: &cubbonPark},
	})

	assert.ErrorIs(t, err, saferoute.ErrLocationNotFound)
	assert.NotErrorIs(t, err, routing.ErrNoRouteFound)
	assert.Zero(t, router.calls)
}

func TestPlanner_Plan_NoRouteFoundPassesThrough(t *testing.T) {
	router := &stubRouter{fn: func(context.Context, routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
		return nil, routing.ErrNoRouteFound
	}}
	planner := newPlanner(router, nil, &stubThreats{})

	_, err := planner.Plan(context.Background(), coordRequest())
	assert.ErrorIs(t, err, routing.ErrNoRouteFound)
	assert.NotErrorIs(t, err, saferoute.ErrLocationNotFound)
}

func TestPlanner_Plan_LastRequestWins(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	slowRoute := makeRoute(500, mgRoad, cubbonPark)

	var call int
	router := &stubRouter{fn: func(ctx context.Context, _ routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
		call++
		if call == 1 {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
		return &routing.DirectionsResponse{Routes: []routing.Route{slowRoute}}, nil
	}}
	planner := newPlanner(router, nil, &stubThreats{})

	firstDone := make(chan error, 1)
	go func() {
		_, err := planner.Plan(context.Background(), coordRequest())
		firstDone <- err
	}()

	<-started

	// Second request supersedes the first while it is still in flight.
	result, err := planner.Plan(context.Background(), coordRequest())
	require.NoError(t, err)
	require.NotNil(t, result)

	close(release)

	select {
	case err := <-firstDone:
		assert.ErrorIs(t, err, saferoute.ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("first plan did not complete")
	}
}

func TestPlanner_Plan_ThreatSourceFailure(t *testing.T) {
	router := &stubRouter{fn: fixedRoutes(makeRoute(500, mgRoad, cubbonPark))}
	threats := &stubThreats{err: errors.New("registry down")}
	planner := newPlanner(router, nil, threats)

	_, err := planner.Plan(context.Background(), coordRequest())
	require.Error(t, err)
	assert.Zero(t, router.calls)
}
