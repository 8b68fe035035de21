// Package saferoute turns raw route alternatives into a safety-aware
// recommendation. It scores each candidate against nearby threat locations
// and picks the route with the least exposure, with a small distance penalty
// as a tie-breaker.
package saferoute

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/geocode"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/threat"
	"github.com/saferoute/saferoute/pkg/geo"
)

// Planner errors.
var (
	// ErrLocationNotFound indicates a named endpoint could not be geocoded.
	// Distinct from routing.ErrNoRouteFound: the remedial action is a
	// different address, not a retry.
	ErrLocationNotFound = errors.New("location not found")
	// ErrSuperseded indicates a newer plan request replaced this one before
	// it completed. The result must be discarded, not rendered.
	ErrSuperseded = errors.New("plan superseded by a newer request")
)

// Scoring constants.
const (
	// distancePenaltyPerKm is added to the threat score per route kilometer
	// so that among similarly safe routes the shorter one wins.
	distancePenaltyPerKm = 0.2

	// captureFactor widens the per-threat avoidance radius for score
	// accumulation: vertices within captureFactor x radius are examined.
	captureFactor = 2.0

	// endpointThreatRadiusKm bounds the "avoided threats" list: threats
	// within this distance of either endpoint are reported to the UI.
	endpointThreatRadiusKm = 1.0

	// corridorBufferKm pads the spatial threat query around the trip.
	corridorBufferKm = 2.0
)

// ThreatSource supplies threats near a point. Implemented by the threat
// registry service.
type ThreatSource interface {
	Near(ctx context.Context, center geo.Coordinate, radiusKm float64) ([]*threat.Location, error)
}

// Endpoint is a route endpoint: either an explicit coordinate or a free-text
// query resolved through the geocoder.
type Endpoint struct {
	Coordinate *geo.Coordinate
	Query      string
}

// PlanRequest describes one route planning request.
type PlanRequest struct {
	Origin      Endpoint
	Destination Endpoint
	Profile     routing.RouteProfile
	Avoid       []routing.AvoidFeature

	// AvoidThreats enables threat-aware scoring. When disabled the first
	// provider route is returned unscored.
	AvoidThreats bool

	// MaxAlternatives caps the number of provider alternatives (default 2).
	MaxAlternatives int
}

// ScoredRoute is a route candidate annotated with its safety score.
// The underlying route is not mutated.
type ScoredRoute struct {
	Route       routing.Route
	ThreatScore float64
	TotalScore  float64
}

// AvoidedThreat is presentation metadata: a threat near the trip endpoints
// that the chosen route steers around.
type AvoidedThreat struct {
	ID         string
	Name       string
	Level      threat.Level
	Category   threat.Category
	DistanceKm float64
}

// PlanResult is a ranked, annotated route recommendation.
type PlanResult struct {
	// Recommended is the first entry of Routes.
	Recommended ScoredRoute

	// Routes holds all candidates sorted ascending by total score. When
	// Scored is false the provider order is preserved.
	Routes []ScoredRoute

	// Scored is false when only one candidate was returned or threat
	// avoidance was disabled.
	Scored bool

	// AvoidedThreats lists threats within 1km of either endpoint, only
	// populated when threat avoidance is enabled.
	AvoidedThreats []AvoidedThreat

	Origin      geo.Coordinate
	Destination geo.Coordinate
}

// PlannerConfig holds configuration for the route planner.
type PlannerConfig struct {
	// Routing is the external directions provider.
	Routing routing.Provider

	// Geocoder resolves named endpoints. Optional; plans with coordinate
	// endpoints work without it.
	Geocoder geocode.Provider

	// Threats supplies threat locations near the trip.
	Threats ThreatSource

	// Logger for planner operations.
	Logger zerolog.Logger
}

// Planner computes safety-aware route recommendations. Route planning is
// last-request-wins: issuing a new Plan cancels and supersedes the previous
// in-flight one so a stale route is never rendered.
type Planner struct {
	routing  routing.Provider
	geocoder geocode.Provider
	threats  ThreatSource
	logger   zerolog.Logger

	mu         sync.Mutex
	seq        uint64
	cancelPrev context.CancelFunc
}

// NewPlanner creates a new route planner.
func NewPlanner(cfg PlannerConfig) *Planner {
	return &Planner{
		routing:  cfg.Routing,
		geocoder: cfg.Geocoder,
		threats:  cfg.Threats,
		logger:   cfg.Logger,
	}
}

// Plan resolves endpoints, fetches route alternatives and returns the ranked
// recommendation. Returns ErrSuperseded when a newer request arrives before
// this one completes.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	ctx, mySeq := p.begin(ctx)

	origin, err := p.resolveEndpoint(ctx, req.Origin)
	if err != nil {
		return nil, err
	}
	destination, err := p.resolveEndpoint(ctx, req.Destination)
	if err != nil {
		return nil, err
	}

	// Threats along the corridor, fetched before the provider call so they
	// can double as soft avoid-area constraints.
	var threats []*threat.Location
	if req.AvoidThreats && p.threats != nil {
		threats, err = p.corridorThreats(ctx, origin, destination)
		if err != nil {
			return nil, err
		}
	}

	dirReq := routing.DirectionsRequest{
		Origin:          origin,
		Destination:     destination,
		Profile:         req.Profile,
		Avoid:           req.Avoid,
		MaxAlternatives: req.MaxAlternatives,
	}
	for _, t := range threats {
		dirReq.AvoidAreas = append(dirReq.AvoidAreas, routing.AvoidArea{
			Center:   t.Coordinate,
			RadiusKm: t.Level.AvoidRadiusKm(),
		})
	}

	dirResp, err := p.routing.GetDirections(ctx, dirReq)
	if err != nil {
		if p.superseded(mySeq) {
			return nil, ErrSuperseded
		}
		return nil, err
	}
	if len(dirResp.Routes) == 0 {
		return nil, routing.ErrNoRouteFound
	}

	result := p.rank(dirResp.Routes, threats, req.AvoidThreats)
	result.Origin = origin
	result.Destination = destination
	result.AvoidedThreats = avoidedThreats(threats, origin, destination, req.AvoidThreats)

	if p.superseded(mySeq) {
		return nil, ErrSuperseded
	}

	p.logger.Debug().
		Int("candidates", len(result.Routes)).
		Bool("scored", result.Scored).
		Float64("recommended_score", result.Recommended.TotalScore).
		Msg("route plan completed")

	return result, nil
}

// begin registers a new in-flight request, cancelling the previous one.
func (p *Planner) begin(ctx context.Context) (context.Context, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	if p.cancelPrev != nil {
		p.cancelPrev()
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancelPrev = cancel
	return ctx, p.seq
}

// superseded reports whether a newer request has started since seq.
func (p *Planner) superseded(seq uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq != seq
}

// resolveEndpoint turns an endpoint into a coordinate, geocoding free-text
// queries when needed.
func (p *Planner) resolveEndpoint(ctx context.Context, ep Endpoint) (geo.Coordinate, error) {
	if ep.Coordinate != nil {
		return *ep.Coordinate, nil
	}
	if ep.Query == "" {
		return geo.Coordinate{}, fmt.Errorf("%w: empty endpoint", ErrLocationNotFound)
	}
	if p.geocoder == nil {
		return geo.Coordinate{}, fmt.Errorf("%w: no geocoder configured", ErrLocationNotFound)
	}

	results, err := p.geocoder.Search(ctx, geocode.SearchRequest{Query: ep.Query, MaxResults: 1})
	if err != nil {
		if errors.Is(err, geocode.ErrNotFound) {
			return geo.Coordinate{}, fmt.Errorf("%w: %q", ErrLocationNotFound, ep.Query)
		}
		return geo.Coordinate{}, err
	}

	return results[0].Coordinate, nil
}

// corridorThreats queries threats around the trip: centered on the midpoint
// with a radius covering both endpoints plus a buffer.
func (p *Planner) corridorThreats(ctx context.Context, origin, destination geo.Coordinate) ([]*threat.Location, error) {
	mid := geo.Coordinate{
		Lat: (origin.Lat + destination.Lat) / 2,
		Lon: (origin.Lon + destination.Lon) / 2,
	}
	radius := geo.DistanceKm(origin, destination)/2 + corridorBufferKm
	return p.threats.Near(ctx, mid, radius)
}

// rank scores and sorts the candidates. With a single candidate, or with
// threat avoidance disabled, the provider order is kept and no scores are
// attached.
func (p *Planner) rank(routes []routing.Route, threats []*threat.Location, avoid bool) *PlanResult {
	scored := make([]ScoredRoute, 0, len(routes))
	for _, r := range routes {
		scored = append(scored, ScoredRoute{Route: r})
	}

	if !avoid || len(routes) < 2 {
		return &PlanResult{
			Recommended: scored[0],
			Routes:      scored,
			Scored:      false,
		}
	}

	for i := range scored {
		threatScore := routeThreatScore(scored[i].Route.Geometry(), threats)
		distanceKm := float64(scored[i].Route.DistanceMeters) / 1000
		scored[i].ThreatScore = threatScore
		scored[i].TotalScore = threatScore + distancePenaltyPerKm*distanceKm
	}

	// Stable sort keeps the provider order for equal scores.
	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].TotalScore < scored[b].TotalScore
	})

	return &PlanResult{
		Recommended: scored[0],
		Routes:      scored,
		Scored:      true,
	}
}

// routeThreatScore accumulates the exposure of a polyline to the given
// threats. Each vertex within twice a threat's avoidance radius contributes
// max(0, 1 - d/r) x levelWeight.
func routeThreatScore(vertices []geo.Coordinate, threats []*threat.Location) float64 {
	var score float64
	for _, t := range threats {
		radius := t.Level.AvoidRadiusKm()
		weight := t.Level.Weight()
		for _, v := range vertices {
			d := geo.DistanceKm(v, t.Coordinate)
			if d < captureFactor*radius {
				if factor := 1 - d/radius; factor > 0 {
					score += factor * weight
				}
			}
		}
	}
	return score
}

// avoidedThreats lists threats within 1km of either endpoint. Presentation
// metadata only; not part of the scoring loop.
func avoidedThreats(threats []*threat.Location, origin, destination geo.Coordinate, avoid bool) []AvoidedThreat {
	if !avoid {
		return nil
	}

	var result []AvoidedThreat
	for _, t := range threats {
		dOrigin := geo.DistanceKm(origin, t.Coordinate)
		dDest := geo.DistanceKm(destination, t.Coordinate)

		d := dOrigin
		if dDest < d {
			d = dDest
		}
		if d <= endpointThreatRadiusKm {
			result = append(result, AvoidedThreat{
				ID:         t.ID,
				Name:       t.Name,
				Level:      t.Level,
				Category:   t.Category,
				DistanceKm: d,
			})
		}
	}
	return result
}
