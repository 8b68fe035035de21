// Package routing provides route alternatives from an external directions
// provider. The safety decision layer sits on top of it; this package only
// knows geometry and summaries.
package routing

import (
	"context"
	"errors"
	"time"

	"github.com/saferoute/saferoute/pkg/geo"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrInvalidGeometry indicates the provider returned a route without usable geometry.
	ErrInvalidGeometry = errors.New("route has no usable geometry")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Provider defines the interface for routing providers.
type Provider interface {
	// GetDirections retrieves route directions between two points.
	// Returns multiple route alternatives when available.
	GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// RouteProfile represents a routing profile (mode of transport).
type RouteProfile string

const (
	// ProfileWalk is the foot-walking profile for pedestrian routing.
	ProfileWalk RouteProfile = "foot-walking"
	// ProfileDrive is the driving-car profile.
	ProfileDrive RouteProfile = "driving-car"
)

// AvoidFeature is a road feature the route should avoid.
type AvoidFeature string

const (
	AvoidHighways AvoidFeature = "highways"
	AvoidTolls    AvoidFeature = "tollways"
	AvoidFerries  AvoidFeature = "ferries"
	AvoidUnpaved  AvoidFeature = "unpavedroads"
)

// AvoidArea is a circular soft constraint passed to the provider, typically
// derived from a threat location and its level's avoid radius.
type AvoidArea struct {
	Center   geo.Coordinate
	RadiusKm float64
}

// DirectionsRequest is the request for computing routes.
type DirectionsRequest struct {
	Origin          geo.Coordinate
	Destination     geo.Coordinate
	Profile         RouteProfile
	Avoid           []AvoidFeature
	AvoidAreas      []AvoidArea
	MaxAlternatives int // Maximum number of alternative routes to return (default: 2)
}

// DirectionsResponse is the response containing route alternatives.
type DirectionsResponse struct {
	Routes    []Route
	Provider  string
	FetchedAt time.Time
}

// Route represents a single route option.
type Route struct {
	GeometryPolyline string // Encoded polyline (precision 5)
	DistanceMeters   int    // Total distance in meters
	DurationSeconds  int    // Total duration in seconds
	Summary          string // Human-readable route summary
}

// Geometry decodes the route polyline into coordinates.
func (r *Route) Geometry() []geo.Coordinate {
	return geo.Decode(r.GeometryPolyline)
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
