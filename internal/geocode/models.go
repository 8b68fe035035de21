// Package geocode resolves free-text place queries to coordinates through an
// external search provider. Named route endpoints are resolved here before
// route planning; a failed lookup is a distinct failure from "no route found".
package geocode

import (
	"context"
	"errors"

	"github.com/saferoute/saferoute/pkg/geo"
)

// Geocoding errors.
var (
	// ErrNotFound indicates the query matched no known place.
	ErrNotFound = errors.New("location not found")
	// ErrProviderUnavailable indicates the geocoding provider is down.
	ErrProviderUnavailable = errors.New("geocoding provider unavailable")
)

// Provider defines the interface for geocoding providers.
type Provider interface {
	// Search resolves a free-text query to candidate places, best match first.
	// Returns ErrNotFound when nothing matches.
	Search(ctx context.Context, req SearchRequest) ([]Result, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// SearchRequest is a free-text place search.
type SearchRequest struct {
	Query string

	// Focus biases results towards a point when set.
	Focus *geo.Coordinate

	// MaxResults caps the number of candidates (default 5).
	MaxResults int
}

// Result is one candidate place for a query.
type Result struct {
	Name       string
	Address    string
	Coordinate geo.Coordinate
	Confidence float64
}
