// Package geofence provides named safety zones and their containment tests.
package geofence

import (
	"errors"
	"time"

	"github.com/saferoute/saferoute/pkg/geo"
)

// Store errors.
var (
	// ErrGeofenceNotFound indicates the requested geofence does not exist.
	ErrGeofenceNotFound = errors.New("geofence not found")
)

// Type classifies a geofence by its safety meaning.
type Type string

const (
	TypeSafe    Type = "safe"
	TypeCaution Type = "caution"
	TypeDanger  Type = "danger"
	TypeCustom  Type = "custom"
)

// Valid reports whether the type is a known value.
func (t Type) Valid() bool {
	switch t {
	case TypeSafe, TypeCaution, TypeDanger, TypeCustom:
		return true
	}
	return false
}

// Metadata carries presentation and ownership details for a geofence.
type Metadata struct {
	Description string
	CreatedBy   string
	Color       string
	Icon        string
	UpdatedAt   time.Time
}

// Fence represents a named geographic zone, either a circle (one point plus
// RadiusKm) or a polygon (three or more points, RadiusKm ignored).
type Fence struct {
	ID       string
	Name     string
	Type     Type
	Points   []geo.Coordinate
	RadiusKm float64
	Metadata Metadata

	CreatedAt time.Time
}

// IsCircle reports whether the fence is a well-formed circle.
func (f *Fence) IsCircle() bool {
	return len(f.Points) == 1 && f.RadiusKm > 0
}

// IsPolygon reports whether the fence is a well-formed polygon.
// A fence with three or more points is treated as a polygon and RadiusKm is
// ignored.
func (f *Fence) IsPolygon() bool {
	return len(f.Points) >= 3
}

// Contains reports whether the point lies inside the fence.
// Circle boundaries are inclusive: a point at exactly RadiusKm from the
// center is inside. Malformed shapes (a single point without a radius, or a
// two-point "polygon") never match.
func (f *Fence) Contains(p geo.Coordinate) bool {
	switch {
	case f.IsPolygon():
		return geo.PointInPolygon(p, f.Points)
	case f.IsCircle():
		return geo.DistanceKm(p, f.Points[0]) <= f.RadiusKm
	default:
		return false
	}
}

// CreateInput carries the fields of a new geofence.
type CreateInput struct {
	Name     string
	Type     Type
	Points   []geo.Coordinate
	RadiusKm float64
	Metadata Metadata
}

// UpdateInput carries a partial geofence update. Nil fields are left
// untouched; metadata fields are merged rather than replaced wholesale.
type UpdateInput struct {
	Name     *string
	Type     *Type
	Points   []geo.Coordinate
	RadiusKm *float64

	Description *string
	Color       *string
	Icon        *string
}
