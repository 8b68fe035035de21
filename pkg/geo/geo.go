// Package geo provides geographic primitives shared by the threat registry,
// geofence containment tests and route scoring: great-circle distance,
// point-in-polygon tests and polyline utilities.
package geo

import (
	"math"
)

// Coordinate represents a geographic point with latitude and longitude.
type Coordinate struct {
	Lat float64
	Lon float64
}

// EarthRadiusKm is the mean Earth radius used for all distance math.
const EarthRadiusKm = 6371.0

// DistanceKm calculates the great-circle distance between two coordinates in
// kilometers using the Haversine formula.
func DistanceKm(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// DistanceMeters calculates the great-circle distance between two coordinates
// in meters.
func DistanceMeters(a, b Coordinate) float64 {
	return DistanceKm(a, b) * 1000
}

// PointInPolygon reports whether p lies inside the polygon described by the
// ordered vertex list, using the ray casting algorithm. The polygon is closed
// implicitly (last vertex connects back to the first). Fewer than 3 vertices
// never match.
func PointInPolygon(p Coordinate, vertices []Coordinate) bool {
	if len(vertices) < 3 {
		return false
	}

	inside := false
	j := len(vertices) - 1
	for i := 0; i < len(vertices); i++ {
		vi := vertices[i]
		vj := vertices[j]

		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			intersectLon := vj.Lon + (p.Lat-vj.Lat)/(vi.Lat-vj.Lat)*(vi.Lon-vj.Lon)
			if p.Lon < intersectLon {
				inside = !inside
			}
		}
		j = i
	}

	return inside
}

// ValidCoordinate reports whether the coordinate is within valid ranges.
func ValidCoordinate(c Coordinate) bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}
