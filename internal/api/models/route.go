package models

// RouteEndpoint is a route endpoint: either an explicit coordinate or a
// free-text query resolved through the geocoder. Exactly one must be set.
type RouteEndpoint struct {
	Location *Point `json:"location,omitempty"`
	Query    string `json:"query,omitempty"`
}

// SafeRouteRequest is the payload for a safety-aware route computation.
type SafeRouteRequest struct {
	Origin      RouteEndpoint `json:"origin"`
	Destination RouteEndpoint `json:"destination"`

	// Profile is the routing profile, "foot-walking" by default.
	Profile string `json:"profile,omitempty"`

	// Avoid lists provider avoid-features (highways, tollways, ferries).
	Avoid []string `json:"avoid,omitempty"`

	// AvoidThreats enables threat-aware scoring (default true).
	AvoidThreats *bool `json:"avoidThreats,omitempty"`

	MaxAlternatives int `json:"maxAlternatives,omitempty"`
}

// ScoredRoute is one scored route candidate.
type ScoredRoute struct {
	Geometry        string  `json:"geometry"`
	DistanceMeters  int     `json:"distanceMeters"`
	DurationSeconds int     `json:"durationSeconds"`
	Summary         string  `json:"summary,omitempty"`
	ThreatScore     float64 `json:"threatScore"`
	TotalScore      float64 `json:"totalScore"`
}

// AvoidedThreat is a threat near the trip that the chosen route avoids.
type AvoidedThreat struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ThreatLevel string  `json:"threatLevel"`
	Category    string  `json:"category"`
	DistanceKm  float64 `json:"distanceKm"`
}

// SafeRouteResponse is the ranked route recommendation.
type SafeRouteResponse struct {
	Recommended    ScoredRoute     `json:"recommended"`
	Alternatives   []ScoredRoute   `json:"alternatives"`
	Scored         bool            `json:"scored"`
	AvoidedThreats []AvoidedThreat `json:"avoidedThreats,omitempty"`
	Origin         Point           `json:"origin"`
	Destination    Point           `json:"destination"`
}
