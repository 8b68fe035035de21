package models

// ThreatLocation represents a reported threat location.
type ThreatLocation struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Location    Point    `json:"location"`
	ThreatLevel string   `json:"threatLevel"`
	Category    string   `json:"category"`
	TimeOfDay   []string `json:"timeOfDay,omitempty"`

	Verified   bool       `json:"verified"`
	VerifiedBy string     `json:"verifiedBy,omitempty"`
	VerifiedAt *Timestamp `json:"verifiedAt,omitempty"`

	Votes          int       `json:"votes"`
	ReportCount    int       `json:"reportCount"`
	ReportedAt     Timestamp `json:"reportedAt"`
	LastReportDate Timestamp `json:"lastReportDate"`
}

// CreateThreatRequest is the payload for reporting a threat location.
type CreateThreatRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Location    Point    `json:"location"`
	ThreatLevel string   `json:"threatLevel"`
	Category    string   `json:"category"`
	TimeOfDay   []string `json:"timeOfDay,omitempty"`
	ReportedBy  string   `json:"reportedBy,omitempty"`
}

// ThreatListResponse is the response for threat location queries.
type ThreatListResponse struct {
	Threats []ThreatLocation `json:"threats"`
}

// ThreatActionResponse reports the outcome of a vote/report/verify action.
// Applied is false when the threat id is unknown.
type ThreatActionResponse struct {
	Applied bool `json:"applied"`
}
