package models

// SOSRequest is the payload for a manual SOS trigger. Location is optional;
// when absent the server acquires the user's last known position.
type SOSRequest struct {
	Location *Point `json:"location,omitempty"`
}

// MarkSafeRequest is the payload for marking a user safe.
type MarkSafeRequest struct {
	Location *Point `json:"location,omitempty"`
}

// FailedDelivery is one contact delivery that did not go through.
type FailedDelivery struct {
	ContactID string `json:"contactId"`
	Channel   string `json:"channel"`
	Error     string `json:"error,omitempty"`
}

// DispatchResponse summarizes an SOS or mark-safe dispatch.
type DispatchResponse struct {
	AlertID  string           `json:"alertId"`
	Status   string           `json:"status"`
	Notified int              `json:"notified"`
	Partial  bool             `json:"partial"`
	Failed   []FailedDelivery `json:"failed,omitempty"`
}

// SafetyAlert is one alert history entry.
type SafetyAlert struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Location   *Point    `json:"location,omitempty"`
	GeofenceID string    `json:"geofenceId,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Notified   int       `json:"notified"`
	Partial    bool      `json:"partial"`
	Read       bool      `json:"read"`
	CreatedAt  Timestamp `json:"createdAt"`
}

// AlertListResponse is the response for alert history queries.
type AlertListResponse struct {
	Alerts []SafetyAlert `json:"alerts"`
}

// LocationFix is a location update pushed by a client.
type LocationFix struct {
	Location   Point      `json:"location"`
	AccuracyM  float64    `json:"accuracyM,omitempty"`
	RecordedAt *Timestamp `json:"recordedAt,omitempty"`
}

// TransitionEvent is one geofence enter/exit emitted for a location fix.
type TransitionEvent struct {
	GeofenceID   string `json:"geofenceId"`
	GeofenceName string `json:"geofenceName"`
	GeofenceType string `json:"geofenceType"`
	Event        string `json:"event"`
	Severity     string `json:"severity"`
}

// LocationFixResponse lists the transitions a fix produced.
type LocationFixResponse struct {
	Events []TransitionEvent `json:"events"`
	Inside []string          `json:"inside"`
}
