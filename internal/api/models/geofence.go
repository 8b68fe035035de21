package models

// Geofence represents a safety zone.
type Geofence struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Points      []Point `json:"points"`
	RadiusKm    float64 `json:"radiusKm,omitempty"`
	Description string  `json:"description,omitempty"`
	CreatedBy   string  `json:"createdBy,omitempty"`
	Color       string  `json:"color,omitempty"`
	Icon        string  `json:"icon,omitempty"`

	CreatedAt Timestamp  `json:"createdAt"`
	UpdatedAt *Timestamp `json:"updatedAt,omitempty"`
}

// CreateGeofenceRequest is the payload for creating a geofence.
type CreateGeofenceRequest struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Points      []Point `json:"points"`
	RadiusKm    float64 `json:"radiusKm,omitempty"`
	Description string  `json:"description,omitempty"`
	CreatedBy   string  `json:"createdBy,omitempty"`
	Color       string  `json:"color,omitempty"`
	Icon        string  `json:"icon,omitempty"`
}

// UpdateGeofenceRequest is the payload for updating a geofence. Absent
// fields are left unchanged.
type UpdateGeofenceRequest struct {
	Name        *string  `json:"name,omitempty"`
	Type        *string  `json:"type,omitempty"`
	Points      []Point  `json:"points,omitempty"`
	RadiusKm    *float64 `json:"radiusKm,omitempty"`
	Description *string  `json:"description,omitempty"`
	Color       *string  `json:"color,omitempty"`
	Icon        *string  `json:"icon,omitempty"`
}

// GeofenceListResponse is the response for geofence queries.
type GeofenceListResponse struct {
	Geofences []Geofence `json:"geofences"`
}
