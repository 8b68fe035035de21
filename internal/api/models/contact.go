package models

// EmergencyContact is one emergency contact.
type EmergencyContact struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Relationship string    `json:"relationship,omitempty"`
	Priority     int       `json:"priority"`
	CreatedAt    Timestamp `json:"createdAt"`
}

// CreateContactRequest is the payload for registering a contact.
type CreateContactRequest struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
	Priority     int    `json:"priority,omitempty"`
}

// ContactListResponse is the response for contact queries.
type ContactListResponse struct {
	Contacts []EmergencyContact `json:"contacts"`
}
