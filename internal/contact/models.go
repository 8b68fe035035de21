// Package contact manages a user's emergency contacts: the people notified
// when an SOS or zone alert fires.
package contact

import (
	"errors"
	"time"
)

// Contact errors.
var (
	// ErrContactNotFound indicates the requested contact does not exist.
	ErrContactNotFound = errors.New("contact not found")
)

// Contact is one emergency contact for a user.
type Contact struct {
	ID           string
	UserID       string
	Name         string
	Phone        string
	Relationship string

	// Priority orders contacts for delivery, lowest first.
	Priority int

	CreatedAt time.Time
}

// CreateInput is the payload for registering a contact.
type CreateInput struct {
	UserID       string
	Name         string
	Phone        string
	Relationship string
	Priority     int
}
