package contact

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MaxContacts caps how many emergency contacts one user may register.
const MaxContacts = 10

// phonePattern is a loose E.164 check: optional +, 8 to 15 digits.
var phonePattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

// ServiceConfig holds configuration for the contact service.
type ServiceConfig struct {
	// Repository is the contact store.
	Repository Repository

	// Logger for service operations.
	Logger zerolog.Logger
}

// Service manages a user's emergency contacts.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a new contact service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}
}

// ListByUser returns the user's contacts ordered by priority.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Contact, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Create registers a new emergency contact.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Contact, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	existing, err := s.repo.ListByUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if len(existing) >= MaxContacts {
		return nil, &ValidationError{Field: "contacts", Message: "limit reached"}
	}

	c := &Contact{
		ID:           "ct_" + uuid.New().String()[:22],
		UserID:       input.UserID,
		Name:         input.Name,
		Phone:        input.Phone,
		Relationship: input.Relationship,
		Priority:     input.Priority,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("contact_id", c.ID).
		Str("user_id", c.UserID).
		Msg("emergency contact registered")

	return c, nil
}

// Delete removes a contact.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// ValidationError represents a rejected create input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Message
}

func validateCreateInput(input CreateInput) error {
	if input.UserID == "" {
		return &ValidationError{Field: "userId", Message: "is required"}
	}
	if input.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if !phonePattern.MatchString(input.Phone) {
		return &ValidationError{Field: "phone", Message: "is not a valid phone number"}
	}
	return nil
}
