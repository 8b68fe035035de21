package geofence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/pkg/geo"
)

// Validation constants.
const (
	MaxNameLength        = 120
	MaxDescriptionLength = 500
)

// ServiceConfig holds configuration for the geofence store service.
type ServiceConfig struct {
	// Repository is the geofence store.
	Repository Repository

	// Logger for service operations.
	Logger zerolog.Logger
}

// Service manages the geofence store consumed by the tracker.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a new geofence service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}
}

// Query returns geofences, optionally filtered by creator and/or type.
func (s *Service) Query(ctx context.Context, createdBy string, fenceType Type) ([]*Fence, error) {
	return s.repo.List(ctx, ListOptions{
		CreatedBy: createdBy,
		Type:      fenceType,
	})
}

// Get retrieves a geofence by ID.
func (s *Service) Get(ctx context.Context, id string) (*Fence, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a new geofence.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Fence, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	now := time.Now()
	fence := &Fence{
		ID:        "gf_" + uuid.New().String()[:22],
		Name:      input.Name,
		Type:      input.Type,
		Points:    input.Points,
		RadiusKm:  input.RadiusKm,
		Metadata:  input.Metadata,
		CreatedAt: now,
	}
	fence.Metadata.UpdatedAt = now

	if err := s.repo.Create(ctx, fence); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("geofence_id", fence.ID).
		Str("type", string(fence.Type)).
		Int("points", len(fence.Points)).
		Msg("geofence created")

	return fence, nil
}

// Update applies a partial update. Metadata fields are merged rather than
// replaced wholesale, and the metadata updatedAt is stamped.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*Fence, error) {
	fence, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		fence.Name = *input.Name
	}
	if input.Type != nil {
		if !input.Type.Valid() {
			return nil, &ValidationError{Field: "type", Message: "is not a known type"}
		}
		fence.Type = *input.Type
	}
	if input.Points != nil {
		fence.Points = input.Points
	}
	if input.RadiusKm != nil {
		fence.RadiusKm = *input.RadiusKm
	}
	if input.Description != nil {
		fence.Metadata.Description = *input.Description
	}
	if input.Color != nil {
		fence.Metadata.Color = *input.Color
	}
	if input.Icon != nil {
		fence.Metadata.Icon = *input.Icon
	}
	fence.Metadata.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, fence); err != nil {
		return nil, err
	}

	return fence, nil
}

// Delete removes a geofence by ID.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Active returns the geofences the tracker evaluates on every fix.
func (s *Service) Active(ctx context.Context) ([]*Fence, error) {
	return s.repo.List(ctx, ListOptions{})
}

// ValidationError represents a rejected geofence input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Message
}

func validateCreateInput(input CreateInput) error {
	if input.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if len(input.Name) > MaxNameLength {
		return &ValidationError{Field: "name", Message: "must be at most 120 characters"}
	}
	if len(input.Metadata.Description) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Message: "must be at most 500 characters"}
	}
	if !input.Type.Valid() {
		return &ValidationError{Field: "type", Message: "is not a known type"}
	}
	if len(input.Points) == 0 {
		return &ValidationError{Field: "points", Message: "at least one point is required"}
	}
	for _, p := range input.Points {
		if !geo.ValidCoordinate(p) {
			return &ValidationError{Field: "points", Message: "coordinates out of range"}
		}
	}
	// A single point needs a radius to form a circle; 2-point shapes are
	// stored but never match containment. The tracker relies on Contains
	// returning false for malformed shapes instead of failing.
	if len(input.Points) == 1 && input.RadiusKm < 0 {
		return &ValidationError{Field: "radiusKm", Message: "must not be negative"}
	}
	return nil
}
