package threat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/pkg/geo"
)

// Validation constants.
const (
	MaxNameLength        = 120
	MaxDescriptionLength = 1000
)

// ServiceConfig holds configuration for the threat registry service.
type ServiceConfig struct {
	// Repository is the threat location store.
	Repository Repository

	// Logger for service operations.
	Logger zerolog.Logger
}

// Service is the threat registry: it owns reporting, voting, verification and
// the filtered/spatial queries the route scorer consumes.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a new threat registry service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}
}

// Query returns threat locations matching the given filters.
func (s *Service) Query(ctx context.Context, f Filters) ([]*Location, error) {
	locations, err := s.repo.List(ctx, ListOptions{
		Verified: f.Verified,
		Level:    f.Level,
		Category: f.Category,
	})
	if err != nil {
		return nil, err
	}

	result := make([]*Location, 0, len(locations))
	for _, loc := range locations {
		if f.TimeOfDay != "" && !loc.ActiveAt(f.TimeOfDay) {
			continue
		}
		if f.MinVotes != nil && loc.Votes < *f.MinVotes {
			continue
		}
		if f.MinReports != nil && loc.ReportCount < *f.MinReports {
			continue
		}
		if f.Center != nil && geo.DistanceKm(*f.Center, loc.Coordinate) > f.RadiusKm {
			continue
		}
		result = append(result, loc)
	}

	return result, nil
}

// Near returns threat locations within radiusKm of center. Convenience
// wrapper used by the route scorer.
func (s *Service) Near(ctx context.Context, center geo.Coordinate, radiusKm float64) ([]*Location, error) {
	return s.Query(ctx, Filters{Center: &center, RadiusKm: radiusKm})
}

// Create stores a new threat report.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Location, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	now := time.Now()
	loc := &Location{
		ID:             "thr_" + uuid.New().String()[:22],
		Name:           input.Name,
		Description:    input.Description,
		Coordinate:     input.Coordinate,
		Level:          input.Level,
		Category:       input.Category,
		TimeOfDay:      input.TimeOfDay,
		Verified:       false,
		Votes:          0,
		ReportCount:    1,
		ReportedAt:     now,
		LastReportDate: now,
	}

	if err := s.repo.Create(ctx, loc); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("threat_id", loc.ID).
		Str("level", string(loc.Level)).
		Str("category", string(loc.Category)).
		Msg("threat location reported")

	return loc, nil
}

// Report increments the report count for a threat location and stamps the
// last report date. Returns false without error when the id is unknown;
// callers must check the return value.
func (s *Service) Report(ctx context.Context, id string) (bool, error) {
	loc, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrThreatNotFound) {
			s.logger.Debug().Str("threat_id", id).Msg("report on unknown threat")
			return false, nil
		}
		return false, err
	}

	loc.ReportCount++
	loc.LastReportDate = time.Now()

	if err := s.repo.Update(ctx, loc); err != nil {
		if errors.Is(err, ErrThreatNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// Vote adds or subtracts one vote for a threat location. Votes may go
// negative. Returns false without error when the id is unknown.
func (s *Service) Vote(ctx context.Context, id string, up bool) (bool, error) {
	loc, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrThreatNotFound) {
			s.logger.Debug().Str("threat_id", id).Msg("vote on unknown threat")
			return false, nil
		}
		return false, err
	}

	if up {
		loc.Votes++
	} else {
		loc.Votes--
	}

	if err := s.repo.Update(ctx, loc); err != nil {
		if errors.Is(err, ErrThreatNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// Verify marks a threat location as verified and stamps the verifier and
// time. Returns false without error when the id is unknown.
func (s *Service) Verify(ctx context.Context, id, verifierID string) (bool, error) {
	loc, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrThreatNotFound) {
			s.logger.Debug().Str("threat_id", id).Msg("verify on unknown threat")
			return false, nil
		}
		return false, err
	}

	loc.Verified = true
	loc.VerifiedBy = verifierID
	loc.VerifiedAt = time.Now()

	if err := s.repo.Update(ctx, loc); err != nil {
		if errors.Is(err, ErrThreatNotFound) {
			return false, nil
		}
		return false, err
	}

	s.logger.Info().
		Str("threat_id", id).
		Str("verifier_id", verifierID).
		Msg("threat location verified")

	return true, nil
}

// Delete removes a threat location. Moderation only.
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
	if input.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if len(input.Name) > MaxNameLength {
		return &ValidationError{Field: "name", Message: "must be at most 120 characters"}
	}
	if len(input.Description) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Message: "must be at most 1000 characters"}
	}
	if !geo.ValidCoordinate(input.Coordinate) {
		return &ValidationError{Field: "coordinates", Message: "out of range"}
	}
	if !input.Level.Valid() {
		return &ValidationError{Field: "threatLevel", Message: "must be low, medium or high"}
	}
	if !input.Category.Valid() {
		return &ValidationError{Field: "category", Message: "is not a known category"}
	}
	return nil
}
