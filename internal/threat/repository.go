package threat

import "context"

// ListOptions contains the filters a repository can apply while listing.
// Tag, vote and spatial filtering happen in the service on top of this.
type ListOptions struct {
	Verified *bool
	Level    Level
	Category Category
}

// Repository defines the interface for threat location persistence.
type Repository interface {
	// Get retrieves a threat location by ID.
	// Returns ErrThreatNotFound if it does not exist.
	Get(ctx context.Context, id string) (*Location, error)

	// List retrieves threat locations matching the given options.
	List(ctx context.Context, opts ListOptions) ([]*Location, error)

	// Create stores a new threat location.
	Create(ctx context.Context, loc *Location) error

	// Update replaces an existing threat location.
	// Returns ErrThreatNotFound if it does not exist.
	Update(ctx context.Context, loc *Location) error

	// Delete removes a threat location. Used by moderation only.
	Delete(ctx context.Context, id string) error
}
