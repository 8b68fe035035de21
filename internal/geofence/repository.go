package geofence

import "context"

// ListOptions contains the filters a repository applies while listing.
type ListOptions struct {
	// CreatedBy filters by the user that created the fence.
	CreatedBy string

	// Type filters by safety classification.
	Type Type
}

// Repository defines the interface for geofence persistence.
type Repository interface {
	// Get retrieves a geofence by ID.
	// Returns ErrGeofenceNotFound if it does not exist.
	Get(ctx context.Context, id string) (*Fence, error)

	// List retrieves geofences matching the given options.
	List(ctx context.Context, opts ListOptions) ([]*Fence, error)

	// Create stores a new geofence.
	Create(ctx context.Context, fence *Fence) error

	// Update replaces an existing geofence.
	// Returns ErrGeofenceNotFound if it does not exist.
	Update(ctx context.Context, fence *Fence) error

	// Delete removes a geofence by ID.
	Delete(ctx context.Context, id string) error
}
