package geofence

import (
	"context"
	"sync"

	"github.com/saferoute/saferoute/pkg/geo"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu     sync.RWMutex
	fences map[string]*Fence
}

// NewInMemoryRepository creates a new in-memory geofence repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		fences: make(map[string]*Fence),
	}
}

// Get retrieves a geofence by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Fence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.fences[id]
	if !ok {
		return nil, ErrGeofenceNotFound
	}

	return copyFence(f), nil
}

// List retrieves geofences matching the given options.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) ([]*Fence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Fence
	for _, f := range r.fences {
		if opts.CreatedBy != "" && f.Metadata.CreatedBy != opts.CreatedBy {
			continue
		}
		if opts.Type != "" && f.Type != opts.Type {
			continue
		}
		result = append(result, copyFence(f))
	}

	return result, nil
}

// Create stores a new geofence.
func (r *InMemoryRepository) Create(_ context.Context, fence *Fence) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fences[fence.ID] = copyFence(fence)
	return nil
}

// Update replaces an existing geofence.
func (r *InMemoryRepository) Update(_ context.Context, fence *Fence) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.fences[fence.ID]; !ok {
		return ErrGeofenceNotFound
	}

	r.fences[fence.ID] = copyFence(fence)
	return nil
}

// Delete removes a geofence by ID.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.fences, id)
	return nil
}

func copyFence(f *Fence) *Fence {
	cpy := *f
	cpy.Points = append([]geo.Coordinate(nil), f.Points...)
	return &cpy
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
