package threat

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu      sync.RWMutex
	threats map[string]*Location
}

// NewInMemoryRepository creates a new in-memory threat repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		threats: make(map[string]*Location),
	}
}

// Get retrieves a threat location by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loc, ok := r.threats[id]
	if !ok {
		return nil, ErrThreatNotFound
	}

	cpy := *loc
	return &cpy, nil
}

// List retrieves threat locations matching the given options.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) ([]*Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Location
	for _, loc := range r.threats {
		if opts.Verified != nil && loc.Verified != *opts.Verified {
			continue
		}
		if opts.Level != "" && loc.Level != opts.Level {
			continue
		}
		if opts.Category != "" && loc.Category != opts.Category {
			continue
		}
		cpy := *loc
		result = append(result, &cpy)
	}

	return result, nil
}

// Create stores a new threat location.
func (r *InMemoryRepository) Create(_ context.Context, loc *Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *loc
	r.threats[loc.ID] = &cpy
	return nil
}

// Update replaces an existing threat location.
func (r *InMemoryRepository) Update(_ context.Context, loc *Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.threats[loc.ID]; !ok {
		return ErrThreatNotFound
	}

	cpy := *loc
	r.threats[loc.ID] = &cpy
	return nil
}

// Delete removes a threat location.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.threats, id)
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
