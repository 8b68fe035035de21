package contact

import (
	"context"
	"sort"
	"sync"
)

// Repository defines the persistence interface for emergency contacts.
type Repository interface {
	// Get retrieves a contact by ID.
	Get(ctx context.Context, id string) (*Contact, error)
	// ListByUser retrieves a user's contacts ordered by priority.
	ListByUser(ctx context.Context, userID string) ([]*Contact, error)
	// Create stores a new contact.
	Create(ctx context.Context, c *Contact) error
	// Update replaces an existing contact.
	Update(ctx context.Context, c *Contact) error
	// Delete removes a contact.
	Delete(ctx context.Context, id string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	contacts map[string]*Contact
}

// NewInMemoryRepository creates a new in-memory contact repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		contacts: make(map[string]*Contact),
	}
}

// Get retrieves a contact by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.contacts[id]
	if !ok {
		return nil, ErrContactNotFound
	}

	cpy := *c
	return &cpy, nil
}

// ListByUser retrieves a user's contacts ordered by priority.
func (r *InMemoryRepository) ListByUser(_ context.Context, userID string) ([]*Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Contact
	for _, c := range r.contacts {
		if c.UserID != userID {
			continue
		}
		cpy := *c
		result = append(result, &cpy)
	}

	sortByPriority(result)
	return result, nil
}

// Create stores a new contact.
func (r *InMemoryRepository) Create(_ context.Context, c *Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *c
	r.contacts[c.ID] = &cpy
	return nil
}

// Update replaces an existing contact.
func (r *InMemoryRepository) Update(_ context.Context, c *Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.contacts[c.ID]; !ok {
		return ErrContactNotFound
	}

	cpy := *c
	r.contacts[c.ID] = &cpy
	return nil
}

// Delete removes a contact.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.contacts, id)
	return nil
}

func sortByPriority(contacts []*Contact) {
	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].Priority != contacts[j].Priority {
			return contacts[i].Priority < contacts[j].Priority
		}
		return contacts[i].CreatedAt.Before(contacts[j].CreatedAt)
	})
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
