package alert

import (
	"context"
	"sort"
	"sync"
)

// Repository defines the persistence interface for alert history.
type Repository interface {
	// Create stores a new alert record.
	Create(ctx context.Context, a *SafetyAlert) error
	// ListByUser retrieves a user's alerts, newest first.
	ListByUser(ctx context.Context, userID string) ([]*SafetyAlert, error)
	// MarkRead flags an alert as read. Returns ErrAlertNotFound when the
	// alert does not exist.
	MarkRead(ctx context.Context, id string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu     sync.RWMutex
	alerts map[string]*SafetyAlert
}

// NewInMemoryRepository creates a new in-memory alert repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		alerts: make(map[string]*SafetyAlert),
	}
}

// Create stores a new alert record.
func (r *InMemoryRepository) Create(_ context.Context, a *SafetyAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *a
	r.alerts[a.ID] = &cpy
	return nil
}

// ListByUser retrieves a user's alerts, newest first.
func (r *InMemoryRepository) ListByUser(_ context.Context, userID string) ([]*SafetyAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*SafetyAlert
	for _, a := range r.alerts {
		if a.UserID != userID {
			continue
		}
		cpy := *a
		result = append(result, &cpy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// MarkRead flags an alert as read.
func (r *InMemoryRepository) MarkRead(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	a.Read = true
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
