package contact

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL contact repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const contactColumns = `id, user_id, name, phone, relationship, priority, created_at`

// Get retrieves a contact by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM emergency_contacts WHERE id = $1`

	var c Contact
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.UserID,
		&c.Name,
		&c.Phone,
		&c.Relationship,
		&c.Priority,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}

	return &c, nil
}

// ListByUser retrieves a user's contacts ordered by priority.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*Contact, error) {
	query := `SELECT ` + contactColumns + `
		FROM emergency_contacts
		WHERE user_id = $1
		ORDER BY priority ASC, created_at ASC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Contact
	for rows.Next() {
		var c Contact
		err := rows.Scan(
			&c.ID,
			&c.UserID,
			&c.Name,
			&c.Phone,
			&c.Relationship,
			&c.Priority,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Create stores a new contact.
func (r *PostgresRepository) Create(ctx context.Context, c *Contact) error {
	query := `
		INSERT INTO emergency_contacts (id, user_id, name, phone, relationship, priority, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		c.ID,
		c.UserID,
		c.Name,
		c.Phone,
		c.Relationship,
		c.Priority,
		c.CreatedAt,
	)
	return err
}

// Update replaces an existing contact.
func (r *PostgresRepository) Update(ctx context.Context, c *Contact) error {
	query := `
		UPDATE emergency_contacts SET
			name = $2,
			phone = $3,
			relationship = $4,
			priority = $5
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		c.ID,
		c.Name,
		c.Phone,
		c.Relationship,
		c.Priority,
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrContactNotFound
	}

	return nil
}

// Delete removes a contact.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM emergency_contacts WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
