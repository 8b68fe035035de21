package geofence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saferoute/saferoute/pkg/geo"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
// Shape vertices are stored as an encoded polyline string.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL geofence repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const fenceColumns = `
	id, name, type, points_polyline, radius_km,
	description, created_by, color, icon,
	created_at, updated_at
`

// Get retrieves a geofence by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Fence, error) {
	query := `SELECT ` + fenceColumns + ` FROM geofences WHERE id = $1`

	fence, err := scanFence(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGeofenceNotFound
		}
		return nil, err
	}

	return fence, nil
}

// List retrieves geofences matching the given options.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) ([]*Fence, error) {
	query := `SELECT ` + fenceColumns + `
		FROM geofences
		WHERE ($1::text = '' OR created_by = $1)
		  AND ($2::text = '' OR type = $2)
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, opts.CreatedBy, string(opts.Type))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Fence
	for rows.Next() {
		fence, err := scanFence(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, fence)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Create stores a new geofence.
func (r *PostgresRepository) Create(ctx context.Context, fence *Fence) error {
	query := `
		INSERT INTO geofences (
			id, name, type, points_polyline, radius_km,
			description, created_by, color, icon,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.pool.Exec(ctx, query,
		fence.ID,
		fence.Name,
		string(fence.Type),
		geo.Encode(fence.Points),
		fence.RadiusKm,
		fence.Metadata.Description,
		fence.Metadata.CreatedBy,
		fence.Metadata.Color,
		fence.Metadata.Icon,
		fence.CreatedAt,
		fence.Metadata.UpdatedAt,
	)
	return err
}

// Update replaces an existing geofence.
func (r *PostgresRepository) Update(ctx context.Context, fence *Fence) error {
	query := `
		UPDATE geofences SET
			name = $2,
			type = $3,
			points_polyline = $4,
			radius_km = $5,
			description = $6,
			color = $7,
			icon = $8,
			updated_at = $9
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		fence.ID,
		fence.Name,
		string(fence.Type),
		geo.Encode(fence.Points),
		fence.RadiusKm,
		fence.Metadata.Description,
		fence.Metadata.Color,
		fence.Metadata.Icon,
		fence.Metadata.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrGeofenceNotFound
	}

	return nil
}

// Delete removes a geofence by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM geofences WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFence(row rowScanner) (*Fence, error) {
	var fence Fence
	var points string

	err := row.Scan(
		&fence.ID,
		&fence.Name,
		&fence.Type,
		&points,
		&fence.RadiusKm,
		&fence.Metadata.Description,
		&fence.Metadata.CreatedBy,
		&fence.Metadata.Color,
		&fence.Metadata.Icon,
		&fence.CreatedAt,
		&fence.Metadata.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	fence.Points = geo.Decode(points)
	return &fence, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
