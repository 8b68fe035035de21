package alert

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saferoute/saferoute/pkg/geo"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL alert repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const alertColumns = `id, user_id, type, lat, lon, geofence_id, detail, notified, partial, read, created_at`

// Create stores a new alert record.
func (r *PostgresRepository) Create(ctx context.Context, a *SafetyAlert) error {
	query := `
		INSERT INTO safety_alerts (id, user_id, type, lat, lon, geofence_id, detail, notified, partial, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var lat, lon *float64
	if a.Location != nil {
		lat, lon = &a.Location.Lat, &a.Location.Lon
	}

	_, err := r.pool.Exec(ctx, query,
		a.ID,
		a.UserID,
		string(a.Type),
		lat,
		lon,
		nullable(a.GeofenceID),
		a.Detail,
		a.Notified,
		a.Partial,
		a.Read,
		a.CreatedAt,
	)
	return err
}

// ListByUser retrieves a user's alerts, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*SafetyAlert, error) {
	query := `SELECT ` + alertColumns + `
		FROM safety_alerts
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*SafetyAlert
	for rows.Next() {
		var a SafetyAlert
		var lat, lon *float64
		var geofenceID *string

		err := rows.Scan(
			&a.ID,
			&a.UserID,
			&a.Type,
			&lat,
			&lon,
			&geofenceID,
			&a.Detail,
			&a.Notified,
			&a.Partial,
			&a.Read,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if lat != nil && lon != nil {
			a.Location = &geo.Coordinate{Lat: *lat, Lon: *lon}
		}
		if geofenceID != nil {
			a.GeofenceID = *geofenceID
		}
		result = append(result, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// MarkRead flags an alert as read.
func (r *PostgresRepository) MarkRead(ctx context.Context, id string) error {
	query := `UPDATE safety_alerts SET read = true WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
