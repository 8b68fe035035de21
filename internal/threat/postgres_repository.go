package threat

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

// NewPostgresRepository creates a new PostgreSQL threat repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const threatColumns = `
	id, name, description, lat, lon, level, category, time_of_day,
	verified, verified_by, verified_at,
	votes, report_count, reported_at, last_report_date
`

// Get retrieves a threat location by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Location, error) {
	query := `SELECT ` + threatColumns + ` FROM threat_locations WHERE id = $1`

	var loc Location
	var tags []string
	var verifiedBy *string

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&loc.ID,
		&loc.Name,
		&loc.Description,
		&loc.Coordinate.Lat,
		&loc.Coordinate.Lon,
		&loc.Level,
		&loc.Category,
		&tags,
		&loc.Verified,
		&verifiedBy,
		&loc.VerifiedAt,
		&loc.Votes,
		&loc.ReportCount,
		&loc.ReportedAt,
		&loc.LastReportDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrThreatNotFound
		}
		return nil, err
	}

	loc.TimeOfDay = toTimeOfDay(tags)
	if verifiedBy != nil {
		loc.VerifiedBy = *verifiedBy
	}

	return &loc, nil
}

// List retrieves threat locations matching the given options.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) ([]*Location, error) {
	query := `SELECT ` + threatColumns + `
		FROM threat_locations
		WHERE ($1::boolean IS NULL OR verified = $1)
		  AND ($2::text = '' OR level = $2)
		  AND ($3::text = '' OR category = $3)
		ORDER BY reported_at DESC`

	rows, err := r.pool.Query(ctx, query, opts.Verified, string(opts.Level), string(opts.Category))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Location
	for rows.Next() {
		var loc Location
		var tags []string
		var verifiedBy *string

		err := rows.Scan(
			&loc.ID,
			&loc.Name,
			&loc.Description,
			&loc.Coordinate.Lat,
			&loc.Coordinate.Lon,
			&loc.Level,
			&loc.Category,
			&tags,
			&loc.Verified,
			&verifiedBy,
			&loc.VerifiedAt,
			&loc.Votes,
			&loc.ReportCount,
			&loc.ReportedAt,
			&loc.LastReportDate,
		)
		if err != nil {
			return nil, err
		}

		loc.TimeOfDay = toTimeOfDay(tags)
		if verifiedBy != nil {
			loc.VerifiedBy = *verifiedBy
		}
		result = append(result, &loc)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Create stores a new threat location.
func (r *PostgresRepository) Create(ctx context.Context, loc *Location) error {
	query := `
		INSERT INTO threat_locations (
			id, name, description, lat, lon, level, category, time_of_day,
			verified, verified_by, verified_at,
			votes, report_count, reported_at, last_report_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.pool.Exec(ctx, query,
		loc.ID,
		loc.Name,
		loc.Description,
		loc.Coordinate.Lat,
		loc.Coordinate.Lon,
		string(loc.Level),
		string(loc.Category),
		fromTimeOfDay(loc.TimeOfDay),
		loc.Verified,
		nullable(loc.VerifiedBy),
		loc.VerifiedAt,
		loc.Votes,
		loc.ReportCount,
		loc.ReportedAt,
		loc.LastReportDate,
	)
	return err
}

// Update replaces an existing threat location.
func (r *PostgresRepository) Update(ctx context.Context, loc *Location) error {
	query := `
		UPDATE threat_locations SET
			name = $2,
			description = $3,
			lat = $4,
			lon = $5,
			level = $6,
			category = $7,
			time_of_day = $8,
			verified = $9,
			verified_by = $10,
			verified_at = $11,
			votes = $12,
			report_count = $13,
			last_report_date = $14
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		loc.ID,
		loc.Name,
		loc.Description,
		loc.Coordinate.Lat,
		loc.Coordinate.Lon,
		string(loc.Level),
		string(loc.Category),
		fromTimeOfDay(loc.TimeOfDay),
		loc.Verified,
		nullable(loc.VerifiedBy),
		loc.VerifiedAt,
		loc.Votes,
		loc.ReportCount,
		loc.LastReportDate,
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrThreatNotFound
	}

	return nil
}

// Delete removes a threat location.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM threat_locations WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func toTimeOfDay(tags []string) []TimeOfDay {
	if len(tags) == 0 {
		return nil
	}
	result := make([]TimeOfDay, 0, len(tags))
	for _, t := range tags {
		result = append(result, TimeOfDay(t))
	}
	return result
}

func fromTimeOfDay(tags []TimeOfDay) []string {
	result := make([]string, 0, len(tags))
	for _, t := range tags {
		result = append(result, string(t))
	}
	return result
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
