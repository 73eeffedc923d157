package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tourplanner/tp/internal/schema"
)

const tourColumns = `t.id, t.name, t.from_location, t.to_location, t.transport_type, t.description,
	t.distance_km, t.estimated_minutes, t.route_geometry, t.created_at, t.updated_at`

// GetAll returns every tour ordered by id.
func (db *DB) GetAll(ctx context.Context) ([]*schema.Tour, error) {
	query := `SELECT ` + tourColumns + ` FROM tours t ORDER BY t.id`
	return db.queryTours(ctx, query)
}

// FindByID returns the tour with the given id, or ErrNotFound.
func (db *DB) FindByID(ctx context.Context, id int64) (*schema.Tour, error) {
	query := `SELECT ` + tourColumns + ` FROM tours t WHERE t.id = ?`
	row := db.conn.QueryRowContext(ctx, query, id)
	tour, err := scanTour(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tour %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tour %d: %w", id, err)
	}
	return tour, nil
}

// CountTours returns the total number of tours.
func (db *DB) CountTours(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM tours`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tours: %w", err)
	}
	return count, nil
}

// Save inserts the tour when its ID is zero and updates it otherwise.
//
// Basic and derived route fields are written by one statement, so a caller
// persisting a sync result never leaves a row with new endpoints and a
// stale distance in between. On insert the assigned id is written back to
// tour.ID.
func (db *DB) Save(ctx context.Context, tour *schema.Tour) error {
	tour.SetDefaults()
	if err := tour.Validate(); err != nil {
		return fmt.Errorf("invalid tour: %w", err)
	}

	if tour.ID == 0 {
		return db.insertTour(ctx, tour)
	}

	tour.UpdatedAt = time.Now().UTC()
	query := `
	UPDATE tours SET
		name = ?,
		from_location = ?,
		to_location = ?,
		transport_type = ?,
		description = ?,
		distance_km = ?,
		estimated_minutes = ?,
		route_geometry = ?,
		updated_at = ?
	WHERE id = ?
	`
	res, err := db.conn.ExecContext(ctx, query,
		tour.Name,
		tour.From,
		tour.To,
		tour.TransportType,
		tour.Description,
		tour.DistanceKm,
		tour.EstimatedMinutes,
		tour.RouteGeometry,
		formatTime(tour.UpdatedAt),
		tour.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update tour %d: %w", tour.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update tour %d: %w", tour.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("tour %d: %w", tour.ID, ErrNotFound)
	}
	return nil
}

func (db *DB) insertTour(ctx context.Context, tour *schema.Tour) error {
	query := `
	INSERT INTO tours (
		name, from_location, to_location, transport_type, description,
		distance_km, estimated_minutes, route_geometry, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := db.conn.ExecContext(ctx, query,
		tour.Name,
		tour.From,
		tour.To,
		tour.TransportType,
		tour.Description,
		tour.DistanceKm,
		tour.EstimatedMinutes,
		tour.RouteGeometry,
		formatTime(tour.CreatedAt),
		formatTime(tour.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert tour: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read new tour id: %w", err)
	}
	tour.ID = id
	return nil
}

// Delete removes a tour and, through the foreign key cascade, its logs.
// Returns nil if the tour doesn't exist (idempotent).
func (db *DB) Delete(ctx context.Context, id int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Explicit delete keeps the cascade intact for databases opened without
	// the foreign_keys pragma.
	if _, err := tx.ExecContext(ctx, `DELETE FROM tour_logs WHERE tour_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete logs of tour %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tours WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete tour %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SearchTours returns tours whose name, endpoints, transport type or
// description contain text, ignoring case.
func (db *DB) SearchTours(ctx context.Context, text string) ([]*schema.Tour, error) {
	query := `
	SELECT ` + tourColumns + `
	FROM tours t
	WHERE instr(lower(t.name), ?) > 0
	   OR instr(lower(t.from_location), ?) > 0
	   OR instr(lower(t.to_location), ?) > 0
	   OR instr(lower(t.transport_type), ?) > 0
	   OR instr(lower(t.description), ?) > 0
	ORDER BY t.id
	`
	needle := strings.ToLower(text)
	return db.queryTours(ctx, query, needle, needle, needle, needle, needle)
}

// ToursWithMatchingLogs returns the distinct tours owning at least one log
// whose comment or difficulty contains text, ignoring case.
func (db *DB) ToursWithMatchingLogs(ctx context.Context, text string) ([]*schema.Tour, error) {
	query := `
	SELECT ` + tourColumns + `
	FROM tours t
	WHERE EXISTS (
		SELECT 1 FROM tour_logs l
		WHERE l.tour_id = t.id
		  AND (instr(lower(l.comment), ?) > 0 OR instr(lower(l.difficulty), ?) > 0)
	)
	ORDER BY t.id
	`
	needle := strings.ToLower(text)
	return db.queryTours(ctx, query, needle, needle)
}

// UnsyncedRoutableTours returns tours with both endpoints set whose route
// was never synced successfully.
func (db *DB) UnsyncedRoutableTours(ctx context.Context) ([]*schema.Tour, error) {
	query := `
	SELECT ` + tourColumns + `
	FROM tours t
	WHERE t.distance_km = 0
	  AND trim(t.from_location) != ''
	  AND trim(t.to_location) != ''
	ORDER BY t.id
	`
	return db.queryTours(ctx, query)
}

func (db *DB) queryTours(ctx context.Context, query string, args ...any) ([]*schema.Tour, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tours: %w", err)
	}
	defer rows.Close()

	var tours []*schema.Tour
	for rows.Next() {
		tour, err := scanTour(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tour: %w", err)
		}
		tours = append(tours, tour)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tours: %w", err)
	}
	return tours, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTour(row rowScanner) (*schema.Tour, error) {
	var (
		tour                 schema.Tour
		createdAt, updatedAt string
	)
	err := row.Scan(
		&tour.ID,
		&tour.Name,
		&tour.From,
		&tour.To,
		&tour.TransportType,
		&tour.Description,
		&tour.DistanceKm,
		&tour.EstimatedMinutes,
		&tour.RouteGeometry,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tour.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if tour.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &tour, nil
}
