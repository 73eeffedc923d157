package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tourplanner/tp/internal/schema"
)

const logColumns = `l.id, l.tour_id, l.date_time, l.comment, l.difficulty,
	l.total_distance_km, l.total_time_minutes, l.rating`

// GetByTourID returns the logs of one tour ordered by date.
func (db *DB) GetByTourID(ctx context.Context, tourID int64) ([]*schema.TourLog, error) {
	query := `SELECT ` + logColumns + ` FROM tour_logs l WHERE l.tour_id = ? ORDER BY l.date_time, l.id`
	return db.queryLogs(ctx, query, tourID)
}

// AllLogs returns every log grouped by tour.
func (db *DB) AllLogs(ctx context.Context) ([]*schema.TourLog, error) {
	query := `SELECT ` + logColumns + ` FROM tour_logs l ORDER BY l.tour_id, l.date_time, l.id`
	return db.queryLogs(ctx, query)
}

// SearchLogs returns logs whose comment or difficulty contains text,
// ignoring case.
func (db *DB) SearchLogs(ctx context.Context, text string) ([]*schema.TourLog, error) {
	query := `
	SELECT ` + logColumns + `
	FROM tour_logs l
	WHERE instr(lower(l.comment), ?) > 0 OR instr(lower(l.difficulty), ?) > 0
	ORDER BY l.tour_id, l.date_time, l.id
	`
	needle := strings.ToLower(text)
	return db.queryLogs(ctx, query, needle, needle)
}

// FindLogByID returns the log with the given id, or ErrNotFound.
func (db *DB) FindLogByID(ctx context.Context, id int64) (*schema.TourLog, error) {
	query := `SELECT ` + logColumns + ` FROM tour_logs l WHERE l.id = ?`
	log, err := scanLog(db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("log %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get log %d: %w", id, err)
	}
	return log, nil
}

// SaveLog inserts the log when its ID is zero and updates it otherwise.
// The parent tour must exist.
func (db *DB) SaveLog(ctx context.Context, log *schema.TourLog) error {
	log.SetDefaults()
	if err := log.Validate(); err != nil {
		return fmt.Errorf("invalid log: %w", err)
	}
	if log.TourID == 0 {
		return fmt.Errorf("invalid log: tour_id is required")
	}

	if log.ID == 0 {
		query := `
		INSERT INTO tour_logs (
			tour_id, date_time, comment, difficulty,
			total_distance_km, total_time_minutes, rating
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		res, err := db.conn.ExecContext(ctx, query,
			log.TourID,
			formatTime(log.DateTime),
			log.Comment,
			log.Difficulty,
			log.TotalDistanceKm,
			log.TotalTimeMinutes,
			log.Rating,
		)
		if err != nil {
			return fmt.Errorf("failed to insert log for tour %d: %w", log.TourID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read new log id: %w", err)
		}
		log.ID = id
		return nil
	}

	query := `
	UPDATE tour_logs SET
		tour_id = ?,
		date_time = ?,
		comment = ?,
		difficulty = ?,
		total_distance_km = ?,
		total_time_minutes = ?,
		rating = ?
	WHERE id = ?
	`
	res, err := db.conn.ExecContext(ctx, query,
		log.TourID,
		formatTime(log.DateTime),
		log.Comment,
		log.Difficulty,
		log.TotalDistanceKm,
		log.TotalTimeMinutes,
		log.Rating,
		log.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update log %d: %w", log.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update log %d: %w", log.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("log %d: %w", log.ID, ErrNotFound)
	}
	return nil
}

// DeleteLog removes a single log. Returns nil if it doesn't exist.
func (db *DB) DeleteLog(ctx context.Context, id int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM tour_logs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete log %d: %w", id, err)
	}
	return nil
}

func (db *DB) queryLogs(ctx context.Context, query string, args ...any) ([]*schema.TourLog, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var logs []*schema.TourLog
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate logs: %w", err)
	}
	return logs, nil
}

func scanLog(row rowScanner) (*schema.TourLog, error) {
	var (
		log      schema.TourLog
		dateTime string
	)
	err := row.Scan(
		&log.ID,
		&log.TourID,
		&dateTime,
		&log.Comment,
		&log.Difficulty,
		&log.TotalDistanceKm,
		&log.TotalTimeMinutes,
		&log.Rating,
	)
	if err != nil {
		return nil, err
	}
	if log.DateTime, err = parseTime(dateTime); err != nil {
		return nil, err
	}
	return &log, nil
}
