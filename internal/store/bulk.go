package store

import (
	"context"
	"fmt"

	"github.com/tourplanner/tp/internal/schema"
)

// InsertTours stores each tour and its embedded logs as new rows in one
// transaction. Incoming ids are ignored; the assigned ids are written back
// to the tours and logs.
func (db *DB) InsertTours(ctx context.Context, tours []*schema.Tour) error {
	for i, tour := range tours {
		tour.SetDefaults()
		if err := tour.Validate(); err != nil {
			return fmt.Errorf("invalid tour %d (%q): %w", i, tour.Name, err)
		}
		for j, log := range tour.Logs {
			log.SetDefaults()
			if err := log.Validate(); err != nil {
				return fmt.Errorf("invalid log %d of tour %q: %w", j, tour.Name, err)
			}
		}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tourStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO tours (
		name, from_location, to_location, transport_type, description,
		distance_km, estimated_minutes, route_geometry, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare tour insert: %w", err)
	}
	defer tourStmt.Close()

	logStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO tour_logs (
		tour_id, date_time, comment, difficulty,
		total_distance_km, total_time_minutes, rating
	) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare log insert: %w", err)
	}
	defer logStmt.Close()

	ids := make([]int64, len(tours))
	logIDs := make([][]int64, len(tours))
	for i, tour := range tours {
		res, err := tourStmt.ExecContext(ctx,
			tour.Name, tour.From, tour.To, tour.TransportType, tour.Description,
			tour.DistanceKm, tour.EstimatedMinutes, tour.RouteGeometry,
			formatTime(tour.CreatedAt), formatTime(tour.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert tour %q: %w", tour.Name, err)
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read new tour id: %w", err)
		}

		for _, log := range tour.Logs {
			res, err := logStmt.ExecContext(ctx,
				ids[i], formatTime(log.DateTime), log.Comment, log.Difficulty,
				log.TotalDistanceKm, log.TotalTimeMinutes, log.Rating,
			)
			if err != nil {
				return fmt.Errorf("failed to insert log for tour %q: %w", tour.Name, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to read new log id: %w", err)
			}
			logIDs[i] = append(logIDs[i], id)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Only publish ids once the rows are durable.
	for i, tour := range tours {
		tour.ID = ids[i]
		for j, log := range tour.Logs {
			log.ID = logIDs[i][j]
			log.TourID = ids[i]
		}
	}
	return nil
}

// ToursWithLogs returns every tour with its Logs populated, for export and
// reports.
func (db *DB) ToursWithLogs(ctx context.Context) ([]*schema.Tour, error) {
	tours, err := db.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	logs, err := db.AllLogs(ctx)
	if err != nil {
		return nil, err
	}

	byTour := make(map[int64][]*schema.TourLog, len(tours))
	for _, l := range logs {
		byTour[l.TourID] = append(byTour[l.TourID], l)
	}
	for _, t := range tours {
		t.Logs = byTour[t.ID]
	}
	return tours, nil
}
