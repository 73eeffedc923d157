// Package store provides the SQLite persistence layer for tours and tour logs.
//
// The database runs embedded through ncruces/go-sqlite3 (a wasm build of
// SQLite, no cgo) in WAL mode so the CLI, the inbox daemon and the dashboard
// can read while a sync result is being written.
//
// Architecture:
//   - Database file: configurable, defaults to ~/.local/share/tourplanner/tours.db
//   - Tables: tours, tour_logs (ON DELETE CASCADE from tours)
//   - Search: case-insensitive substring predicates evaluated in SQL, with
//     lower() replaced on every connection by a Unicode aware version so
//     "Ötztal" and "ötztal" fold the same way the Go side folds the needle
//
// Tour rows carry both the basic user fields and the derived route fields,
// and Save writes all of them in one statement so a sync result and the
// edit that triggered it land atomically.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/ncruces/go-sqlite3/ext/unicode"
)

// ErrNotFound is returned when a tour or log id does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite connection pool.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// Connection-level pragmas are passed through the DSN so that every pooled
// connection enforces foreign keys, not only the first one. The Unicode
// functions are registered on each new connection for the same reason.
//
// The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(wal)")
	connStr := "file:" + path + "?" + q.Encode()

	conn, err := driver.Open(connStr, unicode.Register)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{conn: conn, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close checkpoints the WAL and closes the connection pool.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// This is idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tours (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		from_location TEXT NOT NULL DEFAULT '',
		to_location TEXT NOT NULL DEFAULT '',
		transport_type TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',

		-- Derived route fields, written by route sync only
		distance_km REAL NOT NULL DEFAULT 0,
		estimated_minutes INTEGER NOT NULL DEFAULT 0,
		route_geometry TEXT NOT NULL DEFAULT '',

		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tour_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tour_id INTEGER NOT NULL,
		date_time TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT '',
		total_distance_km REAL NOT NULL DEFAULT 0,
		total_time_minutes INTEGER NOT NULL DEFAULT 0,
		rating INTEGER NOT NULL,
		FOREIGN KEY (tour_id) REFERENCES tours(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_tour_logs_tour ON tour_logs(tour_id);
	-- Backlog query: routable tours that were never synced
	CREATE INDEX IF NOT EXISTS idx_tours_unsynced ON tours(distance_km) WHERE distance_km = 0;
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// formatTime stores timestamps as RFC3339 text in UTC.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
