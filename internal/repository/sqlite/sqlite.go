package sqlite

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection. SQLite allows many concurrent readers but
// a single writer, so writes are serialized behind the mutex while reads
// take the shared lock.
type DB struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (creating if necessary) the SQLite database at dbPath and
// applies the schema.
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	database := &DB{db: db}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return database, nil
}

// migrate creates the necessary tables if they don't exist. Zones are
// normalized into their own table so that zone filters are exact set
// membership tests, never substring matches against a serialized list.
func (d *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		camera TEXT NOT NULL,
		label TEXT NOT NULL,
		start_time REAL NOT NULL,
		end_time REAL NOT NULL DEFAULT 0,
		thumbnail BLOB
	);

	CREATE TABLE IF NOT EXISTS event_zones (
		event_id TEXT NOT NULL,
		zone TEXT NOT NULL,
		FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_events_camera ON events(camera);
	CREATE INDEX IF NOT EXISTS idx_events_label ON events(label);
	CREATE INDEX IF NOT EXISTS idx_events_start_time ON events(start_time);
	CREATE INDEX IF NOT EXISTS idx_event_zones_zone ON event_zones(zone);
	CREATE INDEX IF NOT EXISTS idx_event_zones_event_id ON event_zones(event_id);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Conn returns the underlying database connection.
func (d *DB) Conn() *sql.DB {
	return d.db
}

// Lock acquires the write lock.
func (d *DB) Lock() { d.mu.Lock() }

// Unlock releases the write lock.
func (d *DB) Unlock() { d.mu.Unlock() }

// RLock acquires the read lock.
func (d *DB) RLock() { d.mu.RLock() }

// RUnlock releases the read lock.
func (d *DB) RUnlock() { d.mu.RUnlock() }

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}
