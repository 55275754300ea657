package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection with thread-safe access.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// New creates and initializes a new SQLite database connection.
func New(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// migrate creates the necessary tables if they don't exist.
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cameras (
		camera_id INTEGER PRIMARY KEY AUTOINCREMENT,
		camera_name TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		road_name TEXT NOT NULL DEFAULT '',
		feed_url TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS incidents (
		incident_id INTEGER PRIMARY KEY AUTOINCREMENT,
		incident_type TEXT NOT NULL,
		severity TEXT NOT NULL DEFAULT 'medium' CHECK (severity IN ('low', 'medium', 'high')),
		timestamp DATETIME NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		camera_id INTEGER NOT NULL,
		FOREIGN KEY (camera_id) REFERENCES cameras(camera_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS notifications (
		notification_id INTEGER PRIMARY KEY AUTOINCREMENT,
		incident_id INTEGER NOT NULL,
		camera_id INTEGER NOT NULL,
		message TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		severity TEXT NOT NULL DEFAULT '',
		read_status INTEGER NOT NULL DEFAULT 0,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (incident_id) REFERENCES incidents(incident_id) ON DELETE CASCADE
	);

	DROP INDEX IF EXISTS idx_cameras_name;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_cameras_name_unique ON cameras(camera_name);
	CREATE INDEX IF NOT EXISTS idx_incidents_camera ON incidents(camera_id);
	CREATE INDEX IF NOT EXISTS idx_incidents_timestamp ON incidents(timestamp);
	CREATE INDEX IF NOT EXISTS idx_incidents_severity ON incidents(severity);
	CREATE INDEX IF NOT EXISTS idx_notifications_read ON notifications(read_status, timestamp);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection for use by repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Lock acquires a write lock.
func (db *DB) Lock() {
	db.mu.Lock()
}

// Unlock releases the write lock.
func (db *DB) Unlock() {
	db.mu.Unlock()
}

// RLock acquires a read lock.
func (db *DB) RLock() {
	db.mu.RLock()
}

// RUnlock releases the read lock.
func (db *DB) RUnlock() {
	db.mu.RUnlock()
}
