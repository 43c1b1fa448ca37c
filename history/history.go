// Package history keeps a sqlite record of every successfully resolved
// track. It is observability only and never sits on the serving path.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

type PlayRecord struct {
	ID       int64     `json:"id"`
	TrackID  string    `json:"track_id"`
	Title    string    `json:"title"`
	Artist   string    `json:"artist"`
	Query    string    `json:"query"`
	ServedAt time.Time `json:"served_at"`
}

// New opens (or creates) the history database. dbPath defaults to the
// DB_PATH env var handled by config; callers pass the resolved path.
func New(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = "./data/history.db"
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Infof("History database initialized at %s", dbPath)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS play_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			track_id TEXT NOT NULL,
			title TEXT NOT NULL,
			artist TEXT NOT NULL DEFAULT '',
			query TEXT NOT NULL DEFAULT '',
			served_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_play_history_served_at ON play_history(served_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_play_history_track_id ON play_history(track_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	return nil
}

// RecordPlay stores one resolved track. Failures are logged by callers;
// a history write never blocks serving.
func (s *Store) RecordPlay(trackID, title, artist, query string) error {
	_, err := s.db.Exec(
		`INSERT INTO play_history (track_id, title, artist, query) VALUES (?, ?, ?, ?)`,
		trackID, title, artist, query,
	)
	if err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}
	return nil
}

// Recent returns the most recently served tracks, newest first.
func (s *Store) Recent(limit int) ([]PlayRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := s.db.Query(
		`SELECT id, track_id, title, artist, query, served_at
		 FROM play_history ORDER BY served_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	records := make([]PlayRecord, 0, limit)
	for rows.Next() {
		var r PlayRecord
		if err := rows.Scan(&r.ID, &r.TrackID, &r.Title, &r.Artist, &r.Query, &r.ServedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
