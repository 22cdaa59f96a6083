package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Play is one recorded playback session
type Play struct {
	ID         int64
	TrackID    string
	Path       string
	StartedAt  time.Time
	DurationMS int64
	Completed  bool
}

// Store persists playback history in a SQLite database. Recording is
// best effort: a failed write disables the store for the rest of the
// session rather than disturbing playback.
type Store struct {
	db       *sql.DB
	disabled bool
}

// Open creates or opens the history database at the given path and
// applies the schema
func Open(dbPath string) (*Store, error) {
	// Ensure directory exists if not in-memory
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA user_version = 1",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	slog.Debug("history database opened", "path", dbPath)
	return &Store{db: db}, nil
}

// ensureSchema creates the database schema if it doesn't exist
func ensureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS plays (
    id          INTEGER PRIMARY KEY,
    track_id    TEXT    NOT NULL,
    path        TEXT    NOT NULL,
    started_at  INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    completed   INTEGER NOT NULL DEFAULT 0 CHECK (completed IN (0,1))
);

CREATE INDEX IF NOT EXISTS idx_plays_started ON plays(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_plays_track ON plays(track_id);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// RecordPlay inserts one playback row. Failures disable further
// recording for the session.
func (s *Store) RecordPlay(play Play) {
	if s.disabled {
		return
	}

	startedAt := play.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	completed := 0
	if play.Completed {
		completed = 1
	}

	_, err := s.db.Exec(
		"INSERT INTO plays (track_id, path, started_at, duration_ms, completed) VALUES (?, ?, ?, ?, ?)",
		play.TrackID, play.Path, startedAt.Unix(), play.DurationMS, completed)
	if err != nil {
		slog.Warn("playback history recording failed, disabling for session", "error", err)
		s.disabled = true
		return
	}

	slog.Debug("playback recorded",
		"track_id", play.TrackID,
		"duration_ms", play.DurationMS,
		"completed", play.Completed)
}

// RecentPlays returns up to limit plays, newest first
func (s *Store) RecentPlays(limit int) ([]Play, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		"SELECT id, track_id, path, started_at, duration_ms, completed FROM plays ORDER BY started_at DESC, id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent plays: %w", err)
	}
	defer rows.Close()

	var plays []Play
	for rows.Next() {
		var p Play
		var startedAt int64
		var completed int
		if err := rows.Scan(&p.ID, &p.TrackID, &p.Path, &startedAt, &p.DurationMS, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan play row: %w", err)
		}
		p.StartedAt = time.Unix(startedAt, 0)
		p.Completed = completed == 1
		plays = append(plays, p)
	}

	return plays, rows.Err()
}

// PlayCount returns how many plays are recorded for a track
func (s *Store) PlayCount(trackID string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM plays WHERE track_id = ?", trackID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count plays: %w", err)
	}
	return count, nil
}

// Close releases the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
