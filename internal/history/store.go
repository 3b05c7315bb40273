package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"kamiview/internal/config"
)

// timeLayout has fixed-width fractions so stored strings sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Playback is one watched episode.
type Playback struct {
	ID               int64
	ShikimoriID      string
	Title            string
	Episode          int
	TranslationID    string
	TranslationTitle string
	Position         float64
	Duration         float64
	SessionID        string
	StartedAt        time.Time
	UpdatedAt        time.Time
}

// Download is one download attempt outcome.
type Download struct {
	ID          int64
	Filename    string
	Content     string
	ContentType string
	Status      string
	Percent     float64
	Message     string
	Attempts    int
	SessionID   string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Store persists history in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.HistoryPath())
}

// OpenPath opens the database at path.
func OpenPath(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordPlayback inserts a playback entry and returns its id.
func (s *Store) RecordPlayback(ctx context.Context, p Playback) (int64, error) {
	if strings.TrimSpace(p.ShikimoriID) == "" {
		return 0, errors.New("playback entry requires a shikimori id")
	}
	if p.StartedAt.IsZero() {
		p.StartedAt = time.Now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.StartedAt
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO playback_history (
            shikimori_id, title, episode, translation_id, translation_title,
            position_seconds, duration_seconds, session_id, started_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ShikimoriID, p.Title, p.Episode, p.TranslationID, p.TranslationTitle,
		p.Position, p.Duration, p.SessionID, formatTime(p.StartedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert playback: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("playback id: %w", err)
	}
	return id, nil
}

// UpdatePlaybackPosition stores the latest known position for an entry.
func (s *Store) UpdatePlaybackPosition(ctx context.Context, id int64, position, duration float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE playback_history SET position_seconds = ?, duration_seconds = ?, updated_at = ? WHERE id = ?`,
		position, duration, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update playback %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("playback entry %d not found", id)
	}
	return nil
}

// RecordDownload inserts a download outcome and returns its id.
func (s *Store) RecordDownload(ctx context.Context, d Download) (int64, error) {
	if strings.TrimSpace(d.Filename) == "" {
		return 0, errors.New("download entry requires a filename")
	}
	if d.StartedAt.IsZero() {
		d.StartedAt = time.Now()
	}
	if d.FinishedAt.IsZero() {
		d.FinishedAt = d.StartedAt
	}
	if d.Attempts < 1 {
		d.Attempts = 1
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO download_history (
            filename, content, content_type, status, percent, message,
            attempts, session_id, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Filename, d.Content, d.ContentType, d.Status, d.Percent, d.Message,
		d.Attempts, d.SessionID, formatTime(d.StartedAt), formatTime(d.FinishedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert download: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("download id: %w", err)
	}
	return id, nil
}

// ListPlaybacks returns the most recent playback entries, newest first.
func (s *Store) ListPlaybacks(ctx context.Context, limit int) ([]Playback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, shikimori_id, title, episode, translation_id, translation_title,
            position_seconds, duration_seconds, session_id, started_at, updated_at
        FROM playback_history ORDER BY started_at DESC, id DESC LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query playbacks: %w", err)
	}
	defer rows.Close()

	var out []Playback
	for rows.Next() {
		var (
			p                  Playback
			started, updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.ShikimoriID, &p.Title, &p.Episode, &p.TranslationID, &p.TranslationTitle,
			&p.Position, &p.Duration, &p.SessionID, &started, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan playback: %w", err)
		}
		p.StartedAt = parseTime(started)
		p.UpdatedAt = parseTime(updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListDownloads returns the most recent download entries, newest first.
func (s *Store) ListDownloads(ctx context.Context, limit int) ([]Download, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, content, content_type, status, percent, message,
            attempts, session_id, started_at, finished_at
        FROM download_history ORDER BY started_at DESC, id DESC LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query downloads: %w", err)
	}
	defer rows.Close()

	var out []Download
	for rows.Next() {
		var (
			d                 Download
			started, finished string
		)
		if err := rows.Scan(&d.ID, &d.Filename, &d.Content, &d.ContentType, &d.Status, &d.Percent, &d.Message,
			&d.Attempts, &d.SessionID, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		d.StartedAt = parseTime(started)
		d.FinishedAt = parseTime(finished)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Clear removes every history entry.
func (s *Store) Clear(ctx context.Context) error {
	for _, table := range []string{"playback_history", "download_history"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
