// Package sqlite stores recording metadata in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"screencast/internal/core/domain"
)

const (
	sqliteBusyCode    = 5
	busyRetryAttempts = 5
	busyRetryBackoff  = 10 * time.Millisecond
)

// timestampLayout is fixed width so created_at sorts lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

const recordingColumns = `id, title, filename, file_size, duration, format, quality,
	frame_rate, has_audio, has_microphone, created_at`

// SQLiteRecordingRepository implements ports.RecordingRepository on SQLite.
type SQLiteRecordingRepository struct {
	db   *sql.DB
	path string
}

// Open connects to the database at path, creating it and its directory if
// needed, and applies migrations.
func Open(path string) (*SQLiteRecordingRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

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

	repo := &SQLiteRecordingRepository{db: db, path: path}
	if err := repo.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database connection.
func (r *SQLiteRecordingRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Ping checks the database is reachable.
func (r *SQLiteRecordingRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRecordingRepository) Create(ctx context.Context, recording *domain.Recording) error {
	err := retryOnBusy(ctx, func() error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO recordings (`+recordingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(recording.ID),
			recording.Title,
			recording.Filename,
			recording.FileSize,
			recording.Duration,
			recording.Format,
			recording.Quality,
			recording.FrameRate,
			recording.HasAudio,
			recording.HasMicrophone,
			recording.CreatedAt.UTC().Format(timestampLayout),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

func (r *SQLiteRecordingRepository) GetByID(ctx context.Context, id domain.RecordingID) (*domain.Recording, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, string(id))
	recording, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return recording, nil
}

func (r *SQLiteRecordingRepository) Delete(ctx context.Context, id domain.RecordingID) error {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := r.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, string(id))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	if affected == 0 {
		return domain.ErrRecordingNotFound
	}
	return nil
}

func (r *SQLiteRecordingRepository) List(ctx context.Context) ([]*domain.Recording, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	recordings := []*domain.Recording{}
	for rows.Next() {
		recording, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		recordings = append(recordings, recording)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recordings: %w", err)
	}
	return recordings, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(row scanner) (*domain.Recording, error) {
	var (
		recording domain.Recording
		id        string
		createdAt string
	)
	if err := row.Scan(
		&id,
		&recording.Title,
		&recording.Filename,
		&recording.FileSize,
		&recording.Duration,
		&recording.Format,
		&recording.Quality,
		&recording.FrameRate,
		&recording.HasAudio,
		&recording.HasMicrophone,
		&createdAt,
	); err != nil {
		return nil, err
	}

	ts, err := time.Parse(timestampLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	recording.ID = domain.RecordingID(id)
	recording.CreatedAt = ts
	return &recording, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if !isSQLiteBusy(lastErr) {
			return lastErr
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return lastErr
}
