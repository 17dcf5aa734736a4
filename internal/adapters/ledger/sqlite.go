// Package ledger provides the SQLite job ledger.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/jobrunner/geotools/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	method      TEXT NOT NULL,
	filename    TEXT NOT NULL,
	status      TEXT NOT NULL,
	output_dir  TEXT NOT NULL,
	artifacts   TEXT,
	error       TEXT,
	created_at  TEXT NOT NULL,
	finished_at TEXT
)`

// SQLiteLedger implements JobLedger on a SQLite database.
type SQLiteLedger struct {
	db *sql.DB
}

// Open opens (and if needed creates) the ledger database at path.
func Open(ctx context.Context, path string) (*SQLiteLedger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases alive and serializes writes.
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

// Begin implements JobLedger.
func (l *SQLiteLedger) Begin(ctx context.Context, rec domain.JobRecord) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO jobs (id, method, filename, status, output_dir, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Method), rec.Filename, string(rec.Status), rec.OutputDir, formatTime(rec.CreatedAt),
	)
	return err
}

// Finish implements JobLedger. Unknown jobs are inserted.
func (l *SQLiteLedger) Finish(ctx context.Context, rec domain.JobRecord) error {
	artifacts, err := json.Marshal(rec.Artifacts)
	if err != nil {
		return err
	}

	var finished sql.NullString
	if rec.FinishedAt != nil {
		finished = sql.NullString{String: formatTime(*rec.FinishedAt), Valid: true}
	}

	_, err = l.db.ExecContext(ctx, `
INSERT INTO jobs (id, method, filename, status, output_dir, artifacts, error, created_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	status = excluded.status,
	artifacts = excluded.artifacts,
	error = excluded.error,
	finished_at = excluded.finished_at`,
		rec.ID, string(rec.Method), rec.Filename, string(rec.Status), rec.OutputDir,
		string(artifacts), rec.Error, formatTime(rec.CreatedAt), finished,
	)
	return err
}

// Get implements JobLedger.
func (l *SQLiteLedger) Get(ctx context.Context, id string) (*domain.JobRecord, error) {
	var (
		rec       domain.JobRecord
		method    string
		status    string
		artifacts sql.NullString
		errText   sql.NullString
		created   string
		finished  sql.NullString
	)

	err := l.db.QueryRowContext(ctx,
		`SELECT id, method, filename, status, output_dir, artifacts, error, created_at, finished_at FROM jobs WHERE id = ?`,
		id,
	).Scan(&rec.ID, &method, &rec.Filename, &status, &rec.OutputDir, &artifacts, &errText, &created, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.Method = domain.Method(method)
	rec.Status = domain.JobStatus(status)
	rec.Error = errText.String
	if artifacts.Valid && artifacts.String != "" && artifacts.String != "null" {
		if err := json.Unmarshal([]byte(artifacts.String), &rec.Artifacts); err != nil {
			return nil, fmt.Errorf("decoding artifacts: %w", err)
		}
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("decoding created_at: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return nil, fmt.Errorf("decoding finished_at: %w", err)
		}
		rec.FinishedAt = &t
	}

	return &rec, nil
}

// Close closes the database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
