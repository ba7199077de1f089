// Package history records every dispatched request for observability. The
// bridge itself keeps no state across restarts; this log is auxiliary and
// never consulted by the correlation path.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Outcome classifies how a recorded request settled.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Entry is one recorded request.
type Entry struct {
	ID        string
	Kind      string // script | context | notify | raw
	Tool      string // originating tool name, empty for raw scripts
	Outcome   string
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}

// Counts summarizes the log for /status.
type Counts struct {
	Total    int `json:"total"`
	OK       int `json:"ok"`
	Errors   int `json:"errors"`
	Timeouts int `json:"timeouts"`
}

// Store persists entries to SQLite.
type Store struct {
	db *sql.DB
}

// NewStore wraps an opened database (see storage.OpenSQLite).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts one entry. Recording failures are the caller's to log;
// they never affect request handling.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO request_log (id, kind, tool, outcome, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.Tool, e.Outcome, e.Error,
		e.Duration.Milliseconds(), e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record request: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first. Ordering is by
// insertion, which matches creation order for a single process.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, tool, outcome, error, duration_ms, created_at
		 FROM request_log ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query request log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationMS int64
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Tool, &e.Outcome, &e.Error, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan request log row: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByOutcome returns aggregate counters over the whole log.
func (s *Store) CountByOutcome(ctx context.Context) (Counts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM request_log GROUP BY outcome`)
	if err != nil {
		return Counts{}, fmt.Errorf("count request log: %w", err)
	}
	defer rows.Close()

	var c Counts
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return Counts{}, fmt.Errorf("scan count row: %w", err)
		}
		c.Total += n
		switch outcome {
		case OutcomeOK:
			c.OK = n
		case OutcomeError:
			c.Errors = n
		case OutcomeTimeout:
			c.Timeouts = n
		}
	}
	return c, rows.Err()
}

// Prune removes entries older than the retention window.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM request_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune request log: %w", err)
	}
	return res.RowsAffected()
}
