// Package storage keeps the history of offset boundaries and conversion runs
// in SQLite.
package storage

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

const timestampLayout = "2006-01-02 15:04:05"

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS boundaries (
  id                INTEGER PRIMARY KEY,
  internal_time     TEXT NOT NULL,
  display_time      TEXT,
  display_offset    INTEGER NOT NULL,
  timezone          TEXT NOT NULL,
  reason            TEXT NOT NULL,
  run_id            INTEGER NOT NULL DEFAULT 0,
  first_seen_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  last_seen_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(internal_time)
);
CREATE TABLE IF NOT EXISTS boundary_changes (
  id                INTEGER PRIMARY KEY,
  occurred_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  internal_time     TEXT NOT NULL,
  display_offset    INTEGER NOT NULL,
  timezone          TEXT NOT NULL,
  reason            TEXT NOT NULL,
  change_type       TEXT NOT NULL CHECK (change_type IN ('added','updated','removed'))
);
CREATE INDEX IF NOT EXISTS idx_changes_time ON boundary_changes(occurred_at);
CREATE TABLE IF NOT EXISTS runs (
  id                INTEGER PRIMARY KEY,
  started_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  input             TEXT,
  readings          INTEGER NOT NULL DEFAULT 0,
  resolved          INTEGER NOT NULL DEFAULT 0,
  unresolved        INTEGER NOT NULL DEFAULT 0,
  rejected          INTEGER NOT NULL DEFAULT 0,
  boundaries        INTEGER NOT NULL DEFAULT 0
);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// UpsertBoundaries makes the stored boundaries match the current change log
// and returns what changed: new keys are added, keys whose offset, zone or
// reason moved are updated and keys no longer in the log are removed.
func (d *DB) UpsertBoundaries(ctx context.Context, boundaries []Boundary) ([]Change, error) {
	now := time.Now().UTC()
	runID := now.UnixNano()

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, "SELECT internal_time, display_time, display_offset, timezone, reason FROM boundaries")
	if err != nil {
		return nil, err
	}

	existingMap := make(map[string]Boundary)
	for rows.Next() {
		var (
			b       Boundary
			display sql.NullString
		)
		if err = rows.Scan(&b.InternalTime, &display, &b.OffsetHours, &b.Timezone, &b.Reason); err != nil {
			rows.Close()
			return nil, err
		}
		b.DisplayTime = display.String
		existingMap[identityKey(b.InternalTime)] = b
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}

	var changes []Change
	record := func(b Boundary, changeType string) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO boundary_changes(occurred_at, internal_time, display_offset, timezone, reason, change_type) VALUES(CURRENT_TIMESTAMP, ?, ?, ?, ?, ?)`, b.InternalTime, b.OffsetHours, b.Timezone, b.Reason, changeType)
		if err != nil {
			return err
		}
		changes = append(changes, Change{OccurredAt: now, InternalTime: b.InternalTime, OffsetHours: b.OffsetHours, Timezone: b.Timezone, Reason: b.Reason, ChangeType: changeType})
		return nil
	}

	for _, b := range boundaries {
		key := identityKey(b.InternalTime)
		ex, existed := existingMap[key]

		switch {
		case !existed:
			_, err = tx.ExecContext(ctx, `INSERT INTO boundaries(internal_time, display_time, display_offset, timezone, reason, run_id, first_seen_at, last_seen_at) VALUES(?,?,?,?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)`, b.InternalTime, nullIfEmpty(b.DisplayTime), b.OffsetHours, b.Timezone, b.Reason, runID)
			if err != nil {
				return nil, err
			}
			if err = record(b, "added"); err != nil {
				return nil, err
			}
			existingMap[key] = b // Track the new boundary
		case !sameBoundary(ex, b):
			_, err = tx.ExecContext(ctx, `UPDATE boundaries SET display_time = ?, display_offset = ?, timezone = ?, reason = ?, run_id = ?, last_seen_at = CURRENT_TIMESTAMP WHERE internal_time = ?`, nullIfEmpty(b.DisplayTime), b.OffsetHours, b.Timezone, b.Reason, runID, b.InternalTime)
			if err != nil {
				return nil, err
			}
			if err = record(b, "updated"); err != nil {
				return nil, err
			}
		default:
			_, err = tx.ExecContext(ctx, `UPDATE boundaries SET run_id = ?, last_seen_at = CURRENT_TIMESTAMP WHERE internal_time = ?`, runID, b.InternalTime)
			if err != nil {
				return nil, err
			}
		}
	}

	// Sweep: find and delete boundaries not touched in this run, log removals
	staleRows, err := tx.QueryContext(ctx, "SELECT internal_time, display_offset, timezone, reason FROM boundaries WHERE run_id != ?", runID)
	if err != nil {
		return nil, err
	}
	var toRemove []Boundary
	for staleRows.Next() {
		var b Boundary
		if err = staleRows.Scan(&b.InternalTime, &b.OffsetHours, &b.Timezone, &b.Reason); err != nil {
			staleRows.Close()
			return nil, err
		}
		toRemove = append(toRemove, b)
	}
	if err = staleRows.Close(); err != nil {
		return nil, err
	}

	if len(toRemove) > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM boundaries WHERE run_id != ?`, runID)
		if err != nil {
			return nil, err
		}
		for _, b := range toRemove {
			if err = record(b, "removed"); err != nil {
				return nil, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return changes, nil
}

// ListBoundaries returns the stored boundaries, most recent first with the
// bootstrap leading.
func (d *DB) ListBoundaries(ctx context.Context) ([]Boundary, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT internal_time, display_time, display_offset, timezone, reason FROM boundaries ORDER BY internal_time = '' DESC, internal_time DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Boundary
	for rows.Next() {
		var b Boundary
		var displayNS sql.NullString
		if err := rows.Scan(&b.InternalTime, &displayNS, &b.OffsetHours, &b.Timezone, &b.Reason); err != nil {
			return nil, err
		}
		if displayNS.Valid {
			b.DisplayTime = displayNS.String
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRecentChanges returns the most recent N boundary changes.
func (d *DB) ListRecentChanges(ctx context.Context, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	q := "SELECT occurred_at, internal_time, display_offset, timezone, reason, change_type FROM boundary_changes ORDER BY occurred_at DESC, id DESC LIMIT ?"
	rows, err := d.sql.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var c Change
		var occurredAtStr string
		if err := rows.Scan(&occurredAtStr, &c.InternalTime, &c.OffsetHours, &c.Timezone, &c.Reason, &c.ChangeType); err != nil {
			return nil, err
		}
		c.OccurredAt = parseTimestamp(occurredAtStr)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return changes, nil
}

// RecordRun stores the outcome of a conversion and returns its id.
func (d *DB) RecordRun(ctx context.Context, r Run) (int64, error) {
	res, err := d.sql.ExecContext(ctx, `INSERT INTO runs(started_at, input, readings, resolved, unresolved, rejected, boundaries) VALUES(?,?,?,?,?,?,?)`,
		r.StartedAt.UTC().Format(timestampLayout), nullIfEmpty(r.Input), r.Readings, r.Resolved, r.Unresolved, r.Rejected, r.Boundaries)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type ReasonStats struct {
	Reason     string
	Boundaries int
	Timezones  int
}

// Stats is the content of the history database at a glance.
type Stats struct {
	Reasons []ReasonStats
	Runs    int
	LastRun *Run
}

func (d *DB) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats

	query := `
		SELECT
			reason,
			COUNT(*),
			COUNT(DISTINCT timezone)
		FROM
			boundaries
		GROUP BY
			reason
		ORDER BY
			reason;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var s ReasonStats
		if err := rows.Scan(&s.Reason, &s.Boundaries, &s.Timezones); err != nil {
			return stats, err
		}
		stats.Reasons = append(stats.Reasons, s)
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	if err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&stats.Runs); err != nil {
		return stats, err
	}
	if stats.Runs == 0 {
		return stats, nil
	}

	var (
		last      Run
		startedAt string
		input     sql.NullString
	)
	err = d.sql.QueryRowContext(ctx, "SELECT id, started_at, input, readings, resolved, unresolved, rejected, boundaries FROM runs ORDER BY id DESC LIMIT 1").
		Scan(&last.ID, &startedAt, &input, &last.Readings, &last.Resolved, &last.Unresolved, &last.Rejected, &last.Boundaries)
	if err != nil {
		return stats, err
	}
	last.StartedAt = parseTimestamp(startedAt)
	last.Input = input.String
	stats.LastRun = &last

	return stats, nil
}

// parseTimestamp reads SQLite CURRENT_TIMESTAMP values, falling back to RFC3339.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(timestampLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
