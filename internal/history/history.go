// Package history records one row per pass in a local sqlite database, so
// a later invocation (or a dashboard) can see recent outcomes without
// re-running an assessment.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Record is one pass's outcome.
type Record struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Tuples     int
	Renamed    int
	Uploaded   int
	Destroyed  int
	Deleted    int
	Error      string
}

type Ledger struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures its schema exists.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS passes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	tuples      INTEGER NOT NULL,
	renamed     INTEGER NOT NULL,
	uploaded    INTEGER NOT NULL,
	destroyed   INTEGER NOT NULL,
	deleted     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);
`

// Append inserts r as a new row.
func (l *Ledger) Append(r Record) error {
	_, err := l.db.Exec(
		`INSERT INTO passes (started_at, finished_at, tuples, renamed, uploaded, destroyed, deleted, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.StartedAt.Unix(), r.FinishedAt.Unix(), r.Tuples, r.Renamed, r.Uploaded, r.Destroyed, r.Deleted, r.Error,
	)
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// ListRecent returns up to limit rows, most recent first.
func (l *Ledger) ListRecent(limit int) ([]Record, error) {
	rows, err := l.db.Query(
		`SELECT id, started_at, finished_at, tuples, renamed, uploaded, destroyed, deleted, error
		 FROM passes ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: list recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var started, finished int64
		if err := rows.Scan(&r.ID, &started, &finished, &r.Tuples, &r.Renamed, &r.Uploaded, &r.Destroyed, &r.Deleted, &r.Error); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		r.FinishedAt = time.Unix(finished, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}
