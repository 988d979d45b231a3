// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package history keeps a SQLite ledger of sync pipeline runs: when
// each ran, what it decided, and how many files it moved. Operators
// query it through `airlock status`; nothing in the pipeline reads it
// back for decisions.
package history

import (
	"fmt"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Outcome classifies how a pipeline run ended.
type Outcome string

const (
	OutcomePromoted      Outcome = "promoted"
	OutcomeDryRun        Outcome = "dry-run"
	OutcomeNothingToSync Outcome = "nothing-to-sync"
	OutcomeBlocked       Outcome = "blocked"
	OutcomeDeclined      Outcome = "declined"
	OutcomeFailed        Outcome = "failed"
)

// Run is one ledger entry.
type Run struct {
	ID          int64
	Environment string
	StartedAt   time.Time
	Outcome     Outcome

	// Files is the staging snapshot's file count; zero for
	// nothing-to-sync runs.
	Files int

	// Promoted and Skipped count the merge results; zero unless the
	// run promoted.
	Promoted int
	Skipped  int

	// Blocking and Advisories count validation findings.
	Blocking   int
	Advisories int

	// Detail carries the error text for failed and blocked runs.
	Detail string
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	environment TEXT    NOT NULL,
	started_at  INTEGER NOT NULL,
	outcome     TEXT    NOT NULL,
	files       INTEGER NOT NULL DEFAULT 0,
	promoted    INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	blocking    INTEGER NOT NULL DEFAULT 0,
	advisories  INTEGER NOT NULL DEFAULT 0,
	detail      TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS runs_by_environment
	ON runs (environment, started_at);
`

// Ledger is a single-connection SQLite store. The mutex serializes
// access: the pipeline records at most one run at a time and status
// queries are rare, so a pool would be overkill here.
type Ledger struct {
	mu   sync.Mutex
	conn *sqlite.Conn
}

// Open opens (creating if needed) the ledger at path. Pass ":memory:"
// for an ephemeral ledger in tests.
func Open(path string) (*Ledger, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate|sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: applying schema: %w", err)
	}
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA synchronous = NORMAL;", nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: setting pragmas: %w", err)
	}
	return &Ledger{conn: conn}, nil
}

// Close releases the underlying connection.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.Close()
}

// Record appends one run and returns its row ID.
func (l *Ledger) Record(run Run) (int64, error) {
	if run.Environment == "" {
		return 0, fmt.Errorf("history: run has no environment")
	}
	if run.Outcome == "" {
		return 0, fmt.Errorf("history: run has no outcome")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := sqlitex.Execute(l.conn, `
		INSERT INTO runs (environment, started_at, outcome, files, promoted, skipped, blocking, advisories, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		&sqlitex.ExecOptions{
			Args: []any{
				run.Environment,
				run.StartedAt.Unix(),
				string(run.Outcome),
				run.Files,
				run.Promoted,
				run.Skipped,
				run.Blocking,
				run.Advisories,
				run.Detail,
			},
		})
	if err != nil {
		return 0, fmt.Errorf("history: recording run: %w", err)
	}
	return l.conn.LastInsertRowID(), nil
}

// Recent returns up to limit runs for the environment, newest first.
func (l *Ledger) Recent(environment string, limit int) ([]Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var runs []Run
	err := sqlitex.Execute(l.conn, `
		SELECT id, environment, started_at, outcome, files, promoted, skipped, blocking, advisories, detail
		FROM runs
		WHERE environment = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?;`,
		&sqlitex.ExecOptions{
			Args: []any{environment, limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				runs = append(runs, Run{
					ID:          stmt.ColumnInt64(0),
					Environment: stmt.ColumnText(1),
					StartedAt:   time.Unix(stmt.ColumnInt64(2), 0).UTC(),
					Outcome:     Outcome(stmt.ColumnText(3)),
					Files:       stmt.ColumnInt(4),
					Promoted:    stmt.ColumnInt(5),
					Skipped:     stmt.ColumnInt(6),
					Blocking:    stmt.ColumnInt(7),
					Advisories:  stmt.ColumnInt(8),
					Detail:      stmt.ColumnText(9),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("history: querying runs: %w", err)
	}
	return runs, nil
}

// Last returns the most recent run for the environment, or nil when
// the ledger has none.
func (l *Ledger) Last(environment string) (*Run, error) {
	runs, err := l.Recent(environment, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}
