// Package history keeps a SQLite log of finished passes and what each did to
// every document, for the status command.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/docsync/internal/db"
	"github.com/openmined/docsync/internal/engine"
)

// FileName is the database file inside the metadata directory.
const FileName = "history.db"

const schema = `
CREATE TABLE IF NOT EXISTS sync_runs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    status TEXT NOT NULL,
    dry_run INTEGER NOT NULL,
    started_at TEXT NOT NULL, -- RFC3339
    finished_at TEXT NOT NULL,
    unchanged INTEGER NOT NULL,
    local_only INTEGER NOT NULL,
    remote_only INTEGER NOT NULL,
    conflicted INTEGER NOT NULL,
    suppressed INTEGER NOT NULL,
    pushed INTEGER NOT NULL,
    pulled INTEGER NOT NULL,
    created INTEGER NOT NULL,
    resolved INTEGER NOT NULL,
    errors INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES sync_runs(id) ON DELETE CASCADE,
    doc_id TEXT NOT NULL,
    path TEXT NOT NULL,
    op TEXT NOT NULL,
    detail TEXT NOT NULL,
    error TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON sync_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_events_run_id ON sync_events(run_id);
`

// Run is the summary row of one pass.
type Run struct {
	ID         string `db:"id"`
	Kind       string `db:"kind"`
	Status     string `db:"status"`
	DryRun     bool   `db:"dry_run"`
	StartedAt  string `db:"started_at"`
	FinishedAt string `db:"finished_at"`
	Unchanged  int    `db:"unchanged"`
	LocalOnly  int    `db:"local_only"`
	RemoteOnly int    `db:"remote_only"`
	Conflicted int    `db:"conflicted"`
	Suppressed int    `db:"suppressed"`
	Pushed     int    `db:"pushed"`
	Pulled     int    `db:"pulled"`
	Created    int    `db:"created"`
	Resolved   int    `db:"resolved"`
	Errors     int    `db:"errors"`
}

func (r *Run) Started() time.Time {
	t, _ := time.Parse(time.RFC3339Nano, r.StartedAt)
	return t
}

func (r *Run) Duration() time.Duration {
	end, _ := time.Parse(time.RFC3339Nano, r.FinishedAt)
	return end.Sub(r.Started())
}

// Event is one action or error of a pass. Error is empty for actions.
type Event struct {
	ID     int64  `db:"id"`
	RunID  string `db:"run_id"`
	DocID  string `db:"doc_id"`
	Path   string `db:"path"`
	Op     string `db:"op"`
	Detail string `db:"detail"`
	Error  string `db:"error"`
}

type Log struct {
	db *sqlx.DB
}

// Open opens or creates the history database at path. An empty path keeps it
// in memory.
func Open(path string) (*Log, error) {
	opts := []db.SqliteOption{db.WithSchema(schema), db.WithMaxOpenConns(1)}
	if path != "" {
		opts = append(opts, db.WithPath(path))
	}
	conn, err := db.NewSqliteDB(opts...)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return &Log{db: conn}, nil
}

func (l *Log) Close() error {
	return l.db.Close()
}

// Record stores a finished report with all its actions and errors.
func (l *Log) Record(ctx context.Context, r *engine.Report) error {
	run := Run{
		ID:         r.ID,
		Kind:       r.Kind,
		Status:     string(r.Status),
		DryRun:     r.DryRun,
		StartedAt:  r.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt: r.FinishedAt.UTC().Format(time.RFC3339Nano),
		Unchanged:  len(r.Unchanged),
		LocalOnly:  len(r.LocalOnly),
		RemoteOnly: len(r.RemoteOnly),
		Conflicted: len(r.Conflicted),
		Suppressed: len(r.Suppressed),
		Pushed:     r.Pushed,
		Pulled:     r.Pulled,
		Created:    r.Created,
		Resolved:   r.Resolved,
		Errors:     len(r.Errors),
	}

	events := make([]Event, 0, len(r.Actions)+len(r.Errors))
	for _, a := range r.Actions {
		events = append(events, Event{RunID: r.ID, DocID: a.ID, Path: a.Path, Op: string(a.Op), Detail: a.Detail})
	}
	for _, e := range r.Errors {
		events = append(events, Event{RunID: r.ID, DocID: e.ID, Path: e.Path, Op: string(e.Op), Error: e.Message()})
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO sync_runs (id, kind, status, dry_run, started_at, finished_at,
			unchanged, local_only, remote_only, conflicted, suppressed,
			pushed, pulled, created, resolved, errors)
		VALUES (:id, :kind, :status, :dry_run, :started_at, :finished_at,
			:unchanged, :local_only, :remote_only, :conflicted, :suppressed,
			:pushed, :pulled, :created, :resolved, :errors)`, run); err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}

	if len(events) > 0 {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO sync_events (run_id, doc_id, path, op, detail, error)
			VALUES (:run_id, :doc_id, :path, :op, :detail, :error)`, events); err != nil {
			return fmt.Errorf("record events of %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	slog.Debug("history", "op", "record", "run", r.ID, "events", len(events))
	return nil
}

// Recent returns up to n runs, newest first.
func (l *Log) Recent(ctx context.Context, n int) ([]*Run, error) {
	var runs []*Run
	if err := l.db.SelectContext(ctx, &runs,
		"SELECT * FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?", n); err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	return runs, nil
}

// Events returns the actions and errors of one run in the order they were recorded.
func (l *Log) Events(ctx context.Context, runID string) ([]*Event, error) {
	var events []*Event
	if err := l.db.SelectContext(ctx, &events,
		"SELECT * FROM sync_events WHERE run_id = ? ORDER BY id", runID); err != nil {
		return nil, fmt.Errorf("events of %s: %w", runID, err)
	}
	return events, nil
}

// Prune keeps the newest keep runs and drops the rest with their events.
func (l *Log) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := l.db.ExecContext(ctx, `
		DELETE FROM sync_runs WHERE id NOT IN (
			SELECT id FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}
