// Package journal records weaving runs in SQLite so an interrupted run can
// resume at its first unfinished step.
package journal

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"leaflet-weaver/pkg/errors"
	"leaflet-weaver/pkg/log"
	"leaflet-weaver/pkg/scheduler"
	"leaflet-weaver/pkg/weave"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    job         TEXT NOT NULL,
    steps       INTEGER NOT NULL,
    status      TEXT NOT NULL DEFAULT 'running',
    error       TEXT NOT NULL DEFAULT '',
    started_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    finished_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS steps (
    run_id     TEXT NOT NULL REFERENCES runs(id),
    idx        INTEGER NOT NULL,
    pass       TEXT NOT NULL,
    layer      INTEGER NOT NULL,
    source     INTEGER NOT NULL,
    dest       INTEGER NOT NULL,
    elapsed_us INTEGER NOT NULL,
    done_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (run_id, idx)
);

CREATE TABLE IF NOT EXISTS cleanings (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT NOT NULL REFERENCES runs(id),
    before_idx INTEGER NOT NULL,
    elapsed_us INTEGER NOT NULL,
    done_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Run statuses.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusHalted  = "halted"
)

// ErrUnknownRun is returned for a run id with no journal entry.
var ErrUnknownRun = stderrors.New("unknown run")

// Run is one journalled run.
type Run struct {
	ID        string
	Job       string
	Steps     int
	Status    string
	Error     string
	Completed int
	Cleanings int
	StartedAt time.Time
}

// Journal is a SQLite-backed run log.
type Journal struct {
	db  *sql.DB
	log *log.Logger
}

// Open opens (or creates) the journal at path in WAL mode.
func Open(ctx context.Context, path string, logger *log.Logger) (*Journal, error) {
	if logger == nil {
		logger = log.GetLogger("journal")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.JournalError(err, "open database")
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, errors.JournalError(err, pragma)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.JournalError(err, "create schema")
	}
	return &Journal{db: db, log: logger}, nil
}

// Close closes the database.
func (j *Journal) Close() error { return j.db.Close() }

// BeginRun records a new run of steps steps and returns its id.
func (j *Journal) BeginRun(ctx context.Context, job string, steps int) (string, error) {
	id := uuid.NewString()
	if _, err := j.db.ExecContext(ctx,
		"INSERT INTO runs (id, job, steps) VALUES (?, ?, ?)", id, job, steps); err != nil {
		return "", errors.JournalError(err, "begin run")
	}
	j.log.WithFields(log.Fields{"run": id, "job": job, "steps": steps}).Info("run journalled")
	return id, nil
}

// Resume reopens runID and returns the first step index not yet recorded.
// Steps are recorded in queue order, so that is one past the highest index.
// The run must have been journalled for the same job and queue length;
// otherwise the run is left untouched and an invalid configuration error
// is returned.
func (j *Journal) Resume(ctx context.Context, runID, job string, steps int) (int, error) {
	run, err := j.Run(ctx, runID)
	if err != nil {
		return 0, err
	}
	if run.Job != job || run.Steps != steps {
		return 0, errors.InvalidConfiguration("journal",
			"run %s was journalled for job %q with %d steps, current plan is job %q with %d steps",
			runID, run.Job, run.Steps, job, steps).SetContext("run", runID)
	}
	var next int
	if err := j.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(idx) + 1, 0) FROM steps WHERE run_id = ?", runID).Scan(&next); err != nil {
		return 0, errors.JournalError(err, "find resume point")
	}
	if _, err := j.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, error = '', finished_at = NULL WHERE id = ?",
		StatusRunning, runID); err != nil {
		return 0, errors.JournalError(err, "reopen run")
	}
	j.log.WithFields(log.Fields{"run": runID, "next": next, "steps": run.Steps}).Info("resuming run")
	return next, nil
}

// RecordStep marks queue index i of runID as executed.
func (j *Journal) RecordStep(ctx context.Context, runID string, i int, b weave.Binding, elapsed time.Duration) error {
	const q = `
		INSERT INTO steps (run_id, idx, pass, layer, source, dest, elapsed_us)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, idx) DO UPDATE SET elapsed_us = excluded.elapsed_us, done_at = CURRENT_TIMESTAMP`
	if _, err := j.db.ExecContext(ctx, q, runID, i, b.Pass.String(), b.Layer, b.Source, b.Dest,
		elapsed.Microseconds()); err != nil {
		return errors.JournalError(err, "record step").SetContext("step", i)
	}
	return nil
}

// RecordCleaning logs a cleaning performed before queue index i.
func (j *Journal) RecordCleaning(ctx context.Context, runID string, i int, elapsed time.Duration) error {
	if _, err := j.db.ExecContext(ctx,
		"INSERT INTO cleanings (run_id, before_idx, elapsed_us) VALUES (?, ?, ?)",
		runID, i, elapsed.Microseconds()); err != nil {
		return errors.JournalError(err, "record cleaning").SetContext("step", i)
	}
	return nil
}

// FinishRun closes runID with status and the halting error, if any.
func (j *Journal) FinishRun(ctx context.Context, runID, status string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := j.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, error = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, msg, runID)
	if err != nil {
		return errors.JournalError(err, "finish run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.JournalError(ErrUnknownRun, "finish run").SetContext("run", runID)
	}
	return nil
}

// Run returns the journal entry for runID.
func (j *Journal) Run(ctx context.Context, runID string) (Run, error) {
	const q = `
		SELECT r.id, r.job, r.steps, r.status, r.error, r.started_at,
		       (SELECT COUNT(*) FROM steps s WHERE s.run_id = r.id),
		       (SELECT COUNT(*) FROM cleanings c WHERE c.run_id = r.id)
		FROM runs r WHERE r.id = ?`
	var r Run
	var ts string
	err := j.db.QueryRowContext(ctx, q, runID).Scan(
		&r.ID, &r.Job, &r.Steps, &r.Status, &r.Error, &ts, &r.Completed, &r.Cleanings)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Run{}, errors.JournalError(ErrUnknownRun, "load run").SetContext("run", runID)
	}
	if err != nil {
		return Run{}, errors.JournalError(err, "load run")
	}
	if r.StartedAt, err = parseTimestamp(ts); err != nil {
		return Run{}, errors.JournalError(err, "load run")
	}
	return r, nil
}

// modernc.org/sqlite returns RFC 3339 for TIMESTAMP columns; the sqlite3
// shell writes the space-separated form.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.DateTime,
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Runs lists every run, newest first.
func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, "SELECT id FROM runs ORDER BY started_at DESC, rowid DESC")
	if err != nil {
		return nil, errors.JournalError(err, "list runs")
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.JournalError(err, "list runs")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.JournalError(err, "list runs")
	}

	runs := make([]Run, 0, len(ids))
	for _, id := range ids {
		r, err := j.Run(ctx, id)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// Observer journals scheduler progress for runID. Write failures are logged
// and do not stop the run.
func (j *Journal) Observer(ctx context.Context, runID string) scheduler.Observer {
	return scheduler.Observer{
		OnStep: func(i int, step weave.Step, elapsed time.Duration) {
			if err := j.RecordStep(ctx, runID, i, step.Binding, elapsed); err != nil {
				j.log.WithError(err).Warn("journal write failed")
			}
		},
		OnCleaning: func(i int, elapsed time.Duration) {
			if err := j.RecordCleaning(ctx, runID, i, elapsed); err != nil {
				j.log.WithError(err).Warn("journal write failed")
			}
		},
	}
}

func (r Run) String() string {
	return fmt.Sprintf("%s %s %d/%d %s", r.ID, r.Job, r.Completed, r.Steps, r.Status)
}
