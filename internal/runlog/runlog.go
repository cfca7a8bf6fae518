// Package runlog records ingest and retention runs in Postgres.
package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-pipeline/internal/db"
)

// Run kinds.
const (
	KindIngest = "ingest"
	KindPrune  = "prune"
	KindPurge  = "purge"
)

// Entry represents a row in esg_run_log.
type Entry struct {
	ID          int64          `json:"id" yaml:"id"`
	Kind        string         `json:"kind" yaml:"kind"`
	Source      string         `json:"source,omitempty" yaml:"source,omitempty"`
	Status      string         `json:"status" yaml:"status"`
	StartedAt   time.Time      `json:"started_at" yaml:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Processed   int64          `json:"processed" yaml:"processed"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Log provides read/write access to the esg_run_log table.
type Log struct {
	pool db.Pool
}

// New creates a Log backed by the given connection pool.
func New(pool db.Pool) *Log {
	return &Log{pool: pool}
}

const migration = `
CREATE TABLE IF NOT EXISTS esg_run_log (
	id           BIGSERIAL PRIMARY KEY,
	kind         TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	processed    BIGINT NOT NULL DEFAULT 0,
	error        TEXT,
	metadata     JSONB
);

CREATE INDEX IF NOT EXISTS idx_esg_run_log_kind_started ON esg_run_log (kind, started_at DESC);
`

// Migrate creates the run log table.
func (l *Log) Migrate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, migration)
	return eris.Wrap(err, "runlog: migrate")
}

// Start records the beginning of a run and returns its ID.
func (l *Log) Start(ctx context.Context, kind, source string) (int64, error) {
	var id int64
	err := l.pool.QueryRow(ctx,
		`INSERT INTO esg_run_log (kind, source, status, started_at)
		 VALUES ($1, $2, 'running', now()) RETURNING id`,
		kind, source,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "runlog: start %s run for %s", kind, source)
	}
	return id, nil
}

// Complete marks a run as successfully completed.
func (l *Log) Complete(ctx context.Context, id, processed int64, metadata map[string]any) error {
	var metaJSON []byte
	if metadata != nil {
		var err error
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return eris.Wrap(err, "runlog: marshal metadata")
		}
	}

	_, err := l.pool.Exec(ctx,
		`UPDATE esg_run_log
		 SET status = 'complete', completed_at = now(), processed = $1, metadata = $2
		 WHERE id = $3`,
		processed, metaJSON, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %d", id)
	}
	return nil
}

// Fail marks a run as failed with an error message.
func (l *Log) Fail(ctx context.Context, id int64, errMsg string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE esg_run_log
		 SET status = 'failed', completed_at = now(), error = $1
		 WHERE id = $2`,
		errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %d", id)
	}
	return nil
}

// LastSuccess returns the start time of the most recent completed run of kind.
// Returns nil if there is none.
func (l *Log) LastSuccess(ctx context.Context, kind string) (*time.Time, error) {
	var t time.Time
	err := l.pool.QueryRow(ctx,
		`SELECT started_at FROM esg_run_log
		 WHERE kind = $1 AND status = 'complete'
		 ORDER BY started_at DESC LIMIT 1`,
		kind,
	).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: last success for %s", kind)
	}
	return &t, nil
}

// List returns the most recent entries, newest first.
func (l *Log) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.pool.Query(ctx,
		`SELECT id, kind, source, status, started_at, completed_at, processed, error, metadata
		 FROM esg_run_log ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var errStr *string
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.Kind, &e.Source, &e.Status, &e.StartedAt, &e.CompletedAt, &e.Processed, &errStr, &metaJSON); err != nil {
			return nil, eris.Wrap(err, "runlog: scan entry")
		}
		if errStr != nil {
			e.Error = *errStr
		}
		if metaJSON != nil {
			_ = json.Unmarshal(metaJSON, &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
