// Package extract pulls permits from the source listing API into Postgres:
// incremental cursor, staged intermediate artifact, all-or-nothing load,
// audit trail.
package extract

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/permit-intel/internal/db"
)

// Run statuses recorded in permit.run_audit.
const (
	RunRunning  = "running"
	RunComplete = "complete"
	RunFailed   = "failed"
)

// RunEntry is one row of permit.run_audit.
type RunEntry struct {
	ID           string         `json:"id"`
	Pipeline     string         `json:"pipeline"`
	Status       string         `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	RecordCount  int64          `json:"record_count"`
	DurationSecs *float64       `json:"duration_secs,omitempty"`
	Error        string         `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// RunResult holds the outcome of a run, passed to Complete.
type RunResult struct {
	RecordCount int64
	Metadata    map[string]any
}

// RunLog provides read/write access to the run audit table.
type RunLog struct {
	pool db.Pool
}

func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// Start records the beginning of a run and returns its id.
func (l *RunLog) Start(ctx context.Context, pipeline string) (string, error) {
	id := uuid.NewString()
	_, err := l.pool.Exec(ctx,
		`INSERT INTO permit.run_audit (id, pipeline, status, started_at)
		 VALUES ($1, $2, 'running', now())`,
		id, pipeline,
	)
	if err != nil {
		return "", eris.Wrapf(err, "runlog: start run for %s", pipeline)
	}
	return id, nil
}

// Complete marks a run as successful, recording counts and metadata.
func (l *RunLog) Complete(ctx context.Context, runID string, result *RunResult) error {
	var metaJSON []byte
	var count int64
	if result != nil {
		count = result.RecordCount
		if result.Metadata != nil {
			var err error
			metaJSON, err = json.Marshal(result.Metadata)
			if err != nil {
				return eris.Wrap(err, "runlog: marshal metadata")
			}
		}
	}

	_, err := l.pool.Exec(ctx,
		`UPDATE permit.run_audit
		 SET status = 'complete', completed_at = now(), record_count = $1,
		     duration_secs = EXTRACT(EPOCH FROM now() - started_at), metadata = $2
		 WHERE id = $3`,
		count, metaJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %s", runID)
	}
	return nil
}

// Fail marks a run as failed. recordCount carries the partial progress
// made before the failure so operators can see how far the run got.
func (l *RunLog) Fail(ctx context.Context, runID, errMsg string, recordCount int64) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE permit.run_audit
		 SET status = 'failed', completed_at = now(), record_count = $1,
		     duration_secs = EXTRACT(EPOCH FROM now() - started_at), error = $2
		 WHERE id = $3`,
		recordCount, errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %s", runID)
	}
	return nil
}

// LastSuccess returns the most recent successful run for a pipeline, or
// nil if it has never completed. The entry's metadata carries the cursor.
func (l *RunLog) LastSuccess(ctx context.Context, pipeline string) (*RunEntry, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT id, pipeline, status, started_at, completed_at, record_count, duration_secs, error, metadata
		 FROM permit.run_audit
		 WHERE pipeline = $1 AND status = 'complete'
		 ORDER BY started_at DESC LIMIT 1`,
		pipeline,
	)
	e, err := scanRunEntry(row)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "runlog: last success for %s", pipeline)
	}
	return e, nil
}

// List returns the most recent runs, all pipelines, newest first.
func (l *RunLog) List(ctx context.Context, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.pool.Query(ctx,
		`SELECT id, pipeline, status, started_at, completed_at, record_count, duration_secs, error, metadata
		 FROM permit.run_audit ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		e, err := scanRunEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "runlog: iterate runs")
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunEntry(row rowScanner) (*RunEntry, error) {
	var e RunEntry
	var errMsg *string
	var metaJSON []byte
	if err := row.Scan(
		&e.ID, &e.Pipeline, &e.Status, &e.StartedAt, &e.CompletedAt,
		&e.RecordCount, &e.DurationSecs, &errMsg, &metaJSON,
	); err != nil {
		return nil, err
	}
	if errMsg != nil {
		e.Error = *errMsg
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
			return nil, eris.Wrap(err, "runlog: unmarshal metadata")
		}
	}
	return &e, nil
}
