// Package pipeline records stage invocations in the pipeline_runs table so
// operators can see what ran, when, and with what counts.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/db"
)

// Pipeline stages, in execution order.
const (
	StageImport      = "import"
	StageCluster     = "cluster"
	StageDeconflict  = "deconflict"
	StagePromote     = "promote"
	StageConsolidate = "consolidate"
	StageRollup      = "rollup"
)

// RunEntry is one row of pipeline_runs.
type RunEntry struct {
	ID          uuid.UUID      `json:"id"`
	Stage       string         `json:"stage"`
	Country     string         `json:"country"`
	RunDate     *time.Time     `json:"run_date,omitempty"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Counts      map[string]any `json:"counts,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// RunLog provides read/write access to pipeline_runs.
type RunLog struct {
	pool db.Pool
}

// NewRunLog creates a RunLog backed by the given connection pool.
func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// Start records the beginning of a stage invocation and returns its id.
// runDate may be nil for per-country stages.
func (l *RunLog) Start(ctx context.Context, stage, country string, runDate *time.Time) (uuid.UUID, error) {
	id := uuid.New()
	_, err := l.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, stage, country, run_date, status, started_at)
		 VALUES ($1, $2, $3, $4, 'running', now())`,
		id, stage, country, runDate)
	if err != nil {
		return uuid.Nil, eris.Wrapf(err, "runlog: start %s", stage)
	}
	return id, nil
}

// Complete marks a run as finished with its summary counts. counts is any
// json-marshalable summary struct.
func (l *RunLog) Complete(ctx context.Context, runID uuid.UUID, counts any) error {
	var countsJSON []byte
	if counts != nil {
		var err error
		countsJSON, err = json.Marshal(counts)
		if err != nil {
			return eris.Wrap(err, "runlog: marshal counts")
		}
	}

	_, err := l.pool.Exec(ctx,
		`UPDATE pipeline_runs
		 SET status = 'complete', completed_at = now(), counts = $1
		 WHERE id = $2`,
		countsJSON, runID)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %s", runID)
	}
	return nil
}

// Fail marks a run as failed with an error message.
func (l *RunLog) Fail(ctx context.Context, runID uuid.UUID, errMsg string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE pipeline_runs
		 SET status = 'failed', completed_at = now(), error = $1
		 WHERE id = $2`,
		errMsg, runID)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %s", runID)
	}
	return nil
}

// ListRecent returns the most recent runs, newest first.
func (l *RunLog) ListRecent(ctx context.Context, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.pool.Query(ctx,
		`SELECT id, stage, country, run_date, status, started_at, completed_at, counts, error
		 FROM pipeline_runs ORDER BY started_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list recent")
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var (
			e          RunEntry
			countsJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.Stage, &e.Country, &e.RunDate, &e.Status,
			&e.StartedAt, &e.CompletedAt, &countsJSON, &e.Error); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run row")
		}
		if len(countsJSON) > 0 {
			if err := json.Unmarshal(countsJSON, &e.Counts); err != nil {
				return nil, eris.Wrap(err, "runlog: unmarshal counts")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "runlog: list recent")
}
