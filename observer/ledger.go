package observer

import (
	"context"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dcshock/genopipe/pipeline"
)

//go:embed migration.sql
var migrationSQL string

// Run statuses recorded in pipeline_run.status.
const (
	RunRunning = "running"
	// RunPassed means the run finished with a present result.
	RunPassed = "passed"
	// RunFailed means the run finished without a result.
	RunFailed = "failed"
	// RunError means the run was aborted by an error.
	RunError = "error"
)

// ErrRunNotFound is returned when the ledger has no row for a run ID.
var ErrRunNotFound = errors.New("run not found in ledger")

// DBTX is the subset of pgx used by the ledger; *pgxpool.Pool, *pgx.Conn and
// pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Migrate creates the ledger tables if they do not exist.
func Migrate(ctx context.Context, db DBTX) error {
	_, err := db.Exec(ctx, migrationSQL)
	return errors.Wrap(err, "migrate ledger")
}

// Ledger persists pipeline and stage execution to Postgres (pipeline_run,
// pipeline_run_stage) so runs can be monitored and resumed.
type Ledger struct {
	db DBTX
}

// NewLedger returns an Observer that writes to db (e.g. a *pgxpool.Pool).
func NewLedger(db DBTX) *Ledger {
	return &Ledger{db: db}
}

const upsertRun = `
INSERT INTO pipeline_run (run_id, name, payload, status)
VALUES ($1, $2, $3, 'running')
ON CONFLICT (run_id) DO UPDATE
SET name = EXCLUDED.name,
    payload = EXCLUDED.payload,
    status = 'running',
    result = NULL,
    error = NULL,
    attempts = pipeline_run.attempts + 1,
    started_at = now(),
    finished_at = NULL`

const clearStages = `DELETE FROM pipeline_run_stage WHERE pipeline_run_id = $1`

// BeforePipeline implements pipeline.Observer. Inserts or updates a pipeline_run
// row with status 'running'. Uses upsert so the same run can be observed when
// resuming (same run_id); each resume counts as another attempt and starts
// with no stage rows.
func (l *Ledger) BeforePipeline(ctx context.Context, runID, name string, payload interface{}) error {
	payloadJSON, err := marshalOptional(payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}
	if _, err := l.db.Exec(ctx, upsertRun, runID, name, payloadJSON); err != nil {
		return errors.Wrapf(err, "record run %s", runID)
	}
	_, err = l.db.Exec(ctx, clearStages, runID)
	return errors.Wrapf(err, "clear stages of %s", runID)
}

const completeRun = `
UPDATE pipeline_run
SET status = $2, result = $3, error = $4, finished_at = now()
WHERE run_id = $1`

// AfterPipeline implements pipeline.Observer. Updates pipeline_run with the
// final status, result and error.
func (l *Ledger) AfterPipeline(ctx context.Context, runID string, result interface{}, err error) error {
	resultJSON, _ := marshalOptional(result)
	_, dbErr := l.db.Exec(ctx, completeRun, runID, runStatus(result, err), resultJSON, errorText(err))
	return errors.Wrapf(dbErr, "complete run %s", runID)
}

const upsertStage = `
INSERT INTO pipeline_run_stage (pipeline_run_id, stage_index, stage, input_json, status)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (pipeline_run_id, stage_index) DO UPDATE
SET stage = EXCLUDED.stage,
    input_json = EXCLUDED.input_json,
    output_json = NULL,
    status = EXCLUDED.status,
    error = NULL,
    duration_ms = NULL,
    started_at = now(),
    finished_at = NULL`

// BeforeStage implements pipeline.Observer. Inserts a pipeline_run_stage row
// with status 'running', replacing any row left by an earlier attempt.
func (l *Ledger) BeforeStage(ctx context.Context, runID string, stageIndex int, stage string, input interface{}) error {
	inputJSON, err := marshalOptional(input)
	if err != nil {
		return errors.Wrap(err, "marshal stage input")
	}
	_, err = l.db.Exec(ctx, upsertStage, runID, int32(stageIndex), stage, inputJSON, RunRunning)
	return errors.Wrapf(err, "record stage %d of %s", stageIndex, runID)
}

const finishStage = `
INSERT INTO pipeline_run_stage (pipeline_run_id, stage_index, stage, input_json, output_json, status, error, duration_ms, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (pipeline_run_id, stage_index) DO UPDATE
SET output_json = EXCLUDED.output_json,
    status = EXCLUDED.status,
    error = EXCLUDED.error,
    duration_ms = EXCLUDED.duration_ms,
    finished_at = now()`

// AfterStage implements pipeline.Observer. Skipped stages get no BeforeStage
// call, so the row is inserted here if it does not exist.
func (l *Ledger) AfterStage(ctx context.Context, runID string, stageIndex int, stage string, input, output interface{}, status pipeline.Status, stageErr error, duration time.Duration) error {
	inputJSON, _ := marshalOptional(input)
	outputJSON, _ := marshalOptional(output)
	durationMs := pgtype.Int8{Int64: duration.Milliseconds(), Valid: status != pipeline.StatusSkipped}
	_, err := l.db.Exec(ctx, finishStage, runID, int32(stageIndex), stage, inputJSON, outputJSON,
		string(status), errorText(stageErr), durationMs)
	return errors.Wrapf(err, "finish stage %d of %s", stageIndex, runID)
}

var _ pipeline.Observer = (*Ledger)(nil)

// RunRecord is a pipeline_run row.
type RunRecord struct {
	RunID      string
	Name       string
	Payload    []byte
	Status     string
	Error      string
	Attempts   int
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// StageRecord is a pipeline_run_stage row.
type StageRecord struct {
	Index      int
	Stage      string
	Status     string
	Error      string
	DurationMS int64
}

const runColumns = `run_id, name, payload, status, error, attempts, started_at, finished_at`

func scanRun(row pgx.Row) (RunRecord, error) {
	var r RunRecord
	var errText pgtype.Text
	var attempts int32
	var finished pgtype.Timestamptz
	if err := row.Scan(&r.RunID, &r.Name, &r.Payload, &r.Status, &errText, &attempts, &r.StartedAt, &finished); err != nil {
		return RunRecord{}, err
	}
	r.Error = errText.String
	r.Attempts = int(attempts)
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	return r, nil
}

// Run returns the ledger row for runID.
func (l *Ledger) Run(ctx context.Context, runID string) (RunRecord, error) {
	r, err := scanRun(l.db.QueryRow(ctx, `SELECT `+runColumns+` FROM pipeline_run WHERE run_id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return RunRecord{}, errors.Wrapf(ErrRunNotFound, "%s", runID)
	}
	return r, errors.Wrapf(err, "get run %s", runID)
}

// Stages returns the stage rows of runID in stage order.
func (l *Ledger) Stages(ctx context.Context, runID string) ([]StageRecord, error) {
	rows, err := l.db.Query(ctx, `
SELECT stage_index, stage, status, error, duration_ms
FROM pipeline_run_stage
WHERE pipeline_run_id = $1
ORDER BY stage_index`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "get stages of %s", runID)
	}
	defer rows.Close()
	var out []StageRecord
	for rows.Next() {
		var s StageRecord
		var idx int32
		var errText pgtype.Text
		var duration pgtype.Int8
		if err := rows.Scan(&idx, &s.Stage, &s.Status, &errText, &duration); err != nil {
			return nil, errors.Wrap(err, "scan stage")
		}
		s.Index = int(idx)
		s.Error = errText.String
		s.DurationMS = duration.Int64
		out = append(out, s)
	}
	return out, errors.Wrap(rows.Err(), "read stages")
}

// Resumable returns finished runs that did not pass and have had fewer than
// maxAttempts attempts (no limit when maxAttempts is not positive), oldest first.
func (l *Ledger) Resumable(ctx context.Context, maxAttempts int) ([]RunRecord, error) {
	rows, err := l.db.Query(ctx, `
SELECT `+runColumns+`
FROM pipeline_run
WHERE status IN ('failed', 'error') AND ($1 <= 0 OR attempts < $1)
ORDER BY started_at`, int32(maxAttempts))
	if err != nil {
		return nil, errors.Wrap(err, "get resumable runs")
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "read runs")
}

// runStatus classifies a finished run: an error aborts it, otherwise it
// passed if the result is available.
func runStatus(result interface{}, err error) string {
	switch {
	case err != nil:
		return RunError
	case pipeline.Available(result):
		return RunPassed
	default:
		return RunFailed
	}
}

func errorText(err error) pgtype.Text {
	if err == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: err.Error(), Valid: true}
}

func marshalOptional(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
