package observer

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/dcshock/genopipe/logger"
)

// ResumeFunc runs a workflow again under runID from the payload recorded by
// BeforePipeline.
type ResumeFunc func(ctx context.Context, runID string, payload []byte) error

// WorkflowLookup returns the ResumeFunc for the given workflow name, or nil if
// not found. The caller must register workflows by name so the resumer can run them.
type WorkflowLookup func(name string) ResumeFunc

// RunSource lists runs that may be resumed; *Ledger implements it.
type RunSource interface {
	Resumable(ctx context.Context, maxAttempts int) ([]RunRecord, error)
}

// Resumer queries the ledger for runs that did not pass and runs them again.
type Resumer struct {
	source RunSource
	lookup WorkflowLookup
	// MaxAttempts bounds the attempts of one run; zero means no bound.
	MaxAttempts int
	Logger      *zap.SugaredLogger
}

// NewResumer returns a resumer that uses the given run source and workflow lookup.
func NewResumer(source RunSource, lookup WorkflowLookup) *Resumer {
	return &Resumer{source: source, lookup: lookup}
}

// RunDue finds all resumable runs and runs each again with its recorded
// payload. Workflows re-observe themselves, so the ledger row is updated by the
// resumed run. If a workflow is not found by name, that run is skipped and its
// row is left for inspection. All due runs are attempted; the last error is
// returned if any. The number of runs attempted is returned too.
func (r *Resumer) RunDue(ctx context.Context) (int, error) {
	due, err := r.source.Resumable(ctx, r.MaxAttempts)
	if err != nil {
		return 0, errors.Wrap(err, "get resumable runs")
	}
	var lastErr error
	n := 0
	for _, run := range due {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		fn := r.lookup(run.Name)
		if fn == nil {
			lastErr = errors.Newf("workflow %q not found for run_id %s", run.Name, run.RunID)
			r.logger().Warnw("cannot resume run", logger.FieldRunID, run.RunID, logger.FieldError, lastErr)
			continue
		}
		n++
		r.logger().Infow("resuming run", logger.FieldRunID, run.RunID, logger.FieldWorkflow, run.Name, "attempt", run.Attempts+1)
		if err := fn(ctx, run.RunID, run.Payload); err != nil {
			lastErr = errors.Wrapf(err, "resume %s", run.RunID)
		}
	}
	return n, lastErr
}

func (r *Resumer) logger() *zap.SugaredLogger {
	if r.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return r.Logger
}
