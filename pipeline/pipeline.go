package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Status is the recorded outcome of a single stage.
type Status string

const (
	// StatusSuccess means the stage ran and produced a present result.
	StatusSuccess Status = "success"
	// StatusFailed means the stage ran and produced no usable result, or returned an error.
	StatusFailed Status = "failed"
	// StatusSkipped means the stage was not invoked because an input was absent.
	StatusSkipped Status = "skipped"
)

// Observer provides pre/post hooks for a run and its stages so you can persist
// run state (e.g. to a DB) or log progress. BeforePipeline is called when the run
// starts, AfterPipeline when it finishes. BeforeStage/AfterStage are called around
// each invoked stage; a skipped stage only gets AfterStage with StatusSkipped.
// Stages of one run may be invoked concurrently, so implementations must be safe
// for concurrent use.
type Observer interface {
	BeforePipeline(ctx context.Context, runID, name string, payload interface{}) error
	AfterPipeline(ctx context.Context, runID string, result interface{}, err error) error
	BeforeStage(ctx context.Context, runID string, stageIndex int, stage string, input interface{}) error
	AfterStage(ctx context.Context, runID string, stageIndex int, stage string, input, output interface{}, status Status, stageErr error, duration time.Duration) error
}

// RunOptions is optional and used to attach an Observer and optional RunID.
// If RunID is empty, a new UUID is generated for the run.
type RunOptions struct {
	Observer Observer
	RunID    string
}

// Run is one execution of a named sequence of stages. Stage indices are assigned
// in invocation order. A nil *Run is valid and observes nothing.
type Run struct {
	id   string
	name string
	obs  Observer

	mu   sync.Mutex
	next int
}

// Start begins a run and calls Observer.BeforePipeline if an observer is set.
func Start(ctx context.Context, name string, payload interface{}, opts *RunOptions) (*Run, error) {
	r := &Run{name: name}
	if opts != nil {
		r.obs = opts.Observer
		r.id = opts.RunID
	}
	if r.id == "" {
		r.id = uuid.New().String()
	}
	if r.obs != nil {
		if err := r.obs.BeforePipeline(ctx, r.id, name, payload); err != nil {
			return nil, errors.Wrap(err, "before pipeline")
		}
	}
	return r, nil
}

// ID returns the run ID, or "" for a nil run.
func (r *Run) ID() string {
	if r == nil {
		return ""
	}
	return r.id
}

// Name returns the run name, or "" for a nil run.
func (r *Run) Name() string {
	if r == nil {
		return ""
	}
	return r.name
}

// Finish calls Observer.AfterPipeline with the run's result and error. The
// returned error is err, or the observer's error when err is nil.
func (r *Run) Finish(ctx context.Context, result interface{}, err error) error {
	if r == nil || r.obs == nil {
		return err
	}
	if postErr := r.obs.AfterPipeline(ctx, r.id, result, err); postErr != nil && err == nil {
		// Don't mask the run's own error.
		err = errors.Wrap(postErr, "after pipeline")
	}
	return err
}

func (r *Run) nextIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.next
	r.next++
	return i
}

// Step describes one stage invocation. Input is only recorded by observers;
// Needs lists the upstream results that must all be present for the stage to run.
type Step struct {
	Name  string
	Input interface{}
	Needs []Presence
}

// StageFunc runs a stage. A missing artifact is reported as Failed; the error
// return is for conditions that must stop the whole run.
type StageFunc[T any] func(ctx context.Context) (Result[T], error)

// Invoke runs fn under run unless one of step.Needs is absent, in which case fn
// is not called, the stage is reported as skipped and Failed is returned.
func Invoke[T any](ctx context.Context, run *Run, step Step, fn StageFunc[T]) (Result[T], error) {
	if run == nil {
		if !Present(step.Needs...) {
			return Failed[T](), nil
		}
		return fn(ctx)
	}
	idx := run.nextIndex()
	if !Present(step.Needs...) {
		if run.obs != nil {
			if err := run.obs.AfterStage(ctx, run.id, idx, step.Name, step.Input, nil, StatusSkipped, nil, 0); err != nil {
				return Failed[T](), errors.Wrapf(err, "after stage %d (%s)", idx, step.Name)
			}
		}
		return Failed[T](), nil
	}
	if run.obs != nil {
		if err := run.obs.BeforeStage(ctx, run.id, idx, step.Name, step.Input); err != nil {
			return Failed[T](), errors.Wrapf(err, "before stage %d (%s)", idx, step.Name)
		}
	}
	start := time.Now()
	out, stageErr := fn(ctx)
	duration := time.Since(start)
	if stageErr != nil {
		out = Failed[T]()
	}
	if run.obs != nil {
		status := StatusSuccess
		if !out.OK() {
			status = StatusFailed
		}
		if postErr := run.obs.AfterStage(ctx, run.id, idx, step.Name, step.Input, out, status, stageErr, duration); postErr != nil {
			if stageErr == nil {
				stageErr = errors.Wrap(postErr, "after stage")
			}
		}
	}
	if stageErr != nil {
		return out, errors.Wrapf(stageErr, "stage %d (%s)", idx, step.Name)
	}
	return out, nil
}
