package pipeline

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// MultiObserver returns an Observer that calls each non-nil observer in order.
// Every observer is called even if an earlier one fails; the errors are combined.
func MultiObserver(observers ...Observer) Observer {
	list := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) BeforePipeline(ctx context.Context, runID, name string, payload interface{}) error {
	var err error
	for _, o := range m {
		err = errors.CombineErrors(err, o.BeforePipeline(ctx, runID, name, payload))
	}
	return err
}

func (m multiObserver) AfterPipeline(ctx context.Context, runID string, result interface{}, runErr error) error {
	var err error
	for _, o := range m {
		err = errors.CombineErrors(err, o.AfterPipeline(ctx, runID, result, runErr))
	}
	return err
}

func (m multiObserver) BeforeStage(ctx context.Context, runID string, stageIndex int, stage string, input interface{}) error {
	var err error
	for _, o := range m {
		err = errors.CombineErrors(err, o.BeforeStage(ctx, runID, stageIndex, stage, input))
	}
	return err
}

func (m multiObserver) AfterStage(ctx context.Context, runID string, stageIndex int, stage string, input, output interface{}, status Status, stageErr error, duration time.Duration) error {
	var err error
	for _, o := range m {
		err = errors.CombineErrors(err, o.AfterStage(ctx, runID, stageIndex, stage, input, output, status, stageErr, duration))
	}
	return err
}
