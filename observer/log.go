package observer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dcshock/genopipe/logger"
	"github.com/dcshock/genopipe/pipeline"
)

// Log is a pipeline.Observer that logs every run and stage.
type Log struct {
	log *zap.SugaredLogger
}

// NewLog returns a Log writing to l, or to the global logger when l is nil.
func NewLog(l *zap.SugaredLogger) *Log {
	if l == nil {
		l = logger.Logger
	}
	return &Log{log: l}
}

// BeforePipeline implements pipeline.Observer.
func (o *Log) BeforePipeline(ctx context.Context, runID, name string, payload interface{}) error {
	o.log.Infow("run started", logger.FieldRunID, runID, logger.FieldWorkflow, name)
	return nil
}

// AfterPipeline implements pipeline.Observer.
func (o *Log) AfterPipeline(ctx context.Context, runID string, result interface{}, err error) error {
	status := runStatus(result, err)
	switch status {
	case RunPassed:
		o.log.Infow("run passed", logger.FieldRunID, runID)
	case RunFailed:
		o.log.Warnw("run did not pass", logger.FieldRunID, runID)
	default:
		o.log.Errorw("run aborted", logger.FieldRunID, runID, logger.FieldError, err)
	}
	return nil
}

// BeforeStage implements pipeline.Observer.
func (o *Log) BeforeStage(ctx context.Context, runID string, stageIndex int, stage string, input interface{}) error {
	o.log.Debugw("stage started", logger.FieldRunID, runID, logger.FieldStageIndex, stageIndex, logger.FieldStage, stage)
	return nil
}

// AfterStage implements pipeline.Observer.
func (o *Log) AfterStage(ctx context.Context, runID string, stageIndex int, stage string, input, output interface{}, status pipeline.Status, stageErr error, duration time.Duration) error {
	kv := []interface{}{
		logger.FieldRunID, runID,
		logger.FieldStageIndex, stageIndex,
		logger.FieldStage, stage,
		logger.FieldStatus, string(status),
		logger.FieldDurationMS, duration.Milliseconds(),
	}
	switch {
	case stageErr != nil:
		o.log.Errorw("stage error", append(kv, logger.FieldError, stageErr)...)
	case status == pipeline.StatusFailed:
		o.log.Warnw("stage produced no result", kv...)
	default:
		o.log.Infow("stage finished", kv...)
	}
	return nil
}

var _ pipeline.Observer = (*Log)(nil)
