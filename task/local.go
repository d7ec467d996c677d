package task

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/dcshock/genopipe/logger"
)

// Local runs jobs as child processes, at most a fixed number at a time.
type Local struct {
	sem    *semaphore.Weighted
	Logger *zap.SugaredLogger
}

// NewLocal returns a Local dispatcher running up to maxJobs jobs concurrently;
// a non-positive maxJobs means one per CPU.
func NewLocal(maxJobs int) *Local {
	if maxJobs <= 0 {
		maxJobs = runtime.NumCPU()
	}
	return &Local{sem: semaphore.NewWeighted(int64(maxJobs))}
}

// Dispatch implements Dispatcher.
func (l *Local) Dispatch(ctx context.Context, job Job) (int, error) {
	if len(job.Commands) == 0 {
		return 0, errors.Newf("job %s has no commands", job.Name)
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return -1, err
	}
	defer l.sem.Release(1)

	log, err := openLog(job.LogFile)
	if err != nil {
		return -1, err
	}
	defer log.Close()

	jl := l.logger().With(logger.FieldJob, job.Name)
	for _, argv := range job.Commands {
		if len(argv) == 0 {
			return -1, errors.Newf("job %s has an empty command", job.Name)
		}
		fmt.Fprintf(log, "[%s] $ %s\n", time.Now().Format(time.RFC3339), strings.Join(argv, " "))
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = job.Dir
		cmd.Stdout = log
		cmd.Stderr = log
		jl.Debugw("running command", logger.FieldTool, argv[0])
		err := cmd.Run()
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintf(log, "exit status %d\n", exitErr.ExitCode())
			jl.Infow("command failed", logger.FieldTool, argv[0], "exit_code", exitErr.ExitCode())
			return exitErr.ExitCode(), nil
		}
		if err != nil {
			return -1, errors.Wrapf(err, "job %s", job.Name)
		}
	}
	return 0, nil
}

func (l *Local) logger() *zap.SugaredLogger {
	if l.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return l.Logger
}

// openLog opens path for appending, or discards output when path is empty.
func openLog(path string) (*os.File, error) {
	if path == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	return f, errors.Wrap(err, "open job log")
}
