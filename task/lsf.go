package task

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/dcshock/genopipe/logger"
	"github.com/dcshock/genopipe/pipeline"
)

// Defaults for LSF polling.
const (
	DefaultPollInterval = 30 * time.Second
	DefaultJobTimeout   = 48 * time.Hour
)

// CommandRunner runs a program and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// LSF submits jobs to an LSF cluster with bsub and polls bjobs until they end.
type LSF struct {
	Bsub  string
	Bjobs string
	// PollInterval is the time between bjobs queries.
	PollInterval time.Duration
	// Timeout bounds the wait for one job; zero means no bound.
	Timeout time.Duration
	// Run executes bsub and bjobs; nil means os/exec.
	Run    CommandRunner
	Logger *zap.SugaredLogger
}

// NewLSF returns an LSF dispatcher using the given bsub and bjobs programs.
func NewLSF(bsub, bjobs string) *LSF {
	return &LSF{
		Bsub:         bsub,
		Bjobs:        bjobs,
		PollInterval: DefaultPollInterval,
		Timeout:      DefaultJobTimeout,
	}
}

var submitted = regexp.MustCompile(`Job <(\d+)> is submitted`)

// Dispatch implements Dispatcher.
func (l *LSF) Dispatch(ctx context.Context, job Job) (int, error) {
	if len(job.Commands) == 0 {
		return 0, errors.Newf("job %s has no commands", job.Name)
	}
	out, err := l.run(ctx, l.Bsub, l.bsubArgs(job)...)
	if err != nil {
		return -1, errors.Wrapf(err, "bsub %s", job.Name)
	}
	m := submitted.FindSubmatch(out)
	if m == nil {
		return -1, errors.Newf("bsub %s: unexpected output %q", job.Name, strings.TrimSpace(string(out)))
	}
	id := string(m[1])
	jl := l.logger().With(logger.FieldJob, job.Name, logger.FieldJobID, id)
	jl.Infow("submitted LSF job", "queue", job.Async.Queue, "memory", job.Async.Memory)

	interval := l.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	exitCode := -1
	err = pipeline.WaitFor(ctx, interval, l.Timeout, func(ctx context.Context) (bool, error) {
		out, err := l.run(ctx, l.Bjobs, "-noheader", "-o", "stat exit_code", id)
		if err != nil {
			return false, errors.Wrapf(err, "bjobs %s", id)
		}
		stat, code, err := parseJobState(out)
		if err != nil {
			return false, errors.Wrapf(err, "bjobs %s", id)
		}
		switch stat {
		case "DONE":
			exitCode = 0
			return true, nil
		case "EXIT":
			exitCode = code
			return true, nil
		}
		jl.Debugw("LSF job pending", "stat", stat)
		return false, nil
	})
	if err != nil {
		return -1, errors.Wrapf(err, "job %s (%s)", job.Name, id)
	}
	jl.Infow("LSF job finished", "exit_code", exitCode)
	return exitCode, nil
}

func (l *LSF) bsubArgs(job Job) []string {
	args := []string{"-J", job.Name}
	if job.LogFile != "" {
		args = append(args, "-o", job.LogFile)
	}
	if job.Async.Queue != "" {
		args = append(args, "-q", job.Async.Queue)
	}
	if mem := job.Async.Memory; mem > 0 {
		args = append(args, "-M", strconv.Itoa(mem), "-R", fmt.Sprintf("select[mem>%d] rusage[mem=%d]", mem, mem))
	}
	if job.Dir != "" {
		args = append(args, "-cwd", job.Dir)
	}
	// bsub joins its command words and hands them to the execution shell, so
	// the script must stay one quoted word.
	return append(args, "/bin/sh -c "+shellQuote(shellScript(job.Commands)))
}

// parseJobState reads the "stat exit_code" columns of bjobs output. An EXIT
// without a code is reported as 1.
func parseJobState(out []byte) (string, int, error) {
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return "", 0, errors.New("empty bjobs output")
	}
	stat := fields[0]
	code := 0
	if stat == "EXIT" {
		code = 1
		if len(fields) > 1 {
			if n, err := strconv.Atoi(fields[1]); err == nil {
				code = n
			}
		}
	}
	return stat, code, nil
}

func (l *LSF) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if l.Run != nil {
		return l.Run(ctx, name, args...)
	}
	return exec.CommandContext(ctx, name, args...).Output()
}

func (l *LSF) logger() *zap.SugaredLogger {
	if l.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return l.Logger
}
