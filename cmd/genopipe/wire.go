package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"v.io/x/lib/envvar"

	"github.com/dcshock/genopipe/config"
	"github.com/dcshock/genopipe/illuminus"
	"github.com/dcshock/genopipe/logger"
	"github.com/dcshock/genopipe/observer"
	"github.com/dcshock/genopipe/pipeline"
	"github.com/dcshock/genopipe/task"
)

// Observer names usable in a definition's observers list.
const (
	observerLog    = "log"
	observerLedger = "ledger"
)

func newDispatcher(s settings, poll time.Duration) task.Dispatcher {
	if s.Dispatcher == dispatchLSF {
		d := task.NewLSF(s.LSF.Bsub, s.LSF.Bjobs)
		if poll > 0 {
			d.PollInterval = poll
		}
		d.Logger = logger.Logger
		return d
	}
	d := task.NewLocal(s.MaxJobs)
	d.Logger = logger.Logger
	return d
}

// newWorkflow resolves the configured tools against the process environment
// and returns a workflow ready to run.
func newWorkflow(s settings, obs pipeline.Observer, runID string, poll time.Duration) (*illuminus.Workflow, error) {
	exec, err := task.NewExecutor(s.Tools, newDispatcher(s, poll), envvar.SliceToMap(os.Environ()), logger.Logger)
	if err != nil {
		return nil, err
	}
	exec.Reuse = s.Reuse
	return &illuminus.Workflow{
		Tasks:    exec,
		Observer: obs,
		RunID:    runID,
		Logger:   logger.Logger,
	}, nil
}

// openLedger connects to the run ledger. The caller closes the pool.
func openLedger(ctx context.Context, dsn string) (*observer.Ledger, *pgxpool.Pool, error) {
	if dsn == "" {
		return nil, nil, errors.WithHint(errors.New("no ledger configured"),
			"set --ledger-dsn or GENOPIPE_LEDGER_DSN")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect to ledger")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "ping ledger")
	}
	return observer.NewLedger(pool), pool, nil
}

// observers returns the observers a definition may name. The ledger is only
// registered when one is given.
func observers(ledger *observer.Ledger) *config.ObserverRegistry {
	reg := config.NewObserverRegistry()
	reg.Register(observerLog, observer.NewLog(logger.Logger))
	if ledger != nil {
		reg.Register(observerLedger, ledger)
	}
	return reg
}

// workflows returns the registry of runnable workflows.
func workflows(s settings) *config.Registry {
	reg := config.NewRegistry()
	reg.Register(illuminus.WorkflowName, func(ctx context.Context, opts config.RunOptions, args []interface{}) (bool, error) {
		inv, err := illuminus.InvocationFromArgs(args)
		if err != nil {
			return false, err
		}
		wf, err := newWorkflow(s, opts.Observer, opts.RunID, opts.PollInterval.Duration())
		if err != nil {
			return false, err
		}
		res, err := wf.RunInvocation(ctx, inv)
		return res.OK(), err
	})
	return reg
}

// resumeLookup runs a ledger entry again from its recorded invocation.
func resumeLookup(s settings, obs pipeline.Observer) observer.WorkflowLookup {
	return func(name string) observer.ResumeFunc {
		if name != illuminus.WorkflowName {
			return nil
		}
		return func(ctx context.Context, runID string, payload []byte) error {
			var inv illuminus.Invocation
			if err := json.Unmarshal(payload, &inv); err != nil {
				return errors.Wrapf(err, "decode invocation of run %s", runID)
			}
			wf, err := newWorkflow(s, obs, runID, 0)
			if err != nil {
				return err
			}
			res, err := wf.RunInvocation(ctx, inv)
			if err != nil {
				return err
			}
			if !res.OK() {
				return errors.Newf("run %s did not pass", runID)
			}
			return nil
		}
	}
}
