// Package observer provides pipeline.Observer implementations and run
// persistence for the pipeline package.
//
//   - Log: writes run and stage progress to a zap logger.
//   - Ledger: records each run and its stages in Postgres (pipeline_run,
//     pipeline_run_stage) for monitoring and resume support. Create the
//     tables with Migrate.
//   - Resumer: finds runs in the ledger that did not pass and runs them again
//     under the same run ID. Register workflows by name via WorkflowLookup and
//     call RunDue periodically (e.g. from a cron job).
//
// Attempts:
//
// Every BeforePipeline for an existing run ID increments pipeline_run.attempts.
// Resumer.MaxAttempts stops a run from being retried forever.
//
// Combine observers with pipeline.MultiObserver. Stages of one run may finish
// concurrently; both observers are safe for concurrent use.
package observer
