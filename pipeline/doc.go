// Package pipeline provides the building blocks for conditional, failure-propagating
// stage sequences. A stage yields a Result: Ok(value) when it produced its artifact,
// or Failed() when it did not. Failure is a value, not an error: a stage whose
// inputs are not all present is never invoked and itself yields Failed, so absence
// flows down the dependency chain without anyone raising. Errors are reserved for
// conditions where no further progress is possible (bad configuration, a cancelled
// context, an observer that cannot persist).
//
// A Run ties stage invocations together under one run ID so an Observer can record
// them (e.g. to a DB for monitoring, or to a log):
//
//	run, err := pipeline.Start(ctx, "genotype-illuminus", payload, &pipeline.RunOptions{Observer: obs})
//	if err != nil {
//		return err
//	}
//	bed, err := pipeline.Invoke(ctx, run, pipeline.Step{Name: "transpose_bed", Needs: []pipeline.Presence{imajor}},
//		func(ctx context.Context) (pipeline.Result[string], error) {
//			return tasks.TransposeBED(ctx, env, imajor.Value(), "run.smajor.bed", async)
//		})
//	...
//	err = run.Finish(ctx, outcome, err)
//
// Invoke checks Step.Needs before calling the stage. When any need is absent the
// stage is reported to the Observer as skipped and Failed is returned.
//
// WaitFor polls a condition at a fixed interval under a wall-clock timeout; it is
// the primitive used to wait on work handed to an external batch scheduler.
package pipeline
