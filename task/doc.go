// Package task implements the GenotypeIlluminus stages.
//
// Sample extraction and manifest parsing run in process. Every other stage
// builds command lines for the genotyping tools and hands them to a Dispatcher
// as a Job: Local runs them with os/exec, LSF submits them with bsub and polls
// bjobs until they finish. A stage's result is present only when the files it
// promises exist afterwards.
//
//	tools, err := task.DefaultTools().Resolve(envvar.SliceToMap(os.Environ()))
//	exec := &task.Executor{Tools: tools, Dispatcher: task.NewLocal(4), Reuse: true}
//	wf := &illuminus.Workflow{Tasks: exec}
package task
