package illuminus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dcshock/genopipe/logger"
	"github.com/dcshock/genopipe/pipeline"
)

// WorkflowName identifies this workflow in definitions, logs and the run ledger.
const WorkflowName = "Genotyping::Workflows::GenotypeIlluminus"

// Version is written to the version log of every run.
var Version = "0.1.0"

// Stage names as reported to observers.
const (
	StageGencallSampleIntensities   = "gencall_sample_intensities"
	StageGTCToBED                   = "gtc_to_bed"
	StageTransposeBED               = "transpose_bed"
	StageGencallQC                  = "gencall_quality_control"
	StageIlluminusSampleIntensities = "illuminus_sample_intensities"
	StageGTCToSIM                   = "gtc_to_sim"
	StageParseManifest              = "parse_manifest"
	StageChromosomeBounds           = "chromosome_bounds"
	StageCallFromSIM                = "call_from_sim_p"
	StageMergeBED                   = "merge_bed"
	StageUpdateAnnotation           = "update_annotation"
	StageIlluminusQC                = "illuminus_quality_control"
)

// Outcome is the result of a successful run: the sample-major GenCall BED, the
// annotated Illuminus BED and their QC verdicts.
type Outcome struct {
	GencallBED   string `json:"gencall_bed"`
	IlluminusBED string `json:"illuminus_bed"`
	GencallQC    bool   `json:"gencall_qc"`
	IlluminusQC  bool   `json:"illuminus_qc"`
}

// Workflow runs GenotypeIlluminus against a set of Tasks.
type Workflow struct {
	Tasks Tasks
	// Observer, when set, is notified of the run and each of its stages.
	Observer pipeline.Observer
	// RunID is passed to the observer; a UUID is generated when empty.
	RunID string
	// Concurrency bounds the chromosome calls in flight; zero means no bound.
	Concurrency int
	Logger      *zap.SugaredLogger
}

// Invocation holds the arguments of one run. It is recorded as the run payload
// so a run can be repeated from its ledger entry.
type Invocation struct {
	DB      string  `json:"db"`
	RunName string  `json:"run_name"`
	WorkDir string  `json:"work_dir"`
	Options Options `json:"options"`
}

// InvocationFromArgs builds an Invocation from the positional arguments of a
// workflow definition: the pipeline database, the run name, the work dir and
// an optional map of options.
func InvocationFromArgs(args []interface{}) (Invocation, error) {
	if len(args) < 3 || len(args) > 4 {
		return Invocation{}, errors.Wrapf(ErrInvalidOptions, "expected 3 or 4 arguments (db, run, work_dir, options), got %d", len(args))
	}
	var inv Invocation
	for i, dst := range []*string{&inv.DB, &inv.RunName, &inv.WorkDir} {
		s, ok := args[i].(string)
		if !ok {
			return Invocation{}, errors.Wrapf(ErrInvalidOptions, "argument %d: expected string, got %T", i+1, args[i])
		}
		*dst = s
	}
	opts := map[string]interface{}{}
	if len(args) == 4 && args[3] != nil {
		m, ok := args[3].(map[string]interface{})
		if !ok {
			return Invocation{}, errors.Wrapf(ErrInvalidOptions, "argument 4: expected a map of options, got %T", args[3])
		}
		opts = m
	}
	o, err := ParseArgs(opts)
	if err != nil {
		return Invocation{}, err
	}
	inv.Options = o
	return inv, nil
}

// RunInvocation is Run with the arguments taken from inv.
func (w *Workflow) RunInvocation(ctx context.Context, inv Invocation) (pipeline.Result[Outcome], error) {
	return w.Run(ctx, inv.DB, inv.RunName, inv.WorkDir, inv.Options)
}

// Run executes the workflow for runName from the pipeline database dbfile,
// writing into workDir. The result is present only when both BED files exist
// and both passed QC. An error means the run could not proceed at all.
func (w *Workflow) Run(ctx context.Context, dbfile, runName, workDir string, opts Options) (res pipeline.Result[Outcome], err error) {
	if w.Tasks == nil {
		return res, errors.New("workflow has no tasks")
	}
	if dbfile == "" {
		return res, errors.Wrap(ErrInvalidOptions, "pipeline database path is required")
	}
	if runName == "" {
		return res, errors.Wrap(ErrInvalidOptions, "run name is required")
	}
	if err := opts.Validate(); err != nil {
		return res, err
	}
	env, err := prepareEnv(workDir)
	if err != nil {
		return res, err
	}
	log := w.logger().With(logger.FieldRunName, runName)

	run, err := pipeline.Start(ctx, WorkflowName, Invocation{DB: dbfile, RunName: runName, WorkDir: env.WorkDir, Options: opts},
		&pipeline.RunOptions{Observer: w.Observer, RunID: w.RunID})
	if err != nil {
		return res, err
	}
	log = log.With(logger.FieldRunID, run.ID())
	log.Infow("starting workflow", "work_dir", env.WorkDir, "options", opts.String())
	start := time.Now()
	defer func() {
		err = run.Finish(ctx, res, err)
		log.Infow("workflow finished", "passed", res.OK(), logger.FieldDurationMS, time.Since(start).Milliseconds(), logger.FieldError, err)
	}()
	return w.sequence(ctx, run, env, dbfile, runName, opts, log)
}

func (w *Workflow) sequence(ctx context.Context, run *pipeline.Run, env Env, dbfile, runName string, opts Options, log *zap.SugaredLogger) (pipeline.Result[Outcome], error) {
	var none pipeline.Result[Outcome]
	names := NamesFor(runName)
	async := opts.Async()

	gcsjson, err := pipeline.Invoke(ctx, run, pipeline.Step{Name: StageGencallSampleIntensities, Input: names.GencallSampleJSON},
		func(ctx context.Context) (pipeline.Result[string], error) {
			q := SampleQuery{DB: dbfile, Run: runName, Config: opts.Config}
			return w.Tasks.SampleIntensities(ctx, env, q, names.GencallSampleJSON)
		})
	if err != nil {
		return none, err
	}
	gcifile, err := pipeline.Invoke(ctx, run, pipeline.Step{Name: StageGTCToBED, Input: names.GencallImajorBED, Needs: needs(gcsjson)},
		func(ctx context.Context) (pipeline.Result[string], error) {
			return w.Tasks.GTCToBED(ctx, env, gcsjson.Value(), opts.Manifest, names.GencallImajorBED, async)
		})
	if err != nil {
		return none, err
	}
	gcsfile, err := pipeline.Invoke(ctx, run, pipeline.Step{Name: StageTransposeBED, Input: names.GencallSmajorBED, Needs: needs(gcifile)},
		func(ctx context.Context) (pipeline.Result[string], error) {
			return w.Tasks.TransposeBED(ctx, env, gcifile.Value(), names.GencallSmajorBED, async)
		})
	if err != nil {
		return none, err
	}

	// GenCall QC applies the call rate filter and finds genders.
	gcqc := QCArgs{Run: runName, Config: opts.Config, PostFilterCR: opts.MinCR, GenCall: true}
	gcqcDir := filepath.Join(env.WorkDir, GencallQCDir)
	gcquality, err := pipeline.Invoke(ctx, run, pipeline.Step{Name: StageGencallQC, Input: gcqc, Needs: needs(gcsfile)},
		func(ctx context.Context) (pipeline.Result[bool], error) {
			return w.Tasks.QualityControl(ctx, env, dbfile, gcsfile.Value(), gcqcDir, gcqc, async)
		})
	if err != nil {
		return none, err
	}
	passed := gate(gcquality)
	if !passed.OK() {
		log.Warnw("GenCall QC did not pass; skipping Illuminus stages", "gencall_qc", gcquality.String())
	}

	siq := SampleQuery{DB: dbfile, Run: runName, Config: opts.Config, GenderMethod: opts.GenderMethod}
	sjson, err := pipeline.Invoke(ctx, run, pipeline.Step{Name: StageIlluminusSampleIntensities, Input: siq, Needs: needs(passed)},
		func(ctx context.Context) (pipeline.Result[string], error) {
			return w.Tasks.SampleIntensities(ctx, env, siq, names.IlluminusSampleJSON)
		})
	if err != nil {
		return none, err
	}
	smfile, err := pipeline.Invoke(ctx, run, pipeline.Step{Name: StageGTCToSIM, Input: names.IlluminusSIM, Needs: needs(passed, sjson)},
		func(ctx context.Context) (pipeline.Result[string], error) {
			return w.Tasks.GTCToSIM(ctx, env, sjson.Value(), opts.Manifest, names.IlluminusSIM, SIMArgs{Normalize: true}, async)
		})
	if err != nil {
		return none, err
	}
	manifest, err := pipeline.Invoke(ctx, run, pipeline.Step{Name: StageParseManifest, Input: opts.Manifest, Needs: needs(smfile)},
		func(ctx context.Context) (pipeline.Result[ManifestFiles], error) {
			return w.Tasks.ParseManifest(ctx, env, opts.Manifest, names.SNPJSON, names.ChromosomeJSON)
		})
	if err != nil {
		return none, err
	}
	bounds, err := pipeline.Invoke(ctx, run, pipeline.Step{Name: StageChromosomeBounds, Needs: needs(manifest)},
		func(ctx context.Context) (pipeline.Result[[]ChromosomeBounds], error) {
			b, err := ReadChromosomeBounds(env.Resolve(manifest.Value().ChromosomeJSON))
			if err != nil {
				log.Errorw("cannot read chromosome bounds", logger.FieldError, err)
				return pipeline.Failed[[]ChromosomeBounds](), nil
			}
			return pipeline.Ok(b), nil
		})
	if err != nil {
		return none, err
	}

	base := CallRequest{
		SIM:        smfile.Value(),
		SampleJSON: sjson.Value(),
		Manifest:   opts.Manifest,
		SNPJSON:    manifest.Value().SNPJSON,
		ChunkSize:  opts.ChunkSize,
		GroupSize:  GroupSize,
		Plink:      true,
	}
	ilchunks, err := w.callChromosomes(ctx, run, env, runName, base, bounds, async, log)
	if err != nil {
		return none, err
	}

	merged, err := pipeline.Invoke(ctx, run, pipeline.Step{Name: StageMergeBED, Input: names.IlluminusBED, Needs: needs(ilchunks)},
		func(ctx context.Context) (pipeline.Result[string], error) {
			return w.Tasks.MergeBED(ctx, env, ilchunks.Value(), names.IlluminusBED, async)
		})
	if err != nil {
		return none, err
	}
	ilfile, err := pipeline.Invoke(ctx, run, pipeline.Step{Name: StageUpdateAnnotation, Input: names.IlluminusBED, Needs: needs(merged, sjson, manifest)},
		func(ctx context.Context) (pipeline.Result[string], error) {
			return w.Tasks.UpdateAnnotation(ctx, env, merged.Value(), sjson.Value(), manifest.Value().SNPJSON, async)
		})
	if err != nil {
		return none, err
	}

	ilqc := QCArgs{Run: runName, Config: opts.Config, SIM: smfile.Value()}
	ilquality, err := pipeline.Invoke(ctx, run, pipeline.Step{Name: StageIlluminusQC, Input: ilqc, Needs: needs(ilfile)},
		func(ctx context.Context) (pipeline.Result[bool], error) {
			return w.Tasks.QualityControl(ctx, env, dbfile, ilfile.Value(), IlluminusQCDir, ilqc, async)
		})
	if err != nil {
		return none, err
	}

	if gcsfile.OK() && ilfile.OK() && pipeline.True(gcquality) && pipeline.True(ilquality) {
		return pipeline.Ok(Outcome{
			GencallBED:   gcsfile.Value(),
			IlluminusBED: ilfile.Value(),
			GencallQC:    true,
			IlluminusQC:  true,
		}), nil
	}
	return none, nil
}

// callChromosomes runs the Illuminus calls of every chromosome concurrently.
// The result is absent unless every chunk of every chromosome is present.
func (w *Workflow) callChromosomes(ctx context.Context, run *pipeline.Run, env Env, runName string, base CallRequest,
	bounds pipeline.Result[[]ChromosomeBounds], async Async, log *zap.SugaredLogger) (pipeline.Result[[]string], error) {
	if !bounds.OK() {
		return pipeline.Invoke(ctx, run, pipeline.Step{Name: StageCallFromSIM, Needs: needs(bounds)},
			func(ctx context.Context) (pipeline.Result[[]string], error) {
				return pipeline.Failed[[]string](), nil
			})
	}
	chromosomes := bounds.Value()
	if len(chromosomes) == 0 {
		return pipeline.Invoke(ctx, run, pipeline.Step{Name: StageCallFromSIM, Needs: needs(bounds)},
			func(ctx context.Context) (pipeline.Result[[]string], error) {
				log.Warnw("manifest has no chromosomes; nothing to call")
				return pipeline.Failed[[]string](), nil
			})
	}

	perChromosome := make([]pipeline.Result[[]string], len(chromosomes))
	g, gctx := errgroup.WithContext(ctx)
	if w.Concurrency > 0 {
		g.SetLimit(w.Concurrency)
	}
	for i, cb := range chromosomes {
		i := i
		req := base
		req.Name = ChunkName(runName, cb.Chromosome)
		req.Chromosome = cb.Chromosome
		req.Start = cb.Start
		req.End = cb.End
		g.Go(func() error {
			r, err := pipeline.Invoke(gctx, run, pipeline.Step{Name: StageCallFromSIM, Input: req},
				func(ctx context.Context) (pipeline.Result[[]string], error) {
					chunks, err := w.Tasks.CallFromSIM(ctx, env, req, async)
					if err != nil {
						return pipeline.Failed[[]string](), err
					}
					return pipeline.Collect(chunks), nil
				})
			perChromosome[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return pipeline.Failed[[]string](), err
	}

	all := pipeline.Collect(perChromosome)
	if !all.OK() {
		for i, r := range perChromosome {
			if !r.OK() {
				log.Warnw("chromosome calls incomplete; discarding all chunks", "chromosome", chromosomes[i].Chromosome)
			}
		}
	}
	return pipeline.Then(all, func(groups [][]string) pipeline.Result[[]string] {
		var flat []string
		for _, chunks := range groups {
			flat = append(flat, chunks...)
		}
		return pipeline.Ok(flat)
	}), nil
}

func (w *Workflow) logger() *zap.SugaredLogger {
	if w.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return w.Logger
}

// gate turns a QC verdict into a presence: Ok only for a present true.
func gate(qc pipeline.Result[bool]) pipeline.Result[bool] {
	if pipeline.True(qc) {
		return qc
	}
	return pipeline.Failed[bool]()
}

func needs(rs ...pipeline.Presence) []pipeline.Presence { return rs }

// prepareEnv resolves the work dir, creates its log dir and writes the version log.
func prepareEnv(workDir string) (Env, error) {
	if workDir == "" {
		return Env{}, errors.Wrap(ErrInvalidOptions, "work dir is required")
	}
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return Env{}, errors.Wrapf(err, "work dir %s", workDir)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return Env{}, errors.Wrapf(err, "work dir %s", abs)
	}
	if !fi.IsDir() {
		return Env{}, errors.Newf("work dir %s is not a directory", abs)
	}
	env := Env{WorkDir: abs, LogDir: filepath.Join(abs, LogDirName)}
	if err := os.MkdirAll(env.LogDir, 0o755); err != nil {
		return Env{}, errors.Wrap(err, "create log dir")
	}
	versionLog := filepath.Join(env.LogDir, "genopipe.version")
	line := fmt.Sprintf("%s %s\n", WorkflowName, Version)
	if err := os.WriteFile(versionLog, []byte(line), 0o644); err != nil {
		return Env{}, errors.Wrap(err, "write version log")
	}
	return env, nil
}
