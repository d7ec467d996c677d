package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dcshock/genopipe/illuminus"
	"github.com/dcshock/genopipe/logger"
	"github.com/dcshock/genopipe/manifest"
	"github.com/dcshock/genopipe/pipedb"
	"github.com/dcshock/genopipe/pipeline"
)

// Executor runs the workflow stages. Tools should already be resolved, see
// Tools.Resolve.
type Executor struct {
	Tools      Tools
	Dispatcher Dispatcher
	Logger     *zap.SugaredLogger
	// Reuse skips a stage whose output files all exist already.
	Reuse bool
}

var _ illuminus.Tasks = (*Executor)(nil)

// NewExecutor resolves tools against the process environment and returns an
// Executor using d. An unresolvable tool is returned as ErrToolNotFound.
func NewExecutor(tools Tools, d Dispatcher, env map[string]string, log *zap.SugaredLogger) (*Executor, error) {
	if d == nil {
		return nil, errors.New("no dispatcher")
	}
	resolved, err := tools.Resolve(env)
	if err != nil {
		return nil, err
	}
	return &Executor{Tools: resolved, Dispatcher: d, Logger: log}, nil
}

// job is an external stage invocation.
type job struct {
	stage   string
	name    string
	cmds    [][]string
	outputs []string
	// noReuse forces the job to run even if its outputs exist, for stages
	// that modify files in place.
	noReuse bool
	async   illuminus.Async
}

// submit runs j and reports whether it completed with all of its outputs. An
// error is returned only when the job could not be run at all.
func (e *Executor) submit(ctx context.Context, env illuminus.Env, j job) (bool, error) {
	log := e.logger().With(logger.FieldStage, j.stage, logger.FieldJob, j.name)
	if e.Reuse && !j.noReuse && len(j.outputs) > 0 && len(missing(j.outputs)) == 0 {
		log.Infow("reusing existing outputs", logger.FieldCount, len(j.outputs))
		return true, nil
	}
	code, err := e.Dispatcher.Dispatch(ctx, Job{
		Name:     j.name,
		Commands: j.cmds,
		Dir:      env.WorkDir,
		Async:    j.async,
		LogFile:  filepath.Join(env.LogDir, j.name+".log"),
	})
	if err != nil {
		return false, errors.Wrapf(err, "%s", j.stage)
	}
	if code != 0 {
		log.Warnw("job failed", "exit_code", code)
		return false, nil
	}
	if m := missing(j.outputs); len(m) > 0 {
		log.Warnw("job completed without its outputs", "missing", m)
		return false, nil
	}
	return true, nil
}

func jobName(stage, output string) string {
	return stage + "." + filepath.Base(output)
}

func fileResult(ok bool, path string) pipeline.Result[string] {
	if !ok {
		return pipeline.Failed[string]()
	}
	return pipeline.Ok(path)
}

// SampleIntensities writes the included samples of q.Run to output.
func (e *Executor) SampleIntensities(ctx context.Context, env illuminus.Env, q illuminus.SampleQuery, output string) (pipeline.Result[string], error) {
	out := env.Resolve(output)
	log := e.logger().With(logger.FieldStage, "sample_intensities", logger.FieldPath, out)
	if e.Reuse && exists(out) {
		log.Infow("reusing existing sample json")
		return pipeline.Ok(out), nil
	}
	db, err := pipedb.Open(q.DB)
	if err != nil {
		log.Errorw("cannot open pipeline database", "db", q.DB, logger.FieldError, err)
		return pipeline.Failed[string](), nil
	}
	defer db.Close()
	n, err := db.WriteSampleJSON(ctx, q.Run, q.GenderMethod, out)
	if err != nil {
		if ctx.Err() != nil {
			return pipeline.Failed[string](), ctx.Err()
		}
		log.Errorw("cannot write sample json", logger.FieldRunName, q.Run, logger.FieldError, err)
		return pipeline.Failed[string](), nil
	}
	log.Infow("wrote sample json", logger.FieldCount, n, "gender_method", q.GenderMethod)
	return pipeline.Ok(out), nil
}

// GTCToBED implements illuminus.Tasks.
func (e *Executor) GTCToBED(ctx context.Context, env illuminus.Env, sampleJSON, manifestPath, output string, async illuminus.Async) (pipeline.Result[string], error) {
	out := env.Resolve(output)
	ok, err := e.submit(ctx, env, job{
		stage: illuminus.StageGTCToBED,
		name:  jobName(illuminus.StageGTCToBED, out),
		cmds: [][]string{{e.Tools.GenotypeCall, "gtc-to-bed",
			"--manifest", manifestPath, "--output", out, env.Resolve(sampleJSON)}},
		outputs: []string{out},
		async:   async,
	})
	return fileResult(ok, out), err
}

// TransposeBED implements illuminus.Tasks.
func (e *Executor) TransposeBED(ctx context.Context, env illuminus.Env, bed, output string, async illuminus.Async) (pipeline.Result[string], error) {
	out := env.Resolve(output)
	ok, err := e.submit(ctx, env, job{
		stage: illuminus.StageTransposeBED,
		name:  jobName(illuminus.StageTransposeBED, out),
		cmds: [][]string{{e.Tools.GenotypeCall, "transpose-bed",
			"--input", env.Resolve(bed), "--output", out}},
		outputs: []string{out},
		async:   async,
	})
	return fileResult(ok, out), err
}

// QualityControl runs the QC tool on bed, writing into outDir. The tool exits
// non-zero when the data fail QC; that is reported as a present false as long
// as outDir was created. Any outDir left by an earlier run is removed first.
func (e *Executor) QualityControl(ctx context.Context, env illuminus.Env, db, bed, outDir string, qc illuminus.QCArgs, async illuminus.Async) (pipeline.Result[bool], error) {
	dir := env.Resolve(outDir)
	argv := []string{e.Tools.QC, "--dbpath", db, "--run", qc.Run, "--output-dir", dir}
	if qc.Config != "" {
		argv = append(argv, "--config", qc.Config)
	}
	if qc.GenCall {
		argv = append(argv, "--mincr", strconv.FormatFloat(qc.PostFilterCR, 'f', -1, 64))
	}
	if qc.SIM != "" {
		argv = append(argv, "--sim", env.Resolve(qc.SIM))
	}
	if qc.GenCall {
		argv = append(argv, "--gencall")
	}
	argv = append(argv, env.Resolve(bed))

	if err := os.RemoveAll(dir); err != nil {
		return pipeline.Failed[bool](), errors.Wrap(err, "remove old QC output")
	}
	name := jobName("quality_control", dir)
	code, err := e.Dispatcher.Dispatch(ctx, Job{
		Name:     name,
		Commands: [][]string{argv},
		Dir:      env.WorkDir,
		Async:    async,
		LogFile:  filepath.Join(env.LogDir, name+".log"),
	})
	if err != nil {
		return pipeline.Failed[bool](), errors.Wrap(err, "quality_control")
	}
	log := e.logger().With(logger.FieldStage, "quality_control", logger.FieldPath, dir)
	switch {
	case code == 0:
		return pipeline.Ok(true), nil
	case isDir(dir):
		log.Warnw("QC did not pass", "exit_code", code)
		return pipeline.Ok(false), nil
	default:
		log.Errorw("QC produced no output", "exit_code", code)
		return pipeline.Failed[bool](), nil
	}
}

// GTCToSIM implements illuminus.Tasks.
func (e *Executor) GTCToSIM(ctx context.Context, env illuminus.Env, sampleJSON, manifestPath, output string, args illuminus.SIMArgs, async illuminus.Async) (pipeline.Result[string], error) {
	out := env.Resolve(output)
	argv := []string{e.Tools.GenotypeCall, "gtc-to-sim", "--manifest", manifestPath, "--output", out}
	if args.Normalize {
		argv = append(argv, "--normalize")
	}
	argv = append(argv, env.Resolve(sampleJSON))
	ok, err := e.submit(ctx, env, job{
		stage:   illuminus.StageGTCToSIM,
		name:    jobName(illuminus.StageGTCToSIM, out),
		cmds:    [][]string{argv},
		outputs: []string{out},
		async:   async,
	})
	return fileResult(ok, out), err
}

// ParseManifest implements illuminus.Tasks.
func (e *Executor) ParseManifest(ctx context.Context, env illuminus.Env, manifestPath, snpOutput, chrOutput string) (pipeline.Result[illuminus.ManifestFiles], error) {
	files := illuminus.ManifestFiles{SNPJSON: env.Resolve(snpOutput), ChromosomeJSON: env.Resolve(chrOutput)}
	log := e.logger().With(logger.FieldStage, illuminus.StageParseManifest, logger.FieldPath, manifestPath)
	if e.Reuse && len(missing([]string{files.SNPJSON, files.ChromosomeJSON})) == 0 {
		log.Infow("reusing existing manifest json")
		return pipeline.Ok(files), nil
	}
	m, err := manifest.ParseFile(manifestPath)
	if err != nil {
		log.Errorw("cannot parse manifest", logger.FieldError, err)
		return pipeline.Failed[illuminus.ManifestFiles](), nil
	}
	if err := m.WriteJSON(files.SNPJSON, files.ChromosomeJSON); err != nil {
		log.Errorw("cannot write manifest json", logger.FieldError, err)
		return pipeline.Failed[illuminus.ManifestFiles](), nil
	}
	log.Infow("parsed manifest", logger.FieldCount, len(m.SNPs))
	return pipeline.Ok(files), nil
}

// CallFromSIM splits req's range into chunks and runs each group of chunks as
// one job: extract the chunk's intensities from the SIM file, call genotypes
// with Illuminus and, for Plink output, convert the calls to BED. Groups run
// concurrently. The result has one entry per chunk, in order.
func (e *Executor) CallFromSIM(ctx context.Context, env illuminus.Env, req illuminus.CallRequest, async illuminus.Async) ([]pipeline.Result[string], error) {
	groups := illuminus.PlanChunks(req.Start, req.End, req.ChunkSize, req.GroupSize)
	results := make([][]pipeline.Result[string], len(groups))
	g, gctx := errgroup.WithContext(ctx)
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			r, err := e.callGroup(gctx, env, req, i, group, async)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	flat := []pipeline.Result[string]{}
	for _, r := range results {
		flat = append(flat, r...)
	}
	return flat, nil
}

func (e *Executor) callGroup(ctx context.Context, env illuminus.Env, req illuminus.CallRequest, index int, group []illuminus.Chunk, async illuminus.Async) ([]pipeline.Result[string], error) {
	sim, samples, snps := env.Resolve(req.SIM), env.Resolve(req.SampleJSON), env.Resolve(req.SNPJSON)
	var cmds [][]string
	outputs := make([]string, len(group))
	for i, c := range group {
		start, end := strconv.Itoa(c.Start), strconv.Itoa(c.End)
		stem := env.Resolve(fmt.Sprintf("%s.%d_%d", req.Name, c.Start, c.End))
		cmds = append(cmds,
			[]string{e.Tools.Simtools, "illuminus", "--input", sim, "--output", stem + ".iln",
				"--manifest", req.Manifest, "--start", start, "--end", end},
			[]string{e.Tools.Illuminus, "-a", "-in", stem + ".iln", "-out", stem})
		outputs[i] = stem + "_calls"
		if req.Plink {
			cmds = append(cmds, []string{e.Tools.G2I, "-i", stem, "-o", stem,
				"-s", samples, "-n", snps, "--start", start, "--end", end})
			outputs[i] = stem + ".bed"
		}
	}
	name := fmt.Sprintf("%s.%s.%d", illuminus.StageCallFromSIM, filepath.Base(req.Name), index)
	ok, err := e.submit(ctx, env, job{
		stage:   illuminus.StageCallFromSIM,
		name:    name,
		cmds:    cmds,
		outputs: outputs,
		async:   async,
	})
	rs := make([]pipeline.Result[string], len(group))
	for i, out := range outputs {
		rs[i] = fileResult(ok && exists(out), out)
	}
	return rs, err
}

// MergeBED merges chunks into output with plink. The first chunk is the base
// fileset; the rest are listed in a merge list next to output.
func (e *Executor) MergeBED(ctx context.Context, env illuminus.Env, chunks []string, output string, async illuminus.Async) (pipeline.Result[string], error) {
	out := env.Resolve(output)
	if len(chunks) == 0 {
		e.logger().Warnw("no BED chunks to merge", logger.FieldPath, out)
		return pipeline.Failed[string](), nil
	}
	outStem := bedStem(out)
	argv := []string{e.Tools.Plink, "--bfile", bedStem(env.Resolve(chunks[0]))}
	if len(chunks) > 1 {
		list := outStem + ".merge_list"
		var b strings.Builder
		for _, c := range chunks[1:] {
			stem := bedStem(env.Resolve(c))
			fmt.Fprintf(&b, "%s.bed %s.bim %s.fam\n", stem, stem, stem)
		}
		if err := os.WriteFile(list, []byte(b.String()), 0o644); err != nil {
			return pipeline.Failed[string](), errors.Wrap(err, "write merge list")
		}
		argv = append(argv, "--merge-list", list)
	}
	argv = append(argv, "--make-bed", "--out", outStem)
	ok, err := e.submit(ctx, env, job{
		stage:   illuminus.StageMergeBED,
		name:    jobName(illuminus.StageMergeBED, out),
		cmds:    [][]string{argv},
		outputs: []string{out},
		async:   async,
	})
	return fileResult(ok, out), err
}

// UpdateAnnotation rewrites the sample and SNP annotation of bed in place.
func (e *Executor) UpdateAnnotation(ctx context.Context, env illuminus.Env, bed, sampleJSON, snpJSON string, async illuminus.Async) (pipeline.Result[string], error) {
	path := env.Resolve(bed)
	ok, err := e.submit(ctx, env, job{
		stage: illuminus.StageUpdateAnnotation,
		name:  jobName(illuminus.StageUpdateAnnotation, path),
		cmds: [][]string{{e.Tools.UpdateAnnotation, "--bed", path,
			"--samples", env.Resolve(sampleJSON), "--snps", env.Resolve(snpJSON)}},
		outputs: []string{path},
		noReuse: true,
		async:   async,
	})
	return fileResult(ok, path), err
}

func (e *Executor) logger() *zap.SugaredLogger {
	if e.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return e.Logger
}

func bedStem(path string) string {
	return strings.TrimSuffix(path, ".bed")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func missing(paths []string) []string {
	var m []string
	for _, p := range paths {
		if !exists(p) {
			m = append(m, p)
		}
	}
	return m
}
