package illuminus

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcshock/genopipe/pipeline"
)

func runWorkflow(t *testing.T, tasks *fakeTasks, obs pipeline.Observer) (pipeline.Result[Outcome], string) {
	t.Helper()
	workDir := t.TempDir()
	w := &Workflow{Tasks: tasks, Observer: obs}
	res, err := w.Run(context.Background(), "/data/pipeline.db", "batch1", workDir, DefaultOptions("/manifests/chip.bpm.csv"))
	require.NoError(t, err)
	return res, workDir
}

func TestRun_AllStagesSucceed(t *testing.T) {
	tasks := newFakeTasks()
	res, workDir := runWorkflow(t, tasks, nil)

	outcome, ok := res.Get()
	require.True(t, ok, "expected a present outcome")
	want := Outcome{
		GencallBED:   "batch1.gencall.smajor.bed",
		IlluminusBED: "batch1.illuminus.bed",
		GencallQC:    true,
		IlluminusQC:  true,
	}
	if diff := cmp.Diff(want, outcome); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}

	for _, name := range []string{
		"batch1.gencall.sample.json",
		"batch1.illuminus.sample.json",
		"batch1.snp.json",
		"batch1.chr.json",
		"batch1.illuminus.sim",
		"batch1.gencall.imajor.bed",
		"batch1.gencall.smajor.bed",
		"batch1.illuminus.bed",
	} {
		assert.FileExists(t, filepath.Join(workDir, name))
	}
	assert.DirExists(t, filepath.Join(workDir, "log"))
	assert.FileExists(t, filepath.Join(workDir, "log", "genopipe.version"))
}

func TestRun_GencallQCFailureShortCircuits(t *testing.T) {
	tasks := newFakeTasks()
	tasks.gencallQC = pipeline.Ok(false)
	res, workDir := runWorkflow(t, tasks, nil)

	assert.False(t, res.OK())
	for _, stage := range []string{"gtc_to_sim", "parse_manifest", "call_from_sim_p", "merge_bed", "update_annotation"} {
		assert.False(t, tasks.called(stage), "%s must not run after GenCall QC failure", stage)
	}
	assert.Equal(t, []string{"sample_intensities", "gtc_to_bed", "transpose_bed", "quality_control"}, tasks.calls)
	assert.NoFileExists(t, filepath.Join(workDir, "batch1.illuminus.sim"))
	assert.FileExists(t, filepath.Join(workDir, "batch1.gencall.smajor.bed"))
}

func TestRun_GencallQCAbsentShortCircuits(t *testing.T) {
	tasks := newFakeTasks()
	tasks.gencallQC = pipeline.Failed[bool]()
	res, _ := runWorkflow(t, tasks, nil)

	assert.False(t, res.OK())
	assert.False(t, tasks.called("gtc_to_sim"))
}

func TestRun_AbsentChromosomeJSONSkipsCalling(t *testing.T) {
	tasks := newFakeTasks()
	tasks.noManifest = true
	res, _ := runWorkflow(t, tasks, nil)

	assert.False(t, res.OK())
	assert.True(t, tasks.called("gtc_to_sim"))
	assert.False(t, tasks.called("call_from_sim_p"))
	assert.False(t, tasks.called("merge_bed"))
}

func TestRun_NoChromosomesReportsFailedCalling(t *testing.T) {
	tasks := newFakeTasks()
	tasks.bounds = []ChromosomeBounds{}
	obs := &recordingObserver{}
	res, _ := runWorkflow(t, tasks, obs)

	assert.False(t, res.OK())
	assert.False(t, tasks.called("call_from_sim_p"))
	assert.Equal(t, pipeline.StatusFailed, obs.statuses[StageCallFromSIM])
	assert.Equal(t, pipeline.StatusSkipped, obs.statuses[StageMergeBED])
}

func TestRun_AnyAbsentChunkDiscardsAll(t *testing.T) {
	tasks := newFakeTasks()
	tasks.failChunkOf = "X"
	res, _ := runWorkflow(t, tasks, nil)

	assert.False(t, res.OK())
	assert.True(t, tasks.called("call_from_sim_p"))
	assert.False(t, tasks.called("merge_bed"), "no partial merge")
	assert.False(t, tasks.called("update_annotation"))
	// only GenCall QC ran
	require.Len(t, tasks.qcArgs, 1)
	assert.True(t, tasks.qcArgs[0].GenCall)
}

func TestRun_IlluminusQCFailure(t *testing.T) {
	tasks := newFakeTasks()
	tasks.illuminusQC = pipeline.Ok(false)
	res, workDir := runWorkflow(t, tasks, nil)

	assert.False(t, res.OK())
	assert.FileExists(t, filepath.Join(workDir, "batch1.illuminus.bed"), "partial artifacts stay on disk")
}

func TestRun_Defaults(t *testing.T) {
	tasks := newFakeTasks()
	opts, err := ParseArgs(map[string]interface{}{"manifest": "/manifests/chip.bpm.csv"})
	require.NoError(t, err)
	w := &Workflow{Tasks: tasks}
	_, err = w.Run(context.Background(), "/data/pipeline.db", "batch1", t.TempDir(), opts)
	require.NoError(t, err)

	require.Len(t, tasks.callRequests, 2)
	for _, req := range tasks.callRequests {
		assert.Equal(t, 2000, req.ChunkSize)
		assert.Equal(t, 50, req.GroupSize)
		assert.True(t, req.Plink)
		assert.Equal(t, "batch1.snp.json", req.SNPJSON)
		assert.Equal(t, "batch1.illuminus.sim", req.SIM)
	}
	require.NotEmpty(t, tasks.qcArgs)
	assert.Equal(t, 0.9, tasks.qcArgs[0].PostFilterCR)
	require.Len(t, tasks.sampleQueries, 2)
	assert.Equal(t, "", tasks.sampleQueries[0].GenderMethod)
	assert.Equal(t, "Inferred", tasks.sampleQueries[1].GenderMethod)
}

func TestRun_ChunksMergedInChromosomeOrder(t *testing.T) {
	tasks := newFakeTasks()
	res, _ := runWorkflow(t, tasks, nil)
	require.True(t, res.OK())

	want := []string{
		"batch1.1.0_2000.bed",
		"batch1.1.2000_4000.bed",
		"batch1.1.4000_4500.bed",
		"batch1.X.4500_5000.bed",
	}
	assert.Equal(t, want, tasks.mergedChunks)
	assert.Equal(t, "batch1.1", findRequest(t, tasks, "1").Name)
}

func TestRun_Idempotent(t *testing.T) {
	workDir := t.TempDir()
	opts := DefaultOptions("/manifests/chip.bpm.csv")
	listing := func() []string {
		entries, err := os.ReadDir(workDir)
		require.NoError(t, err)
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return names
	}

	w := &Workflow{Tasks: newFakeTasks()}
	first, err := w.Run(context.Background(), "/data/pipeline.db", "batch1", workDir, opts)
	require.NoError(t, err)
	before := listing()

	w = &Workflow{Tasks: newFakeTasks()}
	second, err := w.Run(context.Background(), "/data/pipeline.db", "batch1", workDir, opts)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before, listing())
}

func TestRun_ObserverSeesSkippedStages(t *testing.T) {
	tasks := newFakeTasks()
	tasks.gencallQC = pipeline.Ok(false)
	obs := &recordingObserver{}
	runWorkflow(t, tasks, obs)

	want := map[string]pipeline.Status{
		StageGencallSampleIntensities:   pipeline.StatusSuccess,
		StageGTCToBED:                   pipeline.StatusSuccess,
		StageTransposeBED:               pipeline.StatusSuccess,
		StageGencallQC:                  pipeline.StatusSuccess,
		StageIlluminusSampleIntensities: pipeline.StatusSkipped,
		StageGTCToSIM:                   pipeline.StatusSkipped,
		StageParseManifest:              pipeline.StatusSkipped,
		StageChromosomeBounds:           pipeline.StatusSkipped,
		StageCallFromSIM:                pipeline.StatusSkipped,
		StageMergeBED:                   pipeline.StatusSkipped,
		StageUpdateAnnotation:           pipeline.StatusSkipped,
		StageIlluminusQC:                pipeline.StatusSkipped,
	}
	if diff := cmp.Diff(want, obs.statuses); diff != "" {
		t.Errorf("stage statuses (-want +got):\n%s", diff)
	}
	assert.True(t, obs.finished)
}

func TestRun_InvalidArguments(t *testing.T) {
	w := &Workflow{Tasks: newFakeTasks()}
	ctx := context.Background()
	workDir := t.TempDir()

	_, err := w.Run(ctx, "/data/pipeline.db", "batch1", workDir, DefaultOptions(""))
	assert.True(t, errors.Is(err, ErrInvalidOptions), "missing manifest: %v", err)

	_, err = w.Run(ctx, "/data/pipeline.db", "", workDir, DefaultOptions("m.csv"))
	assert.True(t, errors.Is(err, ErrInvalidOptions), "missing run name: %v", err)

	_, err = w.Run(ctx, "/data/pipeline.db", "batch1", filepath.Join(workDir, "missing"), DefaultOptions("m.csv"))
	assert.Error(t, err, "missing work dir")
}

func findRequest(t *testing.T, tasks *fakeTasks, chromosome string) CallRequest {
	t.Helper()
	for _, r := range tasks.callRequests {
		if r.Chromosome == chromosome {
			return r
		}
	}
	t.Fatalf("no call request for chromosome %s", chromosome)
	return CallRequest{}
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses map[string]pipeline.Status
	finished bool
}

func (o *recordingObserver) BeforePipeline(ctx context.Context, runID, name string, payload interface{}) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = make(map[string]pipeline.Status)
	return nil
}

func (o *recordingObserver) AfterPipeline(ctx context.Context, runID string, result interface{}, err error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = true
	return nil
}

func (o *recordingObserver) BeforeStage(ctx context.Context, runID string, stageIndex int, stage string, input interface{}) error {
	return nil
}

func (o *recordingObserver) AfterStage(ctx context.Context, runID string, stageIndex int, stage string, input, output interface{}, status pipeline.Status, stageErr error, d time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses[stage] = status
	return nil
}
