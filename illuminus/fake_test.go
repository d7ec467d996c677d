package illuminus

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/dcshock/genopipe/pipeline"
)

// fakeTasks writes empty artifacts into the work dir and records every call.
// Fields let a test make a particular stage fail.
type fakeTasks struct {
	mu    sync.Mutex
	calls []string

	gencallQC     pipeline.Result[bool]
	illuminusQC   pipeline.Result[bool]
	noManifest    bool
	failChunkOf   string
	bounds        []ChromosomeBounds
	callRequests  []CallRequest
	qcArgs        []QCArgs
	sampleQueries []SampleQuery
	mergedChunks  []string
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{
		gencallQC:   pipeline.Ok(true),
		illuminusQC: pipeline.Ok(true),
		bounds: []ChromosomeBounds{
			{Chromosome: "1", Start: 0, End: 4500},
			{Chromosome: "X", Start: 4500, End: 5000},
		},
	}
}

func (f *fakeTasks) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeTasks) called(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == name {
			return true
		}
	}
	return false
}

func touch(env Env, name string) (pipeline.Result[string], error) {
	if err := os.WriteFile(env.Resolve(name), nil, 0o644); err != nil {
		return pipeline.Failed[string](), err
	}
	return pipeline.Ok(name), nil
}

func (f *fakeTasks) SampleIntensities(ctx context.Context, env Env, q SampleQuery, output string) (pipeline.Result[string], error) {
	f.record("sample_intensities")
	f.mu.Lock()
	f.sampleQueries = append(f.sampleQueries, q)
	f.mu.Unlock()
	return touch(env, output)
}

func (f *fakeTasks) GTCToBED(ctx context.Context, env Env, sampleJSON, manifest, output string, async Async) (pipeline.Result[string], error) {
	f.record("gtc_to_bed")
	return touch(env, output)
}

func (f *fakeTasks) TransposeBED(ctx context.Context, env Env, bed, output string, async Async) (pipeline.Result[string], error) {
	f.record("transpose_bed")
	return touch(env, output)
}

func (f *fakeTasks) QualityControl(ctx context.Context, env Env, db, bed, outDir string, qc QCArgs, async Async) (pipeline.Result[bool], error) {
	f.record("quality_control")
	f.mu.Lock()
	f.qcArgs = append(f.qcArgs, qc)
	f.mu.Unlock()
	if qc.GenCall {
		return f.gencallQC, nil
	}
	return f.illuminusQC, nil
}

func (f *fakeTasks) GTCToSIM(ctx context.Context, env Env, sampleJSON, manifest, output string, args SIMArgs, async Async) (pipeline.Result[string], error) {
	f.record("gtc_to_sim")
	return touch(env, output)
}

func (f *fakeTasks) ParseManifest(ctx context.Context, env Env, manifest, snpOutput, chrOutput string) (pipeline.Result[ManifestFiles], error) {
	f.record("parse_manifest")
	if f.noManifest {
		return pipeline.Failed[ManifestFiles](), nil
	}
	if _, err := touch(env, snpOutput); err != nil {
		return pipeline.Failed[ManifestFiles](), err
	}
	data, err := json.Marshal(f.bounds)
	if err != nil {
		return pipeline.Failed[ManifestFiles](), err
	}
	if err := os.WriteFile(env.Resolve(chrOutput), data, 0o644); err != nil {
		return pipeline.Failed[ManifestFiles](), err
	}
	return pipeline.Ok(ManifestFiles{SNPJSON: snpOutput, ChromosomeJSON: chrOutput}), nil
}

func (f *fakeTasks) CallFromSIM(ctx context.Context, env Env, req CallRequest, async Async) ([]pipeline.Result[string], error) {
	f.record("call_from_sim_p")
	f.mu.Lock()
	f.callRequests = append(f.callRequests, req)
	f.mu.Unlock()
	var out []pipeline.Result[string]
	for i, group := range PlanChunks(req.Start, req.End, req.ChunkSize, req.GroupSize) {
		for _, c := range group {
			if req.Chromosome == f.failChunkOf && i == 0 {
				out = append(out, pipeline.Failed[string]())
				continue
			}
			name := filepath.Base(req.Name) + "." + strconv.Itoa(c.Start) + "_" + strconv.Itoa(c.End) + ".bed"
			r, err := touch(env, name)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeTasks) MergeBED(ctx context.Context, env Env, chunks []string, output string, async Async) (pipeline.Result[string], error) {
	f.record("merge_bed")
	f.mu.Lock()
	f.mergedChunks = chunks
	f.mu.Unlock()
	return touch(env, output)
}

func (f *fakeTasks) UpdateAnnotation(ctx context.Context, env Env, bed, sampleJSON, snpJSON string, async Async) (pipeline.Result[string], error) {
	f.record("update_annotation")
	return pipeline.Ok(bed), nil
}
