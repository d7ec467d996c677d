package illuminus

import (
	"context"

	"github.com/dcshock/genopipe/pipeline"
)

// Async holds scheduler hints for stages dispatched as batch jobs.
type Async struct {
	Memory int    `json:"memory"` // Mb
	Queue  string `json:"queue"`
}

// SampleQuery selects the samples of a pipeline run.
type SampleQuery struct {
	DB           string `json:"db"`
	Run          string `json:"run"`
	Config       string `json:"config,omitempty"`
	GenderMethod string `json:"gender_method,omitempty"`
}

// QCArgs configures a quality control stage.
type QCArgs struct {
	Run    string `json:"run"`
	Config string `json:"config,omitempty"`
	// PostFilterCR drops samples whose call rate is below it. It is only
	// applied to GenCall QC, where 0 means no filter.
	PostFilterCR float64 `json:"post_filter_cr"`
	// SIM is an optional intensity file used by the intensity-based checks.
	SIM string `json:"sim,omitempty"`
	// GenCall marks QC of GenCall calls rather than Illuminus calls.
	GenCall bool `json:"gencall,omitempty"`
}

// SIMArgs configures SIM file creation.
type SIMArgs struct {
	Normalize bool `json:"normalize"`
}

// ManifestFiles are the two outputs of manifest parsing.
type ManifestFiles struct {
	SNPJSON        string `json:"snp_json"`
	ChromosomeJSON string `json:"chromosome_json"`
}

// CallRequest describes the Illuminus calls for one chromosome range.
type CallRequest struct {
	SIM        string `json:"sim"`
	SampleJSON string `json:"sample_json"`
	Manifest   string `json:"manifest"`
	SNPJSON    string `json:"snp_json"`
	// Name is the output stem, see ChunkName.
	Name       string `json:"name"`
	Chromosome string `json:"chromosome"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	ChunkSize  int    `json:"size"`
	GroupSize  int    `json:"group_size"`
	Plink      bool   `json:"plink"`
}

// Tasks are the stages of the workflow. Each returns Failed when it could not
// produce its output; the error return is reserved for conditions that must
// stop the run, such as a missing tool or a cancelled context.
type Tasks interface {
	// SampleIntensities writes the sample JSON for a run.
	SampleIntensities(ctx context.Context, env Env, q SampleQuery, output string) (pipeline.Result[string], error)
	// GTCToBED writes GenCall calls as an individual-major BED file.
	GTCToBED(ctx context.Context, env Env, sampleJSON, manifest, output string, async Async) (pipeline.Result[string], error)
	// TransposeBED writes the sample-major transpose of a BED file.
	TransposeBED(ctx context.Context, env Env, bed, output string, async Async) (pipeline.Result[string], error)
	// QualityControl checks a BED file, reporting whether it passed.
	QualityControl(ctx context.Context, env Env, db, bed, outDir string, qc QCArgs, async Async) (pipeline.Result[bool], error)
	// GTCToSIM writes sample intensities as a SIM file.
	GTCToSIM(ctx context.Context, env Env, sampleJSON, manifest, output string, args SIMArgs, async Async) (pipeline.Result[string], error)
	// ParseManifest writes the SNP and chromosome-bounds JSON of a manifest.
	ParseManifest(ctx context.Context, env Env, manifest, snpOutput, chrOutput string) (pipeline.Result[ManifestFiles], error)
	// CallFromSIM calls genotypes for one chromosome range, returning one result per BED chunk.
	CallFromSIM(ctx context.Context, env Env, req CallRequest, async Async) ([]pipeline.Result[string], error)
	// MergeBED merges BED chunks into one BED file.
	MergeBED(ctx context.Context, env Env, chunks []string, output string, async Async) (pipeline.Result[string], error)
	// UpdateAnnotation annotates a BED file with sample and SNP metadata.
	UpdateAnnotation(ctx context.Context, env Env, bed, sampleJSON, snpJSON string, async Async) (pipeline.Result[string], error)
}
