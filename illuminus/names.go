package illuminus

import "path/filepath"

// QC output directories. The GenCall one is placed under the work dir; the
// Illuminus one is relative and resolved by the task executor.
const (
	GencallQCDir   = "gencall_qc"
	IlluminusQCDir = "illuminus_qc"
	LogDirName     = "log"
)

// Names are the artifact filenames of one run. They depend only on the run name,
// so re-running a workflow in the same work dir always targets the same files.
type Names struct {
	GencallSampleJSON   string
	IlluminusSampleJSON string
	SNPJSON             string
	ChromosomeJSON      string
	IlluminusSIM        string
	GencallImajorBED    string
	GencallSmajorBED    string
	IlluminusBED        string
}

// NamesFor derives the artifact filenames for runName.
func NamesFor(runName string) Names {
	return Names{
		GencallSampleJSON:   runName + ".gencall.sample.json",
		IlluminusSampleJSON: runName + ".illuminus.sample.json",
		SNPJSON:             runName + ".snp.json",
		ChromosomeJSON:      runName + ".chr.json",
		IlluminusSIM:        runName + ".illuminus.sim",
		GencallImajorBED:    runName + ".gencall.imajor.bed",
		GencallSmajorBED:    runName + ".gencall.smajor.bed",
		IlluminusBED:        runName + ".illuminus.bed",
	}
}

// All returns every filename in stage order.
func (n Names) All() []string {
	return []string{
		n.GencallSampleJSON,
		n.IlluminusSampleJSON,
		n.SNPJSON,
		n.ChromosomeJSON,
		n.IlluminusSIM,
		n.GencallImajorBED,
		n.GencallSmajorBED,
		n.IlluminusBED,
	}
}

// ChunkName is the output stem for the Illuminus calls on one chromosome.
func ChunkName(runName, chromosome string) string {
	return runName + "." + chromosome
}

// Env carries the directories every stage writes into.
type Env struct {
	WorkDir string
	LogDir  string
}

// Resolve returns path unchanged if it is absolute, otherwise joined to the work dir.
func (e Env) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.WorkDir, path)
}
