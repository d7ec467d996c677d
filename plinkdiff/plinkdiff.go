// Package plinkdiff checks whether two Plink filesets hold equivalent calls,
// using the plink_diff.py script from Plinktools.
package plinkdiff

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/dcshock/genopipe/task"
)

// Tool is the Plinktools diff script.
const Tool = "plink_diff.py"

// ErrToolNotFound is returned when the diff script is not on the PATH.
var ErrToolNotFound = errors.New("cannot find Plinktools diff script")

// Comparison names the two filesets to compare and where to write the report.
type Comparison struct {
	// Stem and Master are Plink fileset stems.
	Stem    string
	Master  string
	RunName string
	WorkDir string
}

// Summary is one entry of the diff summary JSON.
type Summary struct {
	Equivalent bool `json:"EQUIVALENT"`
}

// Equivalent runs the diff script and reports the EQUIVALENT field of the
// first summary entry. env supplies the PATH used to find the script.
func Equivalent(ctx context.Context, env map[string]string, c Comparison) (bool, error) {
	if c.RunName == "" || c.WorkDir == "" {
		return false, errors.New("run name and work dir are required")
	}
	tool, err := task.LookTool(env, Tool)
	if err != nil {
		return false, errors.WithHint(errors.Mark(err, ErrToolNotFound),
			"requires an installation of Plinktools >= 0.4.1 on the PATH")
	}
	out := filepath.Join(c.WorkDir, c.RunName+".plink_test")
	cmd := exec.CommandContext(ctx, tool, "--in1", c.Stem, "--in2", c.Master, "--out", out)
	cmd.Dir = c.WorkDir
	if output, err := cmd.CombinedOutput(); err != nil {
		return false, errors.Wrapf(err, "%s: %s", Tool, output)
	}
	return ReadSummary(out + "_summary.json")
}

// ReadSummary reads the EQUIVALENT field of the first entry of a summary file.
func ReadSummary(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, errors.Wrap(err, "read plink diff summary")
	}
	var entries []Summary
	if err := json.Unmarshal(data, &entries); err != nil {
		return false, errors.Wrapf(err, "decode %s", path)
	}
	if len(entries) == 0 {
		return false, errors.Newf("%s: empty summary", path)
	}
	return entries[0].Equivalent, nil
}
