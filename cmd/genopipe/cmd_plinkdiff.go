package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"v.io/x/lib/envvar"

	"github.com/dcshock/genopipe/plinkdiff"
)

var plinkDiffFlags struct {
	workDir string
}

var plinkDiffCmd = &cobra.Command{
	Use:   "plink-diff <stem> <master> <run_name>",
	Short: "Compare two Plink filesets with Plinktools",
	Long: "Compares the calls in two Plink filesets and exits non-zero unless\n" +
		"they are equivalent. Requires plink_diff.py on the PATH.",
	Args: cobra.ExactArgs(3),
	RunE: runPlinkDiff,
}

func init() {
	plinkDiffCmd.Flags().StringVar(&plinkDiffFlags.workDir, "work-dir", ".", "directory for the comparison report")
}

func runPlinkDiff(cmd *cobra.Command, args []string) error {
	c := plinkdiff.Comparison{
		Stem:    args[0],
		Master:  args[1],
		RunName: args[2],
		WorkDir: plinkDiffFlags.workDir,
	}
	eq, err := plinkdiff.Equivalent(cmd.Context(), envvar.SliceToMap(os.Environ()), c)
	if err != nil {
		return err
	}
	if !eq {
		return errors.Newf("%s and %s are not equivalent", c.Stem, c.Master)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s and %s are equivalent\n", c.Stem, c.Master)
	return nil
}
