package main

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/dcshock/genopipe/illuminus"
	"github.com/dcshock/genopipe/observer"
	"github.com/dcshock/genopipe/pipeline"
)

var illuminusFlags struct {
	manifest     string
	config       string
	genderMethod string
	chunkSize    int
	memory       int
	queue        string
	minCR        float64
	runID        string
}

var illuminusCmd = &cobra.Command{
	Use:   "illuminus <dbfile> <run_name> <work_dir>",
	Short: "Call genotypes with GenCall and Illuminus for one pipeline run",
	Long: "Runs the GenotypeIlluminus workflow for a run in the pipeline database\n" +
		"and prints the resulting BED files and QC verdicts as JSON.",
	Args: cobra.ExactArgs(3),
	RunE: runIlluminus,
}

func init() {
	f := illuminusCmd.Flags()
	f.StringVar(&illuminusFlags.manifest, "manifest", "", "chip manifest file (required)")
	f.StringVar(&illuminusFlags.config, "db-config", "", "custom pipeline database .ini file")
	f.StringVar(&illuminusFlags.genderMethod, "gender-method", illuminus.DefaultGenderMethod, "gender determination method for Illuminus input")
	f.IntVar(&illuminusFlags.chunkSize, "chunk-size", illuminus.DefaultChunkSize, "SNPs analysed by one Illuminus job")
	f.IntVar(&illuminusFlags.memory, "memory", illuminus.DefaultMemory, "Mb requested for scheduler jobs")
	f.StringVar(&illuminusFlags.queue, "queue", illuminus.DefaultQueue, "scheduler queue hint")
	f.Float64Var(&illuminusFlags.minCR, "min-cr", illuminus.DefaultMinCR, "minimum GenCall call rate of Illuminus input samples")
	f.StringVar(&illuminusFlags.runID, "run-id", "", "run ID recorded by observers (default: a new UUID)")
	_ = illuminusCmd.MarkFlagRequired("manifest")
}

func illuminusOptions() illuminus.Options {
	return illuminus.Options{
		Config:       illuminusFlags.config,
		Manifest:     illuminusFlags.manifest,
		GenderMethod: illuminusFlags.genderMethod,
		ChunkSize:    illuminusFlags.chunkSize,
		Memory:       illuminusFlags.memory,
		Queue:        illuminusFlags.queue,
		MinCR:        illuminusFlags.minCR,
	}
}

func runIlluminus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	opts := illuminusOptions()
	if err := opts.Validate(); err != nil {
		return err
	}

	obs := []pipeline.Observer{observer.NewLog(nil)}
	if cfg.LedgerDSN != "" {
		ledger, pool, err := openLedger(ctx, cfg.LedgerDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		obs = append(obs, ledger)
	}
	wf, err := newWorkflow(cfg, pipeline.MultiObserver(obs...), illuminusFlags.runID, 0)
	if err != nil {
		return err
	}

	res, err := wf.Run(ctx, args[0], args[1], args[2], opts)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return errors.Wrap(err, "write outcome")
	}
	if !res.OK() {
		return errors.Newf("run %s did not pass", args[1])
	}
	return nil
}
