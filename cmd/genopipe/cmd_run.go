package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/dcshock/genopipe/config"
	"github.com/dcshock/genopipe/observer"
)

var runFlags struct {
	runID string
}

var runCmd = &cobra.Command{
	Use:   "run <definition.yml>",
	Short: "Run the workflow named in a definition file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDefinition,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.runID, "run-id", "", "run ID recorded by observers (default: a new UUID)")
}

func runDefinition(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	def, err := config.LoadDefinition(args[0])
	if err != nil {
		return err
	}

	var ledger *observer.Ledger
	if cfg.LedgerDSN != "" {
		l, pool, err := openLedger(ctx, cfg.LedgerDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		ledger = l
	}
	obs, err := config.BuildObserver(def, observers(ledger))
	if err != nil {
		return errors.WithHintf(err, "observers available: %s, %s (with a ledger DSN)", observerLog, observerLedger)
	}
	if obs == nil {
		obs = observer.NewLog(nil)
	}

	passed, err := workflows(cfg).Run(ctx, def, config.RunOptions{RunID: runFlags.runID, Observer: obs})
	if err != nil {
		return err
	}
	if !passed {
		return errors.Newf("workflow %s did not pass", def.Workflow)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "workflow %s passed\n", def.Workflow)
	return nil
}
