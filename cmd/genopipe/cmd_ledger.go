package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dcshock/genopipe/logger"
	"github.com/dcshock/genopipe/observer"
	"github.com/dcshock/genopipe/pipeline"
)

var ledgerFlags struct {
	maxAttempts int
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Manage the Postgres run ledger",
}

var ledgerMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the ledger tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, pool, err := openLedger(ctx, cfg.LedgerDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := observer.Migrate(ctx, pool); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ledger migrated")
		return nil
	},
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show <run_id>",
	Short: "Print a run and its stages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ledger, pool, err := openLedger(ctx, cfg.LedgerDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		run, err := ledger.Run(ctx, args[0])
		if err != nil {
			return err
		}
		stages, err := ledger.Stages(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run:      %s\n", run.RunID)
		fmt.Fprintf(out, "Workflow: %s\n", run.Name)
		fmt.Fprintf(out, "Status:   %s\n", run.Status)
		fmt.Fprintf(out, "Attempts: %d\n", run.Attempts)
		fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Format(time.RFC3339))
		if !run.FinishedAt.IsZero() {
			fmt.Fprintf(out, "Finished: %s\n", run.FinishedAt.Format(time.RFC3339))
		}
		if run.Error != "" {
			fmt.Fprintf(out, "Error:    %s\n", run.Error)
		}
		fmt.Fprintln(out)

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tSTAGE\tSTATUS\tDURATION\tERROR")
		for _, s := range stages {
			d := time.Duration(s.DurationMS) * time.Millisecond
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", s.Index, s.Stage, s.Status, d, s.Error)
		}
		return tw.Flush()
	},
}

var ledgerResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Run again every ledger run that did not pass",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ledger, pool, err := openLedger(ctx, cfg.LedgerDSN)
		if err != nil {
			return err
		}
		defer pool.Close()

		obs := pipeline.MultiObserver(observer.NewLog(nil), ledger)
		r := observer.NewResumer(ledger, resumeLookup(cfg, obs))
		r.MaxAttempts = ledgerFlags.maxAttempts
		r.Logger = logger.Logger
		n, err := r.RunDue(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "resumed %d run(s)\n", n)
		return err
	},
}

func init() {
	ledgerResumeCmd.Flags().IntVar(&ledgerFlags.maxAttempts, "max-attempts", 3, "skip runs already attempted this many times (0 means no limit)")
	ledgerCmd.AddCommand(ledgerMigrateCmd)
	ledgerCmd.AddCommand(ledgerShowCmd)
	ledgerCmd.AddCommand(ledgerResumeCmd)
}
