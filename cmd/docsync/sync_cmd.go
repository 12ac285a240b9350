package main

import (
	"fmt"

	"github.com/openmined/docsync/internal/conflict"
	"github.com/openmined/docsync/internal/engine"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization pass over every tracked document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cfg, true)
			if err != nil {
				return err
			}
			defer ws.close()
			cmd.SilenceUsage = true

			dryRun, _ := cmd.Flags().GetBool("dry-run")
			filter, _ := cmd.Flags().GetString("filter")
			report, err := ws.engine.Run(cmd.Context(), engine.RunOptions{
				DryRun:   dryRun,
				Filter:   filter,
				Strategy: cfg.Strategy,
			})
			if err != nil {
				return err
			}
			ws.record(cmd.Context(), report)
			printReport(cmd.OutOrStdout(), report)
			return reportErr(report)
		},
	}
	cmd.Flags().Bool("dry-run", false, "classify and print the plan without changing anything")
	cmd.Flags().String("strategy", string(conflict.Manual), "conflict strategy (manual, local-wins, remote-wins)")
	cmd.Flags().Int("concurrency", engine.DefaultConcurrency, "documents transferred in parallel")
	cmd.Flags().String("filter", "", "only documents whose local path matches this glob")
	return cmd
}

// reportErr turns a failed report into a non-zero exit.
func reportErr(r *engine.Report) error {
	if r.Status == engine.StatusFailed {
		return fmt.Errorf("%s finished with %d error(s)", r.Kind, len(r.Errors))
	}
	return nil
}
