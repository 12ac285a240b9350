package main

import (
	"github.com/openmined/docsync/internal/engine"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newPullTreeCmd())
	rootCmd.AddCommand(newPushTreeCmd())
}

func newPullTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull-tree <root-id>",
		Short: "Mirror a remote document and all its descendants into nested directories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cfg, true)
			if err != nil {
				return err
			}
			defer ws.close()
			cmd.SilenceUsage = true

			dryRun, _ := cmd.Flags().GetBool("dry-run")
			report, err := ws.engine.PullTree(cmd.Context(), args[0], engine.TreeOptions{DryRun: dryRun})
			ws.record(cmd.Context(), report)
			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			if err != nil {
				return err
			}
			return reportErr(report)
		},
	}
	cmd.Flags().Bool("dry-run", false, "list what would be pulled")
	return cmd
}

func newPushTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push-tree <dir>",
		Short: "Create remote documents for every untracked file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cfg, true)
			if err != nil {
				return err
			}
			defer ws.close()
			cmd.SilenceUsage = true

			dryRun, _ := cmd.Flags().GetBool("dry-run")
			parent, _ := cmd.Flags().GetString("parent")
			report, err := ws.engine.PushTree(cmd.Context(), args[0], engine.TreeOptions{
				DryRun:   dryRun,
				SpaceID:  cfg.SpaceID,
				ParentID: parent,
			})
			ws.record(cmd.Context(), report)
			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			if err != nil {
				return err
			}
			return reportErr(report)
		},
	}
	cmd.Flags().Bool("dry-run", false, "list what would be created")
	cmd.Flags().String("parent", "", "remote document the top-level documents are created under")
	return cmd
}
