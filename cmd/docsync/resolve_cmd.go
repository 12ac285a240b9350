package main

import (
	"fmt"

	"github.com/openmined/docsync/internal/conflict"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newResolveCmd())
}

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a conflicted document, or finalize a manual merge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			finalize, _ := cmd.Flags().GetBool("finalize")
			name, _ := cmd.Flags().GetString("strategy")
			strategy, err := conflict.ParseStrategy(name)
			if err != nil && !finalize {
				return err
			}

			ws, err := openWorkspace(cfg, true)
			if err != nil {
				return err
			}
			defer ws.close()
			cmd.SilenceUsage = true
			out := cmd.OutOrStdout()

			if finalize {
				doc, err := ws.engine.Finalize(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s is %s, the next sync pushes it unless the remote moved since version %d\n", green.Render("finalized"), doc.LocalPath, doc.Status, doc.Version)
				return nil
			}

			outcome, err := ws.engine.Resolve(cmd.Context(), id, strategy)
			if err != nil {
				return err
			}
			doc := outcome.Document
			fmt.Fprintf(out, "%s %s with %s\n", green.Render("resolved"), doc.LocalPath, cyan.Render(string(strategy)))
			if outcome.BackupPath != "" {
				fmt.Fprintf(out, "  backup %s\n", gray.Render(outcome.BackupPath))
			}
			if strategy == conflict.Manual {
				fmt.Fprintf(out, "  edit the conflict markers, then run 'docsync resolve %s --finalize'\n", id)
			}
			return nil
		},
	}
	cmd.Flags().String("strategy", string(conflict.Manual), "manual, local-wins or remote-wins")
	cmd.Flags().Bool("finalize", false, "accept the edited file of a manual resolution")
	return cmd
}
