package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/watch"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newWatchCmd())
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run a sync pass whenever local files change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cfg, true)
			if err != nil {
				return err
			}
			defer ws.close()
			cmd.SilenceUsage = true

			pass := func(ctx context.Context) error {
				report, err := ws.engine.Run(ctx, engine.RunOptions{Strategy: cfg.Strategy})
				if err != nil {
					return err
				}
				ws.record(ctx, report)
				printReport(cmd.OutOrStdout(), report)
				return reportErr(report)
			}

			n := watch.NewNotifier(cfg.RootDir, pass, watch.Options{
				Debounce:      cfg.Debounce,
				RetryAttempts: cfg.RetryAttempts,
				RetryBackoff:  cfg.RetryBackoff,
				OnTransition: func(t watch.Transition) {
					slog.Debug("watch", "from", t.From, "to", t.To, "error", t.Err)
				},
			})
			if err := n.Start(cmd.Context()); err != nil {
				return err
			}
			defer n.Stop()

			// catch up on changes made while nobody was watching
			n.Notify(".")

			slog.Info("watch", "root", cfg.RootDir, "debounce", cfg.Debounce)
			if err := n.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
