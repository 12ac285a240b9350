package main

import (
	"fmt"

	"github.com/openmined/docsync/internal/manifest"
	"github.com/openmined/docsync/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Start tracking a local directory against a remote document service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if err := utils.EnsureDir(cfg.RootDir); err != nil {
				return err
			}
			store := manifest.NewStore(cfg.MetaDir())
			if err := store.Init(cfg.BaseURL); err != nil {
				return err
			}

			if save, _ := cmd.Flags().GetBool("save"); save {
				if err := cfg.Save(cfg.Path); err != nil {
					return fmt.Errorf("save config: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", green.Render("initialized"), store.Path())
			fmt.Fprintf(out, "  remote %s\n", cyan.Render(cfg.BaseURL))
			return nil
		},
	}
	cmd.Flags().Bool("save", false, "also write the settings to the config file")
	return cmd
}
