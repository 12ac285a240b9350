package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tracked documents and recent passes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cfg, false)
			if err != nil {
				return err
			}
			defer ws.close()
			cmd.SilenceUsage = true
			out := cmd.OutOrStdout()

			last := "never"
			if t := ws.store.LastSyncTime(); t != nil {
				last = since(*t)
			}
			fmt.Fprintf(out, "%s %s\n", bold.Render("root"), ws.cfg.RootDir)
			fmt.Fprintf(out, "%s %s\n", bold.Render("remote"), cyan.Render(ws.store.RemoteBaseURL()))
			fmt.Fprintf(out, "%s %s\n\n", bold.Render("last sync"), last)

			fmt.Fprintln(out, bold.Render("documents"))
			printDocuments(out, ws.store.GetAll())

			n, _ := cmd.Flags().GetInt("runs")
			if n <= 0 {
				return nil
			}
			runs, err := ws.history.Recent(cmd.Context(), n)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, bold.Render("recent passes"))
			if len(runs) == 0 {
				fmt.Fprintln(out, gray.Render("  none"))
			}
			for _, r := range runs {
				status := green.Render(r.Status)
				if r.Errors > 0 {
					status = red.Render(r.Status)
				}
				fmt.Fprintf(out, "  %-9s %-9s %s  pushed %d pulled %d created %d conflicted %d errors %d %s\n",
					r.Kind, status, gray.Render(since(r.Started())),
					r.Pushed, r.Pulled, r.Created, r.Conflicted, r.Errors, gray.Render(r.ID))
			}
			return nil
		},
	}
	cmd.Flags().Int("runs", 5, "recent passes to show")
	return cmd
}
