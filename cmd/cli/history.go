package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamiurg/mountaineers-assistant-sub000/store"
)

func historyCmd(load func() (*app, error)) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent refresh runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.records.LoadHistory(cmd.Context())
			if err != nil {
				return err
			}
			if limit > 0 && len(runs) > limit {
				runs = runs[:limit]
			}
			printHistory(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show (0 for all)")
	return cmd
}

func printHistory(w io.Writer, runs []store.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No refresh runs recorded.")
		return
	}
	for _, r := range runs {
		line := fmt.Sprintf("%s  %-9s  %s  new=%d total=%d",
			r.StartedAt.Local().Format(time.DateTime),
			stateColor(r.State).Sprint(r.State),
			faint.Sprint(r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond)),
			r.NewActivities, r.ActivityCount,
		)
		if r.Warnings > 0 {
			line += yellow.Sprintf(" warnings=%d", r.Warnings)
		}
		if r.Error != "" {
			line += " " + red.Sprint(r.Error)
		}
		fmt.Fprintln(w, line)
	}
}
