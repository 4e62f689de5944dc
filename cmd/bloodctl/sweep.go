package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-bloodbank/internal/clock"
	"github.com/ariefcatur/go-bloodbank/internal/sweep"
)

var sweepRunCmd = &cobra.Command{
	Use:   "sweep:run",
	Short: "Discard expired batches once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := env()
		if err != nil {
			return err
		}
		store, closeStore, err := openPostgres(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		rep, err := sweep.New(store, nil, clock.NewSystem(), logger).RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		printReport(cmd, rep)
		return nil
	},
}

func printReport(cmd *cobra.Command, rep sweep.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "sweep %s: discarded=%d skipped=%d failed=%d\n",
		rep.Day.Format(time.DateOnly), rep.Total(), rep.Skipped, rep.Failed)
	orgs := make([]string, 0, len(rep.Discarded))
	for org := range rep.Discarded {
		orgs = append(orgs, org)
	}
	sort.Strings(orgs)
	for _, org := range orgs {
		fmt.Fprintf(out, "  %s: %v\n", org, rep.Discarded[org])
	}
}

func init() {
	rootCmd.AddCommand(sweepRunCmd)
}
