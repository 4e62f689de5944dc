package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/clock"
	"github.com/ariefcatur/go-bloodbank/internal/eligibility"
)

var (
	answers      bloodbank.Questionnaire
	lastDonation string
	onDay        string
)

var eligibilityCmd = &cobra.Command{
	Use:   "eligibility:check",
	Short: "Evaluate donor eligibility from questionnaire answers",
	Example: `  bloodctl eligibility:check --last-donation 2025-04-01
  bloodctl eligibility:check --traveled --on 2025-06-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		today := clock.NewSystem().Today()
		if onDay != "" {
			d, err := time.Parse(time.DateOnly, onDay)
			if err != nil {
				return fmt.Errorf("--on: %w", err)
			}
			today = d
		}
		var h eligibility.History
		if lastDonation != "" {
			d, err := time.Parse(time.DateOnly, lastDonation)
			if err != nil {
				return fmt.Errorf("--last-donation: %w", err)
			}
			h.LastDonationAt = &d
		}

		res := eligibility.Evaluate(answers, h, today)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	f := eligibilityCmd.Flags()
	f.BoolVar(&answers.FeelingWell, "feeling-well", true, "donor feels well today")
	f.BoolVar(&answers.TraveledRecently, "traveled", false, "donor traveled recently")
	f.BoolVar(&answers.TakingMedication, "medication", false, "donor is taking medication")
	f.BoolVar(&answers.RecentSurgery, "surgery", false, "donor had recent surgery")
	f.StringVar(&lastDonation, "last-donation", "", "date of the last donation (YYYY-MM-DD)")
	f.StringVar(&onDay, "on", "", "evaluate as of this date (YYYY-MM-DD), default today")
	rootCmd.AddCommand(eligibilityCmd)
}
