// Package eligibility decides whether a donor may give blood today. It is a
// pure function of the questionnaire, the donation history and the date.
package eligibility

import (
	"fmt"
	"time"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/clock"
)

const (
	TravelDeferralDays   = 28
	SurgeryDeferralDays  = 180
	DonationIntervalDays = 56
)

// Reason codes, stable for clients; Message carries the human text.
const (
	ReasonNotFeelingWell   = "MEDICAL_RESTRICTION"
	ReasonRecentTravel     = "TRAVEL_DEFERRAL"
	ReasonMedication       = "MEDICATION"
	ReasonRecentSurgery    = "SURGERY_RECOVERY"
	ReasonDonationInterval = "DONATION_INTERVAL"
	ReasonFirstTimeDonor   = "FIRST_TIME_DONOR"
	ReasonEligible         = "ELIGIBLE"
)

// Result is the verdict. DaysRemaining is -1 and NextEligibleDate is zero
// when the deferral has no computable end.
type Result struct {
	Eligible         bool      `json:"eligible"`
	DaysRemaining    int       `json:"days_remaining"`
	NextEligibleDate time.Time `json:"next_eligible_date,omitempty"`
	Reason           string    `json:"reason"`
	Message          string    `json:"message"`
}

// History is what the evaluator needs from the donor record.
type History struct {
	LastDonationAt *time.Time
}

// Evaluate applies the rules in priority order; the first failing rule wins.
func Evaluate(q bloodbank.Questionnaire, h History, today time.Time) Result {
	today = clock.Day(today)

	if !q.FeelingWell {
		return Result{
			DaysRemaining: -1,
			Reason:        ReasonNotFeelingWell,
			Message:       "Medical Restriction: You must feel healthy/well on the day of donation.",
		}
	}
	if q.TraveledRecently {
		return deferred(today, TravelDeferralDays, ReasonRecentTravel,
			"Safety Protocol: Travel to certain regions requires a 28-day waiting period to rule out latent infections.")
	}
	if q.TakingMedication {
		return Result{
			DaysRemaining: -1,
			Reason:        ReasonMedication,
			Message:       "Medical Restriction: Certain medications can affect blood quality or donor health. Please consult a doctor.",
		}
	}
	if q.RecentSurgery {
		return deferred(today, SurgeryDeferralDays, ReasonRecentSurgery,
			"Recovery Protocol: Major surgery requires at least 180 days of complete recovery before donating.")
	}
	return DonationInterval(h, today)
}

// DonationInterval checks only the minimum gap between whole blood donations.
func DonationInterval(h History, today time.Time) Result {
	today = clock.Day(today)
	if h.LastDonationAt == nil {
		return Result{
			Eligible:         true,
			NextEligibleDate: today,
			Reason:           ReasonFirstTimeDonor,
			Message:          "Welcome! As a first-time donor, you are eligible to donate today.",
		}
	}

	next := clock.AddDays(*h.LastDonationAt, DonationIntervalDays)
	remaining := clock.DaysBetween(today, next)
	if remaining <= 0 {
		return Result{
			Eligible:         true,
			DaysRemaining:    remaining,
			NextEligibleDate: next,
			Reason:           ReasonEligible,
			Message:          "Thank you for your previous gift! You are eligible to donate again today.",
		}
	}
	return Result{
		DaysRemaining:    remaining,
		NextEligibleDate: next,
		Reason:           ReasonDonationInterval,
		Message: fmt.Sprintf("Donation Interval: You must wait %d days between whole blood donations. Your next eligible date is %s",
			DonationIntervalDays, next.Format(time.DateOnly)),
	}
}

func deferred(today time.Time, days int, reason, msg string) Result {
	return Result{
		DaysRemaining:    days,
		NextEligibleDate: clock.AddDays(today, days),
		Reason:           reason,
		Message:          msg,
	}
}

// AsError converts an ineligible verdict into the workflow error.
func (r Result) AsError() error {
	if r.Eligible {
		return nil
	}
	e := &bloodbank.IneligibleError{Reason: r.Message, DaysRemaining: r.DaysRemaining}
	if !r.NextEligibleDate.IsZero() {
		e.NextEligibleDate = r.NextEligibleDate.Format(time.DateOnly)
	}
	return e
}
