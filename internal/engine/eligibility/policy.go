// Package eligibility decides whether a computed schedule time should be
// materialized now, given the rule's backfill policy and the
// pre-materialization horizon.
package eligibility

import (
	"time"

	"guestflow-engine/internal/engine/ruletime"
	"guestflow-engine/internal/models"
)

// Horizon bounds how far ahead non-realtime generation pre-materializes
// records. The reconciliation scanner runs often enough that anything
// further out will be picked up by a later pass.
const Horizon = 7 * 24 * time.Hour

// ShouldCreate reports whether a schedule computed at scheduledAt should be
// materialized for res at now. realtime marks the immediate post-creation
// path, which is exempt from the horizon.
func ShouldCreate(rule models.Rule, scheduledAt time.Time, res models.Reservation, now time.Time, realtime bool) bool {
	if !realtime && !rule.Anchor.OnCreate() && scheduledAt.After(now.Add(Horizon)) {
		return false
	}

	switch rule.Backfill {
	case models.BackfillNone, models.BackfillSkipIfPast:
		return scheduledAt.After(now)

	case models.BackfillUntilCheckin:
		if scheduledAt.After(now) {
			return true
		}
		// Catch-up window: a past-due message is still worth sending while
		// the guest has not arrived yet.
		loc, err := ruletime.Location(rule, res)
		if err != nil {
			return false
		}
		return now.Before(ruletime.CheckInInstant(res, loc))
	}

	// Fail closed on backfill values this version does not know.
	return false
}
