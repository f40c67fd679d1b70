// Package ruletime turns a rule's temporal anchor into an absolute UTC
// instant for one reservation. Compile is pure: identical inputs always
// produce the identical instant.
package ruletime

import (
	"fmt"
	"time"

	"guestflow-engine/internal/common/errors"
	"guestflow-engine/internal/models"
)

// Property-level defaults applied when a reservation carries no local times.
const (
	DefaultCheckInTime   = "15:00"
	DefaultCheckOutTime  = "11:00"
	DefaultDepartureTime = "10:00"
)

// Compile computes the absolute UTC instant at which rule should fire for
// res. The rule's timezone wins over the property timezone; both absent
// means UTC.
func Compile(rule models.Rule, res models.Reservation) (time.Time, error) {
	loc, err := Location(rule, res)
	if err != nil {
		return time.Time{}, err
	}

	switch rule.Anchor {
	case models.AnchorOnCreateDelay:
		return res.CreatedAt.Add(time.Duration(rule.DelayMinutes) * time.Minute).UTC(), nil

	case models.AnchorBeforeArrivalAtTime:
		day := res.CheckInDate.AddDate(0, 0, -rule.OffsetDays)
		at, err := atLocalTime(day, timeOrDefault(rule.AtTime, DefaultCheckInTime), loc)
		if err != nil {
			return time.Time{}, err
		}
		return at.UTC(), nil

	case models.AnchorHoursBeforeCheckin:
		return CheckInInstant(res, loc).Add(-time.Duration(rule.OffsetHours) * time.Hour).UTC(), nil

	case models.AnchorHoursAfterCheckin:
		return CheckInInstant(res, loc).Add(time.Duration(rule.OffsetHours) * time.Hour).UTC(), nil

	case models.AnchorHoursBeforeCheckout:
		return CheckOutInstant(res, loc).Add(-time.Duration(rule.OffsetHours) * time.Hour).UTC(), nil

	case models.AnchorDaysAfterDeparture:
		day := res.CheckOutDate.AddDate(0, 0, rule.OffsetDays)
		at, err := atLocalTime(day, timeOrDefault(rule.AtTime, DefaultDepartureTime), loc)
		if err != nil {
			return time.Time{}, err
		}
		return at.UTC(), nil
	}

	return time.Time{}, errors.NewUnknownRuleTypeError(string(rule.Anchor))
}

// Location resolves the timezone a rule's local times are expressed in.
func Location(rule models.Rule, res models.Reservation) (*time.Location, error) {
	tz := rule.Timezone
	if tz == "" {
		tz = res.PropertyTimezone
	}
	if tz == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.NewInvalidTimezoneError(tz, err)
	}
	return loc, nil
}

// CheckInInstant is the reservation's check-in moment in loc, using the
// property default local time when the reservation carries none.
func CheckInInstant(res models.Reservation, loc *time.Location) time.Time {
	at, err := atLocalTime(res.CheckInDate, timeOrDefault(res.CheckInTime, DefaultCheckInTime), loc)
	if err != nil {
		at, _ = atLocalTime(res.CheckInDate, DefaultCheckInTime, loc)
	}
	return at
}

// CheckOutInstant is the reservation's check-out moment in loc.
func CheckOutInstant(res models.Reservation, loc *time.Location) time.Time {
	at, err := atLocalTime(res.CheckOutDate, timeOrDefault(res.CheckOutTime, DefaultCheckOutTime), loc)
	if err != nil {
		at, _ = atLocalTime(res.CheckOutDate, DefaultCheckOutTime, loc)
	}
	return at
}

// atLocalTime combines a calendar date with an "HH:MM" wall-clock time in loc.
func atLocalTime(day time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid local time %q: %w", hhmm, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, loc), nil
}

func timeOrDefault(hhmm, fallback string) string {
	if hhmm == "" {
		return fallback
	}
	return hhmm
}
