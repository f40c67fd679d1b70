// internal/models/rule.go
package models

// AnchorKind identifies the temporal reference point a rule's offset is
// computed from. The set is closed; anything else is a configuration error.
type AnchorKind string

const (
	AnchorOnCreateDelay       AnchorKind = "on_create_delay"
	AnchorBeforeArrivalAtTime AnchorKind = "before_arrival_at_time"
	AnchorHoursBeforeCheckin  AnchorKind = "hours_before_checkin"
	AnchorHoursAfterCheckin   AnchorKind = "hours_after_checkin"
	AnchorHoursBeforeCheckout AnchorKind = "hours_before_checkout"
	AnchorDaysAfterDeparture  AnchorKind = "days_after_departure"
)

// Known reports whether k is one of the supported anchor kinds.
func (k AnchorKind) Known() bool {
	switch k {
	case AnchorOnCreateDelay, AnchorBeforeArrivalAtTime, AnchorHoursBeforeCheckin,
		AnchorHoursAfterCheckin, AnchorHoursBeforeCheckout, AnchorDaysAfterDeparture:
		return true
	}
	return false
}

// OnCreate reports whether the rule fires off reservation creation rather
// than a stay date.
func (k AnchorKind) OnCreate() bool {
	return k == AnchorOnCreateDelay
}

// ArrivalAnchored reports whether the computed time keys off the check-in date.
func (k AnchorKind) ArrivalAnchored() bool {
	switch k {
	case AnchorBeforeArrivalAtTime, AnchorHoursBeforeCheckin, AnchorHoursAfterCheckin:
		return true
	}
	return false
}

// DepartureAnchored reports whether the computed time keys off the check-out date.
func (k AnchorKind) DepartureAnchored() bool {
	switch k {
	case AnchorHoursBeforeCheckout, AnchorDaysAfterDeparture:
		return true
	}
	return false
}

// BackfillPolicy governs whether a past-due schedule is still materialized.
type BackfillPolicy string

const (
	BackfillNone         BackfillPolicy = "none"
	BackfillSkipIfPast   BackfillPolicy = "skip_if_past"
	BackfillUntilCheckin BackfillPolicy = "until_checkin"
)

// Message channels
const (
	ChannelInApp = "inapp"
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Rule is an administrator-configured automation rule. Code is a display
// label only; all branching happens on Anchor.
type Rule struct {
	ID           string         `json:"id"`
	Code         string         `json:"code"`
	Name         string         `json:"name,omitempty"`
	Anchor       AnchorKind     `json:"anchor"`
	DelayMinutes int            `json:"delayMinutes,omitempty"` // on_create_delay
	OffsetDays   int            `json:"offsetDays,omitempty"`   // day-anchored kinds
	OffsetHours  int            `json:"offsetHours,omitempty"`  // hour-anchored kinds
	AtTime       string         `json:"atTime,omitempty"`       // "HH:MM" local time for day-anchored kinds
	Backfill     BackfillPolicy `json:"backfill"`
	Timezone     string         `json:"timezone,omitempty"`
	Enabled      bool           `json:"enabled"`
	TemplateID   string         `json:"templateId"`
	Channel      string         `json:"channel"`
}
