// internal/models/schedule.go
package models

import "time"

// ScheduleStatus is the lifecycle state of a schedule record. sent, failed
// and cancelled are terminal; a record never returns to pending.
type ScheduleStatus string

const (
	StatusPending   ScheduleStatus = "pending"
	StatusSent      ScheduleStatus = "sent"
	StatusFailed    ScheduleStatus = "failed"
	StatusCancelled ScheduleStatus = "cancelled"
)

// ScheduleRecord is one planned guest message. RunAt is always UTC and
// DedupKey is unique at the store level.
type ScheduleRecord struct {
	ID            string                 `json:"id"`
	RuleID        string                 `json:"ruleId"`
	RuleCode      string                 `json:"ruleCode"`
	ReservationID string                 `json:"reservationId"`
	ThreadID      *string                `json:"threadId,omitempty"`
	Channel       string                 `json:"channel"`
	TemplateID    string                 `json:"templateId"`
	RunAt         time.Time              `json:"runAt"`
	DedupKey      string                 `json:"dedupKey"`
	Status        ScheduleStatus         `json:"status"`
	Payload       map[string]interface{} `json:"payload"`
	LastError     *string                `json:"lastError,omitempty"`
	CreatedBy     string                 `json:"createdBy"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// Generation result statuses, one entry per rule per reservation.
const (
	GenCreated = "created"
	GenExists  = "exists" // idempotency-key collision, treated as success
	GenSkipped = "skipped"
	GenFailed  = "failed"
)

// GenerationResult is the per-rule outcome of a generation pass.
type GenerationResult struct {
	RuleCode   string `json:"ruleCode"`
	Status     string `json:"status"`
	ScheduleID string `json:"scheduleId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ScanSummary is the aggregate outcome of one reconciliation run.
type ScanSummary struct {
	Processed int `json:"processed"`
	Generated int `json:"generated"`
	Skipped   int `json:"skipped"`
}

// DispatchSummary is the aggregate outcome of one dispatch tick.
type DispatchSummary struct {
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// RenderedMessage is the output of the template renderer.
type RenderedMessage struct {
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// MessageTemplate is one entry in the template registry. Schema, when
// present, is a JSON schema the payload must satisfy before rendering.
type MessageTemplate struct {
	ID      string                 `json:"id"`
	Subject string                 `json:"subject,omitempty"`
	Body    string                 `json:"body"`
	Schema  map[string]interface{} `json:"schema,omitempty"`
	Version string                 `json:"version,omitempty"`
}

// CancelOutcome reports what a reservation mutation did to its pending
// schedules.
type CancelOutcome struct {
	Cancelled int                `json:"cancelled"`
	Reason    string             `json:"reason,omitempty"`
	Results   []GenerationResult `json:"results,omitempty"`
}
