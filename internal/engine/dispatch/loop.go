// Package dispatch drains the queue of due schedule records: claim, render,
// deliver, transition to a terminal status.
package dispatch

import (
	"context"
	"time"

	"guestflow-engine/internal/common/logger"
	"guestflow-engine/internal/common/metrics"
	"guestflow-engine/internal/models"
	"guestflow-engine/internal/template"
)

// Claimer is the store surface the loop drives. ClaimDue must be atomic:
// two concurrent claimers never receive the same record.
type Claimer interface {
	ClaimDue(ctx context.Context, limit int, now time.Time) ([]models.ScheduleRecord, error)
	MarkSent(ctx context.Context, id, messageID string) error
	MarkFailed(ctx context.Context, id, lastError string) error
	SetThread(ctx context.Context, id, threadID string) error
}

// ConversationWriter handles the in-app channel.
type ConversationWriter interface {
	EnsureThread(ctx context.Context, reservationID string) (string, error)
	WriteMessage(ctx context.Context, threadID, subject, body string) (string, error)
}

// ThreadResolver persists a resolved thread back onto the reservation.
type ThreadResolver interface {
	SetThread(ctx context.Context, reservationID, threadID string) error
}

// OutboundSender handles every channel that is not in-app.
type OutboundSender interface {
	Send(ctx context.Context, rec models.ScheduleRecord, msg models.RenderedMessage) (string, error)
}

// AuditSink receives terminal records for operational search. Best effort:
// sink failures never fail the record.
type AuditSink interface {
	IndexAudit(ctx context.Context, docID string, doc interface{}) error
}

// Config gates the loop. Outside production nothing runs unless Enabled is
// set; ForceDispatch bypasses suppression entirely for operator testing.
type Config struct {
	BatchSize     int
	Environment   string
	Enabled       bool
	ForceDispatch bool
}

// Loop claims and processes due records once per tick. Records are mutually
// independent; one failure never halts the rest of the batch.
type Loop struct {
	cfg           Config
	schedules     Claimer
	renderer      template.Renderer
	conversations ConversationWriter
	reservations  ThreadResolver
	outbound      OutboundSender
	audit         AuditSink
	logger        logger.Logger
	now           func() time.Time
}

func NewLoop(cfg Config, schedules Claimer, renderer template.Renderer, conversations ConversationWriter,
	reservations ThreadResolver, outbound OutboundSender, audit AuditSink, log logger.Logger) *Loop {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	return &Loop{
		cfg:           cfg,
		schedules:     schedules,
		renderer:      renderer,
		conversations: conversations,
		reservations:  reservations,
		outbound:      outbound,
		audit:         audit,
		logger:        log.WithFields(map[string]interface{}{"component": "dispatch"}),
		now:           time.Now,
	}
}

// SetClock overrides the loop's clock. Tests only.
func (l *Loop) SetClock(now func() time.Time) { l.now = now }

// Tick runs one dispatch pass.
func (l *Loop) Tick(ctx context.Context) (models.DispatchSummary, error) {
	var summary models.DispatchSummary

	if !l.allowed() {
		l.logger.Debug("dispatch suppressed", map[string]interface{}{
			"environment": l.cfg.Environment,
		})
		return summary, nil
	}

	records, err := l.schedules.ClaimDue(ctx, l.cfg.BatchSize, l.now().UTC())
	if err != nil {
		l.logger.Error("claim failed", map[string]interface{}{"error": err.Error()})
		return summary, err
	}

	summary.Claimed = len(records)
	metrics.DispatchClaimed.Set(float64(len(records)))

	for _, rec := range records {
		if err := l.processRecord(ctx, rec); err != nil {
			summary.Failed++
			errMsg := err.Error()
			if markErr := l.schedules.MarkFailed(ctx, rec.ID, errMsg); markErr != nil {
				l.logger.Error("mark failed errored", map[string]interface{}{
					"scheduleId": rec.ID,
					"error":      markErr.Error(),
				})
			}
			metrics.RecordsFailed.WithLabelValues(rec.Channel, "DISPATCH_ERROR").Inc()
			rec.Status = models.StatusFailed
			rec.LastError = &errMsg
			l.writeAudit(ctx, rec)
			continue
		}
		summary.Sent++
		metrics.RecordsDispatched.WithLabelValues(rec.Channel).Inc()
		rec.Status = models.StatusSent
		l.writeAudit(ctx, rec)
	}

	if summary.Claimed > 0 {
		l.logger.Info("dispatch tick complete", map[string]interface{}{
			"claimed": summary.Claimed,
			"sent":    summary.Sent,
			"failed":  summary.Failed,
		})
	}
	return summary, nil
}

// allowed applies the production gating. Force wins over everything, then
// production, then the explicit enable flag.
func (l *Loop) allowed() bool {
	if l.cfg.ForceDispatch {
		return true
	}
	if l.cfg.Environment == "production" {
		return true
	}
	return l.cfg.Enabled
}

func (l *Loop) processRecord(ctx context.Context, rec models.ScheduleRecord) error {
	msg, err := l.renderer.Render(rec.TemplateID, rec.Payload)
	if err != nil {
		return err
	}

	var messageID string
	if rec.Channel == models.ChannelInApp {
		messageID, err = l.sendInApp(ctx, rec, msg)
	} else {
		messageID, err = l.outbound.Send(ctx, rec, msg)
	}
	if err != nil {
		return err
	}

	return l.schedules.MarkSent(ctx, rec.ID, messageID)
}

func (l *Loop) sendInApp(ctx context.Context, rec models.ScheduleRecord, msg models.RenderedMessage) (string, error) {
	threadID := ""
	if rec.ThreadID != nil {
		threadID = *rec.ThreadID
	}

	if threadID == "" {
		resolved, err := l.conversations.EnsureThread(ctx, rec.ReservationID)
		if err != nil {
			return "", err
		}
		threadID = resolved

		// First successful in-app dispatch resolves the null thread on both
		// the reservation and the record.
		if err := l.reservations.SetThread(ctx, rec.ReservationID, threadID); err != nil {
			l.logger.Warn("reservation thread update failed", map[string]interface{}{
				"reservationId": rec.ReservationID,
				"error":         err.Error(),
			})
		}
		if err := l.schedules.SetThread(ctx, rec.ID, threadID); err != nil {
			l.logger.Warn("schedule thread update failed", map[string]interface{}{
				"scheduleId": rec.ID,
				"error":      err.Error(),
			})
		}
	}

	return l.conversations.WriteMessage(ctx, threadID, msg.Subject, msg.Body)
}

func (l *Loop) writeAudit(ctx context.Context, rec models.ScheduleRecord) {
	if l.audit == nil {
		return
	}
	doc := map[string]interface{}{
		"scheduleId":    rec.ID,
		"ruleCode":      rec.RuleCode,
		"reservationId": rec.ReservationID,
		"channel":       rec.Channel,
		"status":        string(rec.Status),
		"runAt":         rec.RunAt.Format(time.RFC3339),
		"dispatchedAt":  l.now().UTC().Format(time.RFC3339),
	}
	if rec.LastError != nil {
		doc["lastError"] = *rec.LastError
	}
	if err := l.audit.IndexAudit(ctx, rec.ID, doc); err != nil {
		l.logger.Warn("audit index failed", map[string]interface{}{
			"scheduleId": rec.ID,
			"error":      err.Error(),
		})
	}
}
