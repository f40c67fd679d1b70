// Package generate fans a reservation out across the enabled automation
// rules and materializes one schedule record per eligible rule.
package generate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"guestflow-engine/internal/common/errors"
	"guestflow-engine/internal/common/logger"
	"guestflow-engine/internal/common/metrics"
	"guestflow-engine/internal/engine/eligibility"
	"guestflow-engine/internal/engine/ruletime"
	"guestflow-engine/internal/models"
)

// SchedulePersister creates schedule records. Created is false when the
// idempotency key already exists, which is not an error.
type SchedulePersister interface {
	CreateIdempotent(ctx context.Context, rec models.ScheduleRecord) (id string, created bool, err error)
}

// RuleSource supplies the enabled rule set when the caller passes none.
type RuleSource interface {
	EnabledRules(ctx context.Context) ([]models.Rule, error)
}

// Orchestrator is the generation pipeline: compile, check eligibility,
// snapshot the payload and request creation. Rule failures are isolated.
type Orchestrator struct {
	rules     RuleSource
	schedules SchedulePersister
	logger    logger.Logger
	creator   string
	now       func() time.Time
}

func NewOrchestrator(rules RuleSource, schedules SchedulePersister, log logger.Logger, creator string) *Orchestrator {
	return &Orchestrator{
		rules:     rules,
		schedules: schedules,
		logger:    log.WithFields(map[string]interface{}{"component": "generate"}),
		creator:   creator,
		now:       time.Now,
	}
}

// SetClock overrides the orchestrator's clock. Tests only.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// GenerateForReservation evaluates every enabled rule against res and
// returns one result per rule. A nil rules slice means "all enabled rules".
// One rule erroring never aborts the others.
func (o *Orchestrator) GenerateForReservation(ctx context.Context, res models.Reservation, rules []models.Rule, realtime bool) ([]models.GenerationResult, error) {
	if rules == nil {
		fetched, err := o.rules.EnabledRules(ctx)
		if err != nil {
			return nil, errors.NewStoreUnavailableError(err)
		}
		rules = fetched
	}

	now := o.now().UTC()
	results := make([]models.GenerationResult, 0, len(rules))

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		results = append(results, o.generateOne(ctx, rule, res, now, realtime))
	}

	return results, nil
}

// failureClass buckets a generation failure for metrics. Rule
// misconfiguration is permanent until an operator edits the rule; transient
// store errors will succeed on a later reconciliation pass.
func failureClass(err error) string {
	switch {
	case errors.IsValidation(err):
		return "validation"
	case errors.IsRetryable(err):
		return "transient"
	}
	return "internal"
}

func (o *Orchestrator) generateOne(ctx context.Context, rule models.Rule, res models.Reservation, now time.Time, realtime bool) models.GenerationResult {
	if rule.TemplateID == "" || rule.Channel == "" {
		err := errors.NewRuleValidationError(rule.Code, "template and channel are required")
		o.logger.Warn("rule misconfigured", map[string]interface{}{
			"ruleCode": rule.Code,
			"error":    err.Details,
		})
		metrics.SchedulesFailed.WithLabelValues(rule.Code, failureClass(err)).Inc()
		return models.GenerationResult{RuleCode: rule.Code, Status: models.GenFailed, Error: err.Error()}
	}

	runAt, err := ruletime.Compile(rule, res)
	if err != nil {
		o.logger.Warn("rule time compilation failed", map[string]interface{}{
			"ruleCode":      rule.Code,
			"reservationId": res.ID,
			"error":         err.Error(),
		})
		metrics.SchedulesFailed.WithLabelValues(rule.Code, failureClass(err)).Inc()
		return models.GenerationResult{RuleCode: rule.Code, Status: models.GenFailed, Error: err.Error()}
	}

	if !eligibility.ShouldCreate(rule, runAt, res, now, realtime) {
		metrics.SchedulesSkipped.WithLabelValues(rule.Code, "not_eligible").Inc()
		return models.GenerationResult{RuleCode: rule.Code, Status: models.GenSkipped}
	}

	rec := models.ScheduleRecord{
		ID:            uuid.New().String(),
		RuleID:        rule.ID,
		RuleCode:      rule.Code,
		ReservationID: res.ID,
		ThreadID:      res.ThreadID,
		Channel:       rule.Channel,
		TemplateID:    rule.TemplateID,
		RunAt:         runAt,
		DedupKey:      DedupKey(rule.ID, res.ID, runAt),
		Status:        models.StatusPending,
		Payload:       BuildPayload(res),
		CreatedBy:     o.creator,
	}

	id, created, err := o.schedules.CreateIdempotent(ctx, rec)
	if err != nil {
		o.logger.Error("schedule creation failed", map[string]interface{}{
			"ruleCode":      rule.Code,
			"reservationId": res.ID,
			"error":         err.Error(),
		})
		metrics.SchedulesFailed.WithLabelValues(rule.Code, failureClass(err)).Inc()
		return models.GenerationResult{RuleCode: rule.Code, Status: models.GenFailed, Error: err.Error()}
	}

	if !created {
		metrics.SchedulesSkipped.WithLabelValues(rule.Code, "exists").Inc()
		return models.GenerationResult{RuleCode: rule.Code, Status: models.GenExists}
	}

	metrics.SchedulesGenerated.WithLabelValues(rule.Code).Inc()
	o.logger.Info("schedule created", map[string]interface{}{
		"ruleCode":      rule.Code,
		"reservationId": res.ID,
		"runAt":         runAt.Format(time.RFC3339),
	})
	return models.GenerationResult{RuleCode: rule.Code, Status: models.GenCreated, ScheduleID: id}
}
