// Package cancel reacts to reservation changes: when the stay dates or
// times move, pending schedules are invalidated and regenerated against
// the updated reservation.
package cancel

import (
	"context"

	"guestflow-engine/internal/common/logger"
	"guestflow-engine/internal/models"
)

// ScheduleCanceller invalidates undelivered records for a reservation.
type ScheduleCanceller interface {
	CancelPendingByReservation(ctx context.Context, reservationID string) (int, error)
}

// Generator rebuilds the schedule set after a relevant change.
type Generator interface {
	GenerateForReservation(ctx context.Context, res models.Reservation, rules []models.Rule, realtime bool) ([]models.GenerationResult, error)
}

// Coordinator decides whether a reservation update affects message timing
// and, when it does, cancels and regenerates in one pass. Sent records are
// never touched; their dedup keys continue to block re-creation at the
// old times.
type Coordinator struct {
	schedules ScheduleCanceller
	generator Generator
	logger    logger.Logger
}

func NewCoordinator(schedules ScheduleCanceller, generator Generator, log logger.Logger) *Coordinator {
	return &Coordinator{
		schedules: schedules,
		generator: generator,
		logger:    log.WithFields(map[string]interface{}{"component": "cancel"}),
	}
}

// HandleUpdate compares the previous and updated reservation and acts only
// when a timing-relevant field changed. Guest-detail edits are a no-op.
func (c *Coordinator) HandleUpdate(ctx context.Context, previous, updated models.Reservation) (models.CancelOutcome, error) {
	if !relevantChange(previous, updated) {
		return models.CancelOutcome{Reason: "no timing-relevant change"}, nil
	}

	cancelled, err := c.schedules.CancelPendingByReservation(ctx, updated.ID)
	if err != nil {
		return models.CancelOutcome{}, err
	}

	c.logger.Info("pending schedules cancelled", map[string]interface{}{
		"reservationId": updated.ID,
		"cancelled":     cancelled,
	})

	results, err := c.generator.GenerateForReservation(ctx, updated, nil, true)
	if err != nil {
		return models.CancelOutcome{Cancelled: cancelled}, err
	}

	return models.CancelOutcome{Cancelled: cancelled, Results: results}, nil
}

// HandleCancellation invalidates everything undelivered for a reservation
// that is no longer happening.
func (c *Coordinator) HandleCancellation(ctx context.Context, reservationID string) (models.CancelOutcome, error) {
	cancelled, err := c.schedules.CancelPendingByReservation(ctx, reservationID)
	if err != nil {
		return models.CancelOutcome{}, err
	}
	c.logger.Info("reservation cancelled, schedules invalidated", map[string]interface{}{
		"reservationId": reservationID,
		"cancelled":     cancelled,
	})
	return models.CancelOutcome{Cancelled: cancelled, Reason: "reservation cancelled"}, nil
}

func relevantChange(previous, updated models.Reservation) bool {
	return !previous.CheckInDate.Equal(updated.CheckInDate) ||
		!previous.CheckOutDate.Equal(updated.CheckOutDate) ||
		previous.CheckInTime != updated.CheckInTime ||
		previous.CheckOutTime != updated.CheckOutTime
}
