// Package jobs adapts the engine components to the scheduler's Job
// interface.
package jobs

import (
	"context"

	"guestflow-engine/internal/models"
)

// DispatchTicker is the dispatch loop surface the job wraps.
type DispatchTicker interface {
	Tick(ctx context.Context) (models.DispatchSummary, error)
}

// DispatchJob drives one dispatch cycle per scheduler tick.
type DispatchJob struct {
	loop DispatchTicker
}

func NewDispatchJob(loop DispatchTicker) *DispatchJob {
	return &DispatchJob{loop: loop}
}

func (j *DispatchJob) Name() string { return "dispatch" }

func (j *DispatchJob) Run(ctx context.Context) error {
	_, err := j.loop.Tick(ctx)
	return err
}

// Reconciler is the reconciliation scanner surface the job wraps.
type Reconciler interface {
	Run(ctx context.Context) (models.ScanSummary, error)
}

// ReconcileJob drives one reconciliation pass per scheduler tick.
type ReconcileJob struct {
	scanner Reconciler
}

func NewReconcileJob(scanner Reconciler) *ReconcileJob {
	return &ReconcileJob{scanner: scanner}
}

func (j *ReconcileJob) Name() string { return "reconcile" }

func (j *ReconcileJob) Run(ctx context.Context) error {
	_, err := j.scanner.Run(ctx)
	return err
}
