// Package scheduler runs named recurring jobs on fixed intervals. Each job
// gets its own goroutine with an immediate first run so the engine does
// useful work at startup instead of waiting out a full interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"guestflow-engine/internal/common/logger"
	"guestflow-engine/internal/common/observability"
)

// Job is a unit of recurring work. Run should honor ctx cancellation and
// return an error only for failures worth logging; partial progress is the
// job's own concern.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobStatus is a point-in-time view of one registered job. Scheduled is the
// next tick instant, derived from the last run and the interval; it stays
// zero until the first run starts.
type JobStatus struct {
	Running   bool      `json:"running"`
	Scheduled time.Time `json:"scheduled"`
	LastRun   time.Time `json:"lastRun"`
	LastErr   string    `json:"lastError,omitempty"`
}

type entry struct {
	job      Job
	interval time.Duration

	mu      sync.Mutex
	running bool
	lastRun time.Time
	lastErr error
}

// Scheduler owns a set of registered jobs. Register before Start; Stop
// waits for in-flight runs to finish.
type Scheduler struct {
	entries []*entry
	logger  logger.Logger
	obs     *observability.Observability

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(log logger.Logger, obs *observability.Observability) *Scheduler {
	return &Scheduler{
		logger: log.WithFields(map[string]interface{}{"component": "scheduler"}),
		obs:    obs,
	}
}

// Register adds a job. Not safe to call after Start.
func (s *Scheduler) Register(job Job, interval time.Duration) {
	s.entries = append(s.entries, &entry{job: job, interval: interval})
}

// Start launches one goroutine per registered job. Each runs immediately,
// then on its interval, until the context is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	for _, e := range s.entries {
		s.wg.Add(1)
		go s.loop(ctx, e)
	}

	s.logger.Info("scheduler started", map[string]interface{}{
		"jobs": len(s.entries),
	})
}

// Stop cancels all job loops and blocks until in-flight runs return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped", nil)
}

// Status reports each registered job keyed by name.
func (s *Scheduler) Status() map[string]JobStatus {
	out := make(map[string]JobStatus, len(s.entries))
	for _, e := range s.entries {
		e.mu.Lock()
		status := JobStatus{Running: e.running, LastRun: e.lastRun}
		if !e.lastRun.IsZero() {
			status.Scheduled = e.lastRun.Add(e.interval)
		}
		if e.lastErr != nil {
			status.LastErr = e.lastErr.Error()
		}
		e.mu.Unlock()
		out[e.job.Name()] = status
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	s.runOnce(ctx, e)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, e)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, e *entry) {
	e.mu.Lock()
	if e.running {
		// Previous run still in flight; skip this tick rather than stack up.
		e.mu.Unlock()
		s.logger.Warn("job still running, tick skipped", map[string]interface{}{
			"job": e.job.Name(),
		})
		return
	}
	e.running = true
	e.mu.Unlock()

	start := time.Now()
	err := e.job.Run(ctx)
	elapsed := time.Since(start)

	e.mu.Lock()
	e.running = false
	e.lastRun = start
	e.lastErr = err
	e.mu.Unlock()

	status := "ok"
	if err != nil {
		status = "error"
		s.logger.Error("job run failed", map[string]interface{}{
			"job":      e.job.Name(),
			"error":    err.Error(),
			"duration": elapsed.String(),
		})
	} else {
		s.logger.Debug("job run complete", map[string]interface{}{
			"job":      e.job.Name(),
			"duration": elapsed.String(),
		})
	}

	if s.obs != nil {
		s.obs.RecordTick(ctx, e.job.Name(), status)
		s.obs.RecordTickDuration(ctx, e.job.Name(), elapsed)
	}
}
