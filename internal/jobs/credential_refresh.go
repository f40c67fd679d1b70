package jobs

import (
	"context"
	"time"

	"guestflow-engine/internal/common/logger"
)

// CredentialRefresher is the token client surface the job wraps.
type CredentialRefresher interface {
	Refresh(ctx context.Context) error
}

const (
	refreshAttempts    = 3
	refreshBaseBackoff = 5 * time.Second
)

// CredentialRefreshJob keeps the outbound channel token warm. A failed
// refresh never takes the engine down; the cached token stays usable
// until its own expiry and the failure is surfaced for operators.
type CredentialRefreshJob struct {
	client CredentialRefresher
	logger logger.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewCredentialRefreshJob(client CredentialRefresher, log logger.Logger) *CredentialRefreshJob {
	return &CredentialRefreshJob{
		client: client,
		logger: log.WithFields(map[string]interface{}{"component": "credential-refresh"}),
		sleep:  sleepCtx,
	}
}

func (j *CredentialRefreshJob) Name() string { return "credential-refresh" }

// Run retries the refresh with exponential backoff. The returned error is
// always nil: exhaustion is logged as needing operator attention, not
// propagated, so the scheduler keeps the job alive.
func (j *CredentialRefreshJob) Run(ctx context.Context) error {
	backoff := refreshBaseBackoff

	var lastErr error
	for attempt := 1; attempt <= refreshAttempts; attempt++ {
		if err := j.client.Refresh(ctx); err != nil {
			lastErr = err
			j.logger.Warn("token refresh attempt failed", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
			if attempt < refreshAttempts {
				if serr := j.sleep(ctx, backoff); serr != nil {
					return nil
				}
				backoff *= 2
			}
			continue
		}
		j.logger.Info("channel token refreshed", map[string]interface{}{"attempt": attempt})
		return nil
	}

	j.logger.Error("token refresh exhausted all attempts, operator attention required", map[string]interface{}{
		"attempts": refreshAttempts,
		"error":    lastErr.Error(),
	})
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
