// internal/jobs/credential_refresh_test.go
package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guestflow-engine/internal/common/logger"
)

type fakeRefresher struct {
	failures int // refreshes that fail before one succeeds
	calls    int
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("credential service unavailable")
	}
	return nil
}

func newRefreshJob(client CredentialRefresher) (*CredentialRefreshJob, *[]time.Duration) {
	j := NewCredentialRefreshJob(client, logger.NewNoOpLogger())
	var slept []time.Duration
	j.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return j, &slept
}

func TestCredentialRefresh_SucceedsFirstTry(t *testing.T) {
	client := &fakeRefresher{}
	j, slept := newRefreshJob(client)

	err := j.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
	assert.Empty(t, *slept)
}

func TestCredentialRefresh_RetriesWithBackoff(t *testing.T) {
	client := &fakeRefresher{failures: 2}
	j, slept := newRefreshJob(client)

	err := j.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, *slept)
}

func TestCredentialRefresh_ExhaustionIsNonFatal(t *testing.T) {
	client := &fakeRefresher{failures: 10}
	j, _ := newRefreshJob(client)

	err := j.Run(context.Background())

	// Exhaustion is logged, never propagated; the engine keeps running on
	// the cached token.
	require.NoError(t, err)
	assert.Equal(t, 3, client.calls)
}

func TestCredentialRefresh_ContextCancelStopsRetrying(t *testing.T) {
	client := &fakeRefresher{failures: 10}
	j := NewCredentialRefreshJob(client, logger.NewNoOpLogger())
	j.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	err := j.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
}

