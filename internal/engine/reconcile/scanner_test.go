// internal/engine/reconcile/scanner_test.go
package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guestflow-engine/internal/common/logger"
	"guestflow-engine/internal/models"
)

var scanNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeReservations struct {
	recent   []models.Reservation
	inWindow []models.Reservation
}

func (f *fakeReservations) RecentlyCreated(ctx context.Context, since time.Time) ([]models.Reservation, error) {
	return f.recent, nil
}

func (f *fakeReservations) InDateWindows(ctx context.Context, ciFrom, ciTo, coFrom, coTo time.Time) ([]models.Reservation, error) {
	return f.inWindow, nil
}

type fakeScheduleState struct {
	codes map[string]map[string]bool // reservation id -> existing rule codes
	err   error
}

func (f *fakeScheduleState) ExistingRuleCodes(ctx context.Context, reservationID string) (map[string]bool, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.codes[reservationID], nil
}

type fakeRules struct {
	rules []models.Rule
}

func (f *fakeRules) EnabledRules(ctx context.Context) ([]models.Rule, error) {
	return f.rules, nil
}

type generationCall struct {
	reservationID string
	ruleCodes     []string
	realtime      bool
}

type fakeGenerator struct {
	calls []generationCall
}

func (f *fakeGenerator) GenerateForReservation(ctx context.Context, res models.Reservation, rules []models.Rule, realtime bool) ([]models.GenerationResult, error) {
	call := generationCall{reservationID: res.ID, realtime: realtime}
	results := make([]models.GenerationResult, 0, len(rules))
	for _, r := range rules {
		call.ruleCodes = append(call.ruleCodes, r.Code)
		results = append(results, models.GenerationResult{RuleCode: r.Code, Status: models.GenCreated})
	}
	f.calls = append(f.calls, call)
	return results, nil
}

func testRules() []models.Rule {
	return []models.Rule{
		{ID: "r1", Code: "booking-confirmation", Anchor: models.AnchorOnCreateDelay, Enabled: true},
		{ID: "r2", Code: "pre-arrival", Anchor: models.AnchorHoursBeforeCheckin, Enabled: true},
		{ID: "r3", Code: "checkout-reminder", Anchor: models.AnchorHoursBeforeCheckout, Enabled: true},
		{ID: "r4", Code: "post-stay-review", Anchor: models.AnchorDaysAfterDeparture, Enabled: true},
	}
}

func testConfig() Config {
	return Config{
		RecentWindow:      30 * time.Minute,
		CheckInLookback:   24 * time.Hour,
		CheckInLookahead:  7 * 24 * time.Hour,
		CheckOutLookback:  24 * time.Hour,
		CheckOutLookahead: 7 * 24 * time.Hour,
	}
}

func setupScanner(t *testing.T, reservations *fakeReservations, schedules *fakeScheduleState, gen *fakeGenerator) (*Scanner, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	s := NewScanner(testConfig(), reservations, schedules, &fakeRules{rules: testRules()}, gen, cache, logger.NewNoOpLogger())
	s.SetClock(func() time.Time { return scanNow })
	return s, mr
}

func TestRun_SafetyNetGeneratesForMissedReservation(t *testing.T) {
	res := models.Reservation{ID: "res-new", CreatedAt: scanNow.Add(-10 * time.Minute)}
	gen := &fakeGenerator{}
	scanner, _ := setupScanner(t,
		&fakeReservations{recent: []models.Reservation{res}},
		&fakeScheduleState{codes: map[string]map[string]bool{}},
		gen)

	summary, err := scanner.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, gen.calls, 1)
	assert.Equal(t, "res-new", gen.calls[0].reservationID)
	assert.True(t, gen.calls[0].realtime)
	assert.Equal(t, 4, summary.Generated)
}

func TestRun_SafetyNetSkipsAlreadyProcessed(t *testing.T) {
	res := models.Reservation{ID: "res-done", CreatedAt: scanNow.Add(-10 * time.Minute)}
	gen := &fakeGenerator{}
	scanner, _ := setupScanner(t,
		&fakeReservations{recent: []models.Reservation{res}},
		&fakeScheduleState{codes: map[string]map[string]bool{
			"res-done": {"booking-confirmation": true},
		}},
		gen)

	summary, err := scanner.Run(context.Background())

	require.NoError(t, err)
	assert.Empty(t, gen.calls)
	assert.Equal(t, 1, summary.Skipped)
}

func TestRun_SafetyNetCachePreventsRepeatDBChecks(t *testing.T) {
	res := models.Reservation{ID: "res-cached", CreatedAt: scanNow.Add(-10 * time.Minute)}
	gen := &fakeGenerator{}
	scanner, mr := setupScanner(t,
		&fakeReservations{recent: []models.Reservation{res}},
		&fakeScheduleState{codes: map[string]map[string]bool{}},
		gen)

	_, err := scanner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, gen.calls, 1)
	assert.True(t, mr.Exists("automation:oncreate:res-cached"))

	// Second pass hits the cache and never regenerates.
	_, err = scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, gen.calls, 1)
}

func TestRun_WindowBackfillRestrictsToApplicableAnchors(t *testing.T) {
	// Long stay: check-out falls inside the window, check-in is far outside.
	res := models.Reservation{
		ID:           "res-long",
		CheckInDate:  scanNow.AddDate(0, 0, -30),
		CheckOutDate: scanNow.AddDate(0, 0, 2),
	}
	gen := &fakeGenerator{}
	scanner, _ := setupScanner(t,
		&fakeReservations{inWindow: []models.Reservation{res}},
		&fakeScheduleState{codes: map[string]map[string]bool{}},
		gen)

	_, err := scanner.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, gen.calls, 1)
	assert.False(t, gen.calls[0].realtime)
	assert.ElementsMatch(t, []string{"checkout-reminder", "post-stay-review"}, gen.calls[0].ruleCodes)
}

func TestRun_WindowBackfillSkipsExistingCodes(t *testing.T) {
	res := models.Reservation{
		ID:           "res-partial",
		CheckInDate:  scanNow.AddDate(0, 0, 2),
		CheckOutDate: scanNow.AddDate(0, 0, 5),
	}
	gen := &fakeGenerator{}
	scanner, _ := setupScanner(t,
		&fakeReservations{inWindow: []models.Reservation{res}},
		&fakeScheduleState{codes: map[string]map[string]bool{
			"res-partial": {"pre-arrival": true, "checkout-reminder": true},
		}},
		gen)

	_, err := scanner.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, gen.calls, 1)
	assert.ElementsMatch(t, []string{"post-stay-review"}, gen.calls[0].ruleCodes)
}

func TestRun_WindowBackfillNoOpWhenComplete(t *testing.T) {
	res := models.Reservation{
		ID:           "res-complete",
		CheckInDate:  scanNow.AddDate(0, 0, 2),
		CheckOutDate: scanNow.AddDate(0, 0, 5),
	}
	gen := &fakeGenerator{}
	scanner, _ := setupScanner(t,
		&fakeReservations{inWindow: []models.Reservation{res}},
		&fakeScheduleState{codes: map[string]map[string]bool{
			"res-complete": {"pre-arrival": true, "checkout-reminder": true, "post-stay-review": true},
		}},
		gen)

	summary, err := scanner.Run(context.Background())

	require.NoError(t, err)
	assert.Empty(t, gen.calls)
	assert.Equal(t, 1, summary.Skipped)
}

func TestRun_ReservationErrorIsolated(t *testing.T) {
	resA := models.Reservation{ID: "res-a", CreatedAt: scanNow.Add(-5 * time.Minute)}
	gen := &fakeGenerator{}
	scanner, _ := setupScanner(t,
		&fakeReservations{recent: []models.Reservation{resA}},
		&fakeScheduleState{err: errors.New("db hiccup")},
		gen)

	summary, err := scanner.Run(context.Background())

	// The pass itself succeeds; only the failing reservation is skipped.
	require.NoError(t, err)
	assert.Empty(t, gen.calls)
	assert.Equal(t, 1, summary.Processed)
}

func TestRun_NilCacheStillWorks(t *testing.T) {
	res := models.Reservation{ID: "res-nocache", CreatedAt: scanNow.Add(-5 * time.Minute)}
	gen := &fakeGenerator{}
	s := NewScanner(testConfig(),
		&fakeReservations{recent: []models.Reservation{res}},
		&fakeScheduleState{codes: map[string]map[string]bool{}},
		&fakeRules{rules: testRules()}, gen, nil, logger.NewNoOpLogger())
	s.SetClock(func() time.Time { return scanNow })

	_, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Len(t, gen.calls, 1)
}
