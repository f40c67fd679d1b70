// internal/engine/generate/orchestrator_test.go
package generate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "guestflow-engine/internal/common/errors"
	"guestflow-engine/internal/common/logger"
	"guestflow-engine/internal/models"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeRuleSource struct {
	rules []models.Rule
	err   error
}

func (f *fakeRuleSource) EnabledRules(ctx context.Context) ([]models.Rule, error) {
	return f.rules, f.err
}

type fakePersister struct {
	created  []models.ScheduleRecord
	existing map[string]bool // dedup keys that collide
	failOn   map[string]error
}

func (f *fakePersister) CreateIdempotent(ctx context.Context, rec models.ScheduleRecord) (string, bool, error) {
	if err, ok := f.failOn[rec.RuleCode]; ok {
		return "", false, err
	}
	if f.existing[rec.DedupKey] {
		return "", false, nil
	}
	f.created = append(f.created, rec)
	return rec.ID, true, nil
}

func futureRule(code string) models.Rule {
	return models.Rule{
		ID:         "rule-" + code,
		Code:       code,
		Anchor:     models.AnchorHoursBeforeCheckin,
		OffsetHours: 24,
		Backfill:   models.BackfillNone,
		Enabled:    true,
		TemplateID: "pre-arrival-info",
		Channel:    models.ChannelEmail,
	}
}

func futureReservation() models.Reservation {
	return models.Reservation{
		ID:          "res-1",
		GuestName:   "Ada",
		CheckInDate: testNow.AddDate(0, 0, 3),
		CheckInTime: "15:00",
		CreatedAt:   testNow.Add(-time.Minute),
	}
}

func newTestOrchestrator(rules *fakeRuleSource, persister *fakePersister) *Orchestrator {
	o := NewOrchestrator(rules, persister, logger.NewNoOpLogger(), "automation-engine")
	o.SetClock(func() time.Time { return testNow })
	return o
}

func TestGenerate_CreatesPendingRecords(t *testing.T) {
	persister := &fakePersister{}
	o := newTestOrchestrator(&fakeRuleSource{rules: []models.Rule{futureRule("pre-arrival")}}, persister)

	results, err := o.GenerateForReservation(context.Background(), futureReservation(), nil, true)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.GenCreated, results[0].Status)
	assert.NotEmpty(t, results[0].ScheduleID)

	require.Len(t, persister.created, 1)
	rec := persister.created[0]
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.Equal(t, "automation-engine", rec.CreatedBy)
	assert.Equal(t, "pre-arrival-info", rec.TemplateID)
	assert.Equal(t, DedupKey(rec.RuleID, "res-1", rec.RunAt), rec.DedupKey)
	assert.Equal(t, "Ada", rec.Payload["guestName"])
}

func TestGenerate_DedupCollisionIsExists(t *testing.T) {
	rule := futureRule("pre-arrival")
	res := futureReservation()

	persister := &fakePersister{}
	o := newTestOrchestrator(&fakeRuleSource{rules: []models.Rule{rule}}, persister)

	first, err := o.GenerateForReservation(context.Background(), res, nil, true)
	require.NoError(t, err)
	require.Equal(t, models.GenCreated, first[0].Status)

	// Same rule and reservation land on the same dedup key.
	persister.existing = map[string]bool{persister.created[0].DedupKey: true}

	second, err := o.GenerateForReservation(context.Background(), res, nil, true)
	require.NoError(t, err)
	assert.Equal(t, models.GenExists, second[0].Status)
	assert.Len(t, persister.created, 1)
}

func TestGenerate_RuleFailureIsolated(t *testing.T) {
	bad := futureRule("bad-tz")
	bad.Timezone = "Nope/Nope"
	good := futureRule("pre-arrival")

	persister := &fakePersister{}
	o := newTestOrchestrator(&fakeRuleSource{rules: []models.Rule{bad, good}}, persister)

	results, err := o.GenerateForReservation(context.Background(), futureReservation(), nil, true)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, models.GenFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "INVALID_TIMEZONE")
	assert.Equal(t, models.GenCreated, results[1].Status)
}

func TestGenerate_StoreErrorIsolated(t *testing.T) {
	a := futureRule("a")
	b := futureRule("b")

	persister := &fakePersister{failOn: map[string]error{"a": errors.New("connection reset")}}
	o := newTestOrchestrator(&fakeRuleSource{rules: []models.Rule{a, b}}, persister)

	results, err := o.GenerateForReservation(context.Background(), futureReservation(), nil, true)

	require.NoError(t, err)
	assert.Equal(t, models.GenFailed, results[0].Status)
	assert.Equal(t, models.GenCreated, results[1].Status)
}

func TestGenerate_MisconfiguredRuleFails(t *testing.T) {
	rule := futureRule("no-template")
	rule.TemplateID = ""

	o := newTestOrchestrator(&fakeRuleSource{rules: []models.Rule{rule}}, &fakePersister{})

	results, err := o.GenerateForReservation(context.Background(), futureReservation(), nil, true)

	require.NoError(t, err)
	assert.Equal(t, models.GenFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "RULE_VALIDATION_FAILED")
}

func TestGenerate_PastTimeSkipped(t *testing.T) {
	rule := futureRule("pre-arrival")
	res := futureReservation()
	res.CheckInDate = testNow.AddDate(0, 0, -5)

	o := newTestOrchestrator(&fakeRuleSource{rules: []models.Rule{rule}}, &fakePersister{})

	results, err := o.GenerateForReservation(context.Background(), res, nil, true)

	require.NoError(t, err)
	assert.Equal(t, models.GenSkipped, results[0].Status)
}

func TestGenerate_DisabledRulesIgnored(t *testing.T) {
	rule := futureRule("pre-arrival")
	rule.Enabled = false

	o := newTestOrchestrator(&fakeRuleSource{rules: []models.Rule{rule}}, &fakePersister{})

	results, err := o.GenerateForReservation(context.Background(), futureReservation(), nil, true)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGenerate_ExplicitRuleSubsetSkipsFetch(t *testing.T) {
	source := &fakeRuleSource{err: errors.New("must not be called")}
	persister := &fakePersister{}
	o := newTestOrchestrator(source, persister)

	results, err := o.GenerateForReservation(context.Background(), futureReservation(),
		[]models.Rule{futureRule("pre-arrival")}, false)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.GenCreated, results[0].Status)
}

func TestGenerate_RuleFetchErrorPropagates(t *testing.T) {
	o := newTestOrchestrator(&fakeRuleSource{err: errors.New("db down")}, &fakePersister{})

	_, err := o.GenerateForReservation(context.Background(), futureReservation(), nil, true)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_UNAVAILABLE")
}

func TestDedupKey_Format(t *testing.T) {
	runAt := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	key := DedupKey("rule-1", "res-9", runAt)

	assert.Equal(t, "rule-1:res-9:2025-03-03T10:00:00Z", key)
}

func TestDedupKey_NormalizesToUTC(t *testing.T) {
	madrid, _ := time.LoadLocation("Europe/Madrid")
	local := time.Date(2025, 3, 3, 11, 0, 0, 0, madrid) // 10:00 UTC

	assert.Equal(t,
		DedupKey("rule-1", "res-9", local.UTC()),
		DedupKey("rule-1", "res-9", local))
}

func TestFailureClass(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"misconfigured rule", commonerrors.NewRuleValidationError("pre-arrival", "missing channel"), "validation"},
		{"unsupported anchor", commonerrors.NewUnknownRuleTypeError("lunar_cycle"), "validation"},
		{"bad timezone", commonerrors.NewInvalidTimezoneError("Mars/Olympus", errors.New("unknown")), "validation"},
		{"store outage", commonerrors.NewStoreUnavailableError(errors.New("connection refused")), "transient"},
		{"plain error", errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, failureClass(tt.err))
		})
	}
}
