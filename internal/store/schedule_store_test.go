// internal/store/schedule_store_test.go
package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guestflow-engine/internal/common/logger"
	"guestflow-engine/internal/models"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	return db, mock
}

func testRecord() models.ScheduleRecord {
	return models.ScheduleRecord{
		ID:            "sched-1",
		RuleID:        "rule-1",
		RuleCode:      "pre-arrival",
		ReservationID: "res-1",
		Channel:       models.ChannelEmail,
		TemplateID:    "pre-arrival-info",
		RunAt:         time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
		DedupKey:      "rule-1:res-1:2025-03-03T10:00:00Z",
		Status:        models.StatusPending,
		Payload:       map[string]interface{}{"guestName": "Ada"},
		CreatedBy:     "automation-engine",
	}
}

func TestCreateIdempotent_Inserts(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO message_schedules").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sched-1"))

	store := NewScheduleStore(db, logger.NewNoOpLogger())
	id, created, err := store.CreateIdempotent(context.Background(), testRecord())

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "sched-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIdempotent_UniqueViolationIsNotAnError(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO message_schedules").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "message_schedules_dedup_key_key"})

	store := NewScheduleStore(db, logger.NewNoOpLogger())
	id, created, err := store.CreateIdempotent(context.Background(), testRecord())

	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, id)
}

func TestCreateIdempotent_OtherErrorPropagates(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO message_schedules").
		WillReturnError(&pq.Error{Code: "53300"}) // too_many_connections

	store := NewScheduleStore(db, logger.NewNoOpLogger())
	_, _, err := store.CreateIdempotent(context.Background(), testRecord())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_UNAVAILABLE")
}

func TestClaimDue_ReturnsClaimedRecords(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	now := time.Date(2025, 3, 3, 10, 5, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "rule_id", "rule_code", "reservation_id", "thread_id", "channel",
		"template_id", "run_at", "dedup_key", "status", "payload", "last_error",
		"created_by", "created_at", "updated_at",
	}).AddRow(
		"sched-1", "rule-1", "pre-arrival", "res-1", nil, "email",
		"pre-arrival-info", now.Add(-5*time.Minute), "rule-1:res-1:2025-03-03T10:00:00Z",
		"pending", []byte(`{"guestName":"Ada"}`), nil,
		"automation-engine", now.Add(-time.Hour), now.Add(-time.Hour),
	)

	mock.ExpectQuery("UPDATE message_schedules").
		WithArgs(now, 50, now.Add(-defaultClaimLease)).
		WillReturnRows(rows)

	store := NewScheduleStore(db, logger.NewNoOpLogger())
	records, err := store.ClaimDue(context.Background(), 50, now)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "sched-1", records[0].ID)
	assert.Equal(t, models.StatusPending, records[0].Status)
	assert.Equal(t, "Ada", records[0].Payload["guestName"])
	assert.Nil(t, records[0].ThreadID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimDue_ReclaimsExpiredClaims(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	now := time.Date(2025, 3, 3, 10, 5, 0, 0, time.UTC)
	lease := 10 * time.Minute

	// The predicate must admit records whose previous claim outlived the
	// lease, so a crash between claim and terminal transition cannot strand
	// them in pending.
	mock.ExpectQuery(`claimed_at IS NULL OR claimed_at < \$3`).
		WithArgs(now, 50, now.Add(-lease)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "rule_id", "rule_code", "reservation_id", "thread_id", "channel",
			"template_id", "run_at", "dedup_key", "status", "payload", "last_error",
			"created_by", "created_at", "updated_at",
		}).AddRow(
			"sched-stale", "rule-1", "pre-arrival", "res-1", nil, "email",
			"pre-arrival-info", now.Add(-time.Hour), "rule-1:res-1:2025-03-03T09:05:00Z",
			"pending", []byte(`{}`), nil,
			"automation-engine", now.Add(-2*time.Hour), now.Add(-time.Hour),
		))

	store := NewScheduleStore(db, logger.NewNoOpLogger())
	store.SetClaimLease(lease)
	records, err := store.ClaimDue(context.Background(), 50, now)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "sched-stale", records[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimDue_EmptyBatch(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("UPDATE message_schedules").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "rule_id", "rule_code", "reservation_id", "thread_id", "channel",
			"template_id", "run_at", "dedup_key", "status", "payload", "last_error",
			"created_by", "created_at", "updated_at",
		}))

	store := NewScheduleStore(db, logger.NewNoOpLogger())
	records, err := store.ClaimDue(context.Background(), 50, time.Now())

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMarkSent(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec("UPDATE message_schedules").
		WithArgs("sched-1", "msg-42").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewScheduleStore(db, logger.NewNoOpLogger())
	err := store.MarkSent(context.Background(), "sched-1", "msg-42")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailed(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec("UPDATE message_schedules").
		WithArgs("sched-1", "DELIVERY_FAILED: smtp timeout").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewScheduleStore(db, logger.NewNoOpLogger())
	err := store.MarkFailed(context.Background(), "sched-1", "DELIVERY_FAILED: smtp timeout")

	require.NoError(t, err)
}

func TestCancelPendingByReservation_ReturnsCount(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec("UPDATE message_schedules").
		WithArgs("res-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	store := NewScheduleStore(db, logger.NewNoOpLogger())
	n, err := store.CancelPendingByReservation(context.Background(), "res-1")

	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestExistingRuleCodes(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT DISTINCT rule_code FROM message_schedules").
		WithArgs("res-1").
		WillReturnRows(sqlmock.NewRows([]string{"rule_code"}).
			AddRow("booking-confirmation").
			AddRow("pre-arrival"))

	store := NewScheduleStore(db, logger.NewNoOpLogger())
	codes, err := store.ExistingRuleCodes(context.Background(), "res-1")

	require.NoError(t, err)
	assert.True(t, codes["booking-confirmation"])
	assert.True(t, codes["pre-arrival"])
	assert.False(t, codes["checkout-reminder"])
}

func TestSetThread(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec("UPDATE message_schedules SET thread_id").
		WithArgs("sched-1", "thread-7").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewScheduleStore(db, logger.NewNoOpLogger())
	err := store.SetThread(context.Background(), "sched-1", "thread-7")

	require.NoError(t, err)
}
