// internal/store/schedule_store.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"guestflow-engine/internal/common/errors"
	"guestflow-engine/internal/common/logger"
	"guestflow-engine/internal/models"
)

// uniqueViolation is the postgres error code raised when the dedup-key
// constraint rejects an insert.
const uniqueViolation = "23505"

// defaultClaimLease bounds how long a claim keeps a record exclusive. A
// record whose claim outlives the lease without reaching a terminal state
// becomes claimable again, so a process that dies mid-dispatch never
// strands it in pending forever.
const defaultClaimLease = 15 * time.Minute

// ScheduleStore persists schedule records. All atomicity the engine relies
// on (unique dedup insert, claim, bulk cancel) lives here, never in
// application-level locking.
type ScheduleStore struct {
	db         *sql.DB
	logger     logger.Logger
	claimLease time.Duration
}

func NewScheduleStore(db *sql.DB, log logger.Logger) *ScheduleStore {
	return &ScheduleStore{
		db:         db,
		logger:     log.WithFields(map[string]interface{}{"component": "schedule-store"}),
		claimLease: defaultClaimLease,
	}
}

// SetClaimLease overrides the claim lease duration. Must be longer than the
// worst-case dispatch of one batch.
func (s *ScheduleStore) SetClaimLease(d time.Duration) {
	if d > 0 {
		s.claimLease = d
	}
}

const scheduleColumns = `id, rule_id, rule_code, reservation_id, thread_id, channel, template_id,
	run_at, dedup_key, status, payload, last_error, created_by, created_at, updated_at`

// CreateIdempotent inserts rec, returning created=false when the dedup key
// already exists. The unique constraint is the only dedup mechanism.
func (s *ScheduleStore) CreateIdempotent(ctx context.Context, rec models.ScheduleRecord) (string, bool, error) {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return "", false, fmt.Errorf("marshal payload: %w", err)
	}

	var id string
	err = s.db.QueryRowContext(ctx, `
INSERT INTO message_schedules
	(id, rule_id, rule_code, reservation_id, thread_id, channel, template_id,
	 run_at, dedup_key, status, payload, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
RETURNING id`,
		rec.ID, rec.RuleID, rec.RuleCode, rec.ReservationID, rec.ThreadID, rec.Channel,
		rec.TemplateID, rec.RunAt.UTC(), rec.DedupKey, string(models.StatusPending),
		payload, rec.CreatedBy,
	).Scan(&id)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			s.logger.Debug("dedup key collision", map[string]interface{}{
				"dedupKey": rec.DedupKey,
			})
			return "", false, nil
		}
		return "", false, errors.NewStoreUnavailableError(err)
	}

	return id, true, nil
}

// ClaimDue atomically claims up to limit pending records due at now. The
// claim is a lease: SKIP LOCKED guarantees two concurrent claimers never
// receive the same record, and claimed_at hides a record from later ticks
// only until the lease expires. A claimer that dies before the terminal
// transition loses the record to a later tick instead of stranding it.
func (s *ScheduleStore) ClaimDue(ctx context.Context, limit int, now time.Time) ([]models.ScheduleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
UPDATE message_schedules
SET claimed_at = now(), updated_at = now()
WHERE id IN (
	SELECT id FROM message_schedules
	WHERE status = 'pending' AND run_at <= $1
		AND (claimed_at IS NULL OR claimed_at < $3)
	ORDER BY run_at
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
RETURNING `+scheduleColumns,
		now.UTC(), limit, now.Add(-s.claimLease).UTC())
	if err != nil {
		return nil, errors.NewStoreUnavailableError(err)
	}
	defer rows.Close()

	return scanScheduleRows(rows)
}

// MarkSent transitions a claimed record to its sent terminal state.
func (s *ScheduleStore) MarkSent(ctx context.Context, id, messageID string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE message_schedules
SET status = 'sent', message_id = $2, last_error = NULL, updated_at = now()
WHERE id = $1 AND status = 'pending'`,
		id, messageID)
	if err != nil {
		return errors.NewStoreUnavailableError(err)
	}
	return nil
}

// MarkFailed transitions a claimed record to its failed terminal state with
// the error captured on the record.
func (s *ScheduleStore) MarkFailed(ctx context.Context, id, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE message_schedules
SET status = 'failed', last_error = $2, updated_at = now()
WHERE id = $1 AND status = 'pending'`,
		id, lastError)
	if err != nil {
		return errors.NewStoreUnavailableError(err)
	}
	return nil
}

// CancelPendingByReservation bulk-transitions a reservation's pending
// records to cancelled and returns how many were affected.
func (s *ScheduleStore) CancelPendingByReservation(ctx context.Context, reservationID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE message_schedules
SET status = 'cancelled', updated_at = now()
WHERE reservation_id = $1 AND status = 'pending'`,
		reservationID)
	if err != nil {
		return 0, errors.NewStoreUnavailableError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewStoreUnavailableError(err)
	}
	return int(n), nil
}

// ExistingRuleCodes returns the rule codes already materialized for a
// reservation as pending or sent. Cancelled and failed records do not block
// regeneration; a sent record does, permanently.
func (s *ScheduleStore) ExistingRuleCodes(ctx context.Context, reservationID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT rule_code FROM message_schedules
WHERE reservation_id = $1 AND status IN ('pending', 'sent')`,
		reservationID)
	if err != nil {
		return nil, errors.NewStoreUnavailableError(err)
	}
	defer rows.Close()

	codes := make(map[string]bool)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, errors.NewStoreUnavailableError(err)
		}
		codes[code] = true
	}
	return codes, rows.Err()
}

// SetThread records the conversation thread a record's message landed in.
func (s *ScheduleStore) SetThread(ctx context.Context, id, threadID string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE message_schedules SET thread_id = $2, updated_at = now() WHERE id = $1`,
		id, threadID)
	if err != nil {
		return errors.NewStoreUnavailableError(err)
	}
	return nil
}

func scanScheduleRows(rows *sql.Rows) ([]models.ScheduleRecord, error) {
	var out []models.ScheduleRecord
	for rows.Next() {
		var rec models.ScheduleRecord
		var payload []byte
		var threadID, lastError sql.NullString
		var status string

		if err := rows.Scan(
			&rec.ID, &rec.RuleID, &rec.RuleCode, &rec.ReservationID, &threadID,
			&rec.Channel, &rec.TemplateID, &rec.RunAt, &rec.DedupKey, &status,
			&payload, &lastError, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, errors.NewStoreUnavailableError(err)
		}

		rec.Status = models.ScheduleStatus(status)
		rec.RunAt = rec.RunAt.UTC()
		if threadID.Valid {
			rec.ThreadID = &threadID.String
		}
		if lastError.Valid {
			rec.LastError = &lastError.String
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &rec.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload for %s: %w", rec.ID, err)
			}
		}

		out = append(out, rec)
	}
	return out, rows.Err()
}
