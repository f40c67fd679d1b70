// internal/store/reservation_store.go
package store

import (
	"context"
	"database/sql"
	"time"

	"guestflow-engine/internal/common/errors"
	"guestflow-engine/internal/common/logger"
	"guestflow-engine/internal/models"
)

// ReservationStore reads reservations owned by the booking subsystem. The
// engine only ever writes the thread reference.
type ReservationStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewReservationStore(db *sql.DB, log logger.Logger) *ReservationStore {
	return &ReservationStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "reservation-store"}),
	}
}

const reservationColumns = `r.id, r.guest_name, r.guest_email, r.guest_phone,
	r.property_id, p.name, p.timezone, r.room_number, p.wifi_name, p.wifi_password,
	r.check_in_date, r.check_out_date, r.check_in_time, r.check_out_time,
	r.created_at, r.thread_id, r.updated_at`

const reservationFrom = `FROM reservations r JOIN properties p ON p.id = r.property_id`

// RecentlyCreated returns reservations created at or after since, the
// candidate set for the on-create safety net.
func (s *ReservationStore) RecentlyCreated(ctx context.Context, since time.Time) ([]models.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+reservationColumns+` `+reservationFrom+`
WHERE r.created_at >= $1
ORDER BY r.created_at`,
		since.UTC())
	if err != nil {
		return nil, errors.NewStoreUnavailableError(err)
	}
	defer rows.Close()

	return scanReservationRows(rows)
}

// InDateWindows returns the union of reservations whose check-in falls in
// [ciFrom, ciTo] or whose check-out falls in [coFrom, coTo]. The two ranges
// are independent so checkout-anchored rules are covered even when the
// check-in is far outside its window.
func (s *ReservationStore) InDateWindows(ctx context.Context, ciFrom, ciTo, coFrom, coTo time.Time) ([]models.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+reservationColumns+` `+reservationFrom+`
WHERE (r.check_in_date BETWEEN $1 AND $2)
   OR (r.check_out_date BETWEEN $3 AND $4)
ORDER BY r.check_in_date`,
		ciFrom, ciTo, coFrom, coTo)
	if err != nil {
		return nil, errors.NewStoreUnavailableError(err)
	}
	defer rows.Close()

	return scanReservationRows(rows)
}

// SetThread resolves a reservation's null thread reference. The only write
// this engine performs on reservations.
func (s *ReservationStore) SetThread(ctx context.Context, reservationID, threadID string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE reservations SET thread_id = $2, updated_at = now()
WHERE id = $1 AND thread_id IS NULL`,
		reservationID, threadID)
	if err != nil {
		return errors.NewStoreUnavailableError(err)
	}
	return nil
}

func scanReservationRows(rows *sql.Rows) ([]models.Reservation, error) {
	var out []models.Reservation
	for rows.Next() {
		var res models.Reservation
		var guestEmail, guestPhone, roomNumber, wifiName, wifiPassword sql.NullString
		var checkInTime, checkOutTime, threadID sql.NullString

		if err := rows.Scan(
			&res.ID, &res.GuestName, &guestEmail, &guestPhone,
			&res.PropertyID, &res.PropertyName, &res.PropertyTimezone, &roomNumber,
			&wifiName, &wifiPassword,
			&res.CheckInDate, &res.CheckOutDate, &checkInTime, &checkOutTime,
			&res.CreatedAt, &threadID, &res.UpdatedAt,
		); err != nil {
			return nil, errors.NewStoreUnavailableError(err)
		}

		res.GuestEmail = guestEmail.String
		res.GuestPhone = guestPhone.String
		res.RoomNumber = roomNumber.String
		res.WifiName = wifiName.String
		res.WifiPassword = wifiPassword.String
		res.CheckInTime = checkInTime.String
		res.CheckOutTime = checkOutTime.String
		if threadID.Valid {
			res.ThreadID = &threadID.String
		}

		out = append(out, res)
	}
	return out, rows.Err()
}
