// internal/models/reservation.go
package models

import "time"

// Reservation is owned by the booking subsystem and read-only to the
// automation engine, except for ThreadID which dispatch may resolve from
// null to a conversation thread.
type Reservation struct {
	ID               string     `json:"id"`
	GuestName        string     `json:"guestName"`
	GuestEmail       string     `json:"guestEmail,omitempty"`
	GuestPhone       string     `json:"guestPhone,omitempty"`
	PropertyID       string     `json:"propertyId"`
	PropertyName     string     `json:"propertyName"`
	PropertyTimezone string     `json:"propertyTimezone"`
	RoomNumber       string     `json:"roomNumber,omitempty"`
	WifiName         string     `json:"wifiName,omitempty"`
	WifiPassword     string     `json:"wifiPassword,omitempty"`
	CheckInDate      time.Time  `json:"checkInDate"`
	CheckOutDate     time.Time  `json:"checkOutDate"`
	CheckInTime      string     `json:"checkInTime,omitempty"`  // "HH:MM" local, empty means property default
	CheckOutTime     string     `json:"checkOutTime,omitempty"` // "HH:MM" local, empty means property default
	CreatedAt        time.Time  `json:"createdAt"`
	ThreadID         *string    `json:"threadId,omitempty"`
	UpdatedAt        time.Time  `json:"updatedAt,omitempty"`
}
