package generate

import (
	"time"

	"guestflow-engine/internal/models"
)

// BuildPayload snapshots the reservation values the renderer substitutes
// into a template. The snapshot is stored on the record so dispatch renders
// what was true at generation time.
func BuildPayload(res models.Reservation) map[string]interface{} {
	return map[string]interface{}{
		"guestName":    res.GuestName,
		"guestEmail":   res.GuestEmail,
		"guestPhone":   res.GuestPhone,
		"propertyName": res.PropertyName,
		"roomNumber":   res.RoomNumber,
		"wifiName":     res.WifiName,
		"wifiPassword": res.WifiPassword,
		"checkInDate":  res.CheckInDate.Format("2006-01-02"),
		"checkOutDate": res.CheckOutDate.Format("2006-01-02"),
		"checkInTime":  res.CheckInTime,
		"checkOutTime": res.CheckOutTime,
		"generatedAt":  time.Now().UTC().Format(time.RFC3339),
	}
}
