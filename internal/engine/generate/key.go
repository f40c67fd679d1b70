package generate

import (
	"fmt"
	"time"
)

// DedupKey is the deterministic idempotency key guaranteeing at most one
// schedule record per (rule, reservation, instant). The store enforces
// uniqueness; callers treat a collision as success.
func DedupKey(ruleID, reservationID string, runAt time.Time) string {
	return fmt.Sprintf("%s:%s:%s", ruleID, reservationID, runAt.UTC().Format(time.RFC3339))
}
