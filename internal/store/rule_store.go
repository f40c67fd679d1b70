// internal/store/rule_store.go
package store

import (
	"context"
	"database/sql"

	"guestflow-engine/internal/common/errors"
	"guestflow-engine/internal/common/logger"
	"guestflow-engine/internal/models"
)

// RuleStore reads administrator-configured automation rules.
type RuleStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewRuleStore(db *sql.DB, log logger.Logger) *RuleStore {
	return &RuleStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "rule-store"}),
	}
}

// EnabledRules returns every enabled automation rule.
func (s *RuleStore) EnabledRules(ctx context.Context) ([]models.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, code, name, anchor, delay_minutes, offset_days, offset_hours,
       at_time, backfill, timezone, enabled, template_id, channel
FROM automation_rules
WHERE enabled = true
ORDER BY code`)
	if err != nil {
		return nil, errors.NewStoreUnavailableError(err)
	}
	defer rows.Close()

	var out []models.Rule
	for rows.Next() {
		var rule models.Rule
		var name, atTime, timezone sql.NullString
		var anchor, backfill string

		if err := rows.Scan(
			&rule.ID, &rule.Code, &name, &anchor, &rule.DelayMinutes,
			&rule.OffsetDays, &rule.OffsetHours, &atTime, &backfill,
			&timezone, &rule.Enabled, &rule.TemplateID, &rule.Channel,
		); err != nil {
			return nil, errors.NewStoreUnavailableError(err)
		}

		rule.Name = name.String
		rule.Anchor = models.AnchorKind(anchor)
		rule.AtTime = atTime.String
		rule.Backfill = models.BackfillPolicy(backfill)
		rule.Timezone = timezone.String

		out = append(out, rule)
	}
	return out, rows.Err()
}
