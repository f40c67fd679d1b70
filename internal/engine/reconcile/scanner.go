// Package reconcile repairs missed schedules without full-table scans: a
// recent-reservation safety net for the on-create path and a dual-window
// backfill for stay-anchored rules.
package reconcile

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"guestflow-engine/internal/common/logger"
	"guestflow-engine/internal/common/metrics"
	"guestflow-engine/internal/models"
)

// ReservationSource supplies reconciliation candidates.
type ReservationSource interface {
	RecentlyCreated(ctx context.Context, since time.Time) ([]models.Reservation, error)
	InDateWindows(ctx context.Context, ciFrom, ciTo, coFrom, coTo time.Time) ([]models.Reservation, error)
}

// ScheduleState exposes what has already been materialized.
type ScheduleState interface {
	ExistingRuleCodes(ctx context.Context, reservationID string) (map[string]bool, error)
}

// RuleSource supplies the enabled rule set.
type RuleSource interface {
	EnabledRules(ctx context.Context) ([]models.Rule, error)
}

// Generator materializes the missing subset for a candidate.
type Generator interface {
	GenerateForReservation(ctx context.Context, res models.Reservation, rules []models.Rule, realtime bool) ([]models.GenerationResult, error)
}

// Config sets the scan windows. Days bound the two date ranges; the recent
// window bounds the safety-net lookback.
type Config struct {
	RecentWindow time.Duration

	CheckInLookback   time.Duration
	CheckInLookahead  time.Duration
	CheckOutLookback  time.Duration
	CheckOutLookahead time.Duration
}

// Scanner runs both reconciliation duties per tick. The redis cache is a
// pre-filter only; the schedule store stays the source of truth for what
// was generated.
type Scanner struct {
	cfg          Config
	reservations ReservationSource
	schedules    ScheduleState
	rules        RuleSource
	generator    Generator
	cache        *redis.Client
	logger       logger.Logger
	now          func() time.Time
}

const onCreateCachePrefix = "automation:oncreate:"
const onCreateCacheTTL = 2 * time.Hour

func NewScanner(cfg Config, reservations ReservationSource, schedules ScheduleState,
	rules RuleSource, generator Generator, cache *redis.Client, log logger.Logger) *Scanner {
	return &Scanner{
		cfg:          cfg,
		reservations: reservations,
		schedules:    schedules,
		rules:        rules,
		generator:    generator,
		cache:        cache,
		logger:       log.WithFields(map[string]interface{}{"component": "reconcile"}),
		now:          time.Now,
	}
}

// SetClock overrides the scanner's clock. Tests only.
func (s *Scanner) SetClock(now func() time.Time) { s.now = now }

// Run executes one reconciliation pass and returns aggregate counts.
// Reservation-level errors abort only that reservation's iteration.
func (s *Scanner) Run(ctx context.Context) (models.ScanSummary, error) {
	start := s.now()
	defer func() {
		metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	}()

	var summary models.ScanSummary

	rules, err := s.rules.EnabledRules(ctx)
	if err != nil {
		return summary, err
	}

	s.scanRecent(ctx, rules, &summary)
	s.scanWindows(ctx, rules, &summary)

	s.logger.Info("reconciliation complete", map[string]interface{}{
		"processed": summary.Processed,
		"generated": summary.Generated,
		"skipped":   summary.Skipped,
	})
	return summary, nil
}

// scanRecent covers reservations whose realtime generation may have been
// lost, skipping any that already have an on-create record pending or sent.
func (s *Scanner) scanRecent(ctx context.Context, rules []models.Rule, summary *models.ScanSummary) {
	now := s.now().UTC()
	recent, err := s.reservations.RecentlyCreated(ctx, now.Add(-s.cfg.RecentWindow))
	if err != nil {
		s.logger.Error("recent-reservation query failed", map[string]interface{}{"error": err.Error()})
		return
	}

	onCreateCodes := make(map[string]bool)
	for _, rule := range rules {
		if rule.Anchor.OnCreate() {
			onCreateCodes[rule.Code] = true
		}
	}

	for _, res := range recent {
		summary.Processed++

		if s.cacheHit(ctx, res.ID) {
			summary.Skipped++
			continue
		}

		existing, err := s.schedules.ExistingRuleCodes(ctx, res.ID)
		if err != nil {
			s.logger.Error("existing-codes query failed", map[string]interface{}{
				"reservationId": res.ID,
				"error":         err.Error(),
			})
			continue
		}

		processed := false
		for code := range onCreateCodes {
			if existing[code] {
				processed = true
				break
			}
		}
		if processed {
			summary.Skipped++
			s.cacheMark(ctx, res.ID)
			continue
		}

		results, err := s.generator.GenerateForReservation(ctx, res, rules, true)
		if err != nil {
			s.logger.Error("safety-net generation failed", map[string]interface{}{
				"reservationId": res.ID,
				"error":         err.Error(),
			})
			continue
		}
		tally(results, summary)
		s.cacheMark(ctx, res.ID)
	}
}

// scanWindows covers the arrival and departure date ranges independently,
// so checkout-anchored rules reach reservations whose check-in is far
// outside the check-in window.
func (s *Scanner) scanWindows(ctx context.Context, rules []models.Rule, summary *models.ScanSummary) {
	now := s.now().UTC()
	ciFrom := now.Add(-s.cfg.CheckInLookback)
	ciTo := now.Add(s.cfg.CheckInLookahead)
	coFrom := now.Add(-s.cfg.CheckOutLookback)
	coTo := now.Add(s.cfg.CheckOutLookahead)

	candidates, err := s.reservations.InDateWindows(ctx, ciFrom, ciTo, coFrom, coTo)
	if err != nil {
		s.logger.Error("window query failed", map[string]interface{}{"error": err.Error()})
		return
	}

	for _, res := range candidates {
		summary.Processed++

		applicable := applicableRules(rules, res, ciFrom, ciTo, coFrom, coTo)
		if len(applicable) == 0 {
			summary.Skipped++
			continue
		}

		existing, err := s.schedules.ExistingRuleCodes(ctx, res.ID)
		if err != nil {
			s.logger.Error("existing-codes query failed", map[string]interface{}{
				"reservationId": res.ID,
				"error":         err.Error(),
			})
			continue
		}

		missing := make([]models.Rule, 0, len(applicable))
		for _, rule := range applicable {
			if !existing[rule.Code] {
				missing = append(missing, rule)
			}
		}
		if len(missing) == 0 {
			summary.Skipped++
			continue
		}

		results, err := s.generator.GenerateForReservation(ctx, res, missing, false)
		if err != nil {
			s.logger.Error("backfill generation failed", map[string]interface{}{
				"reservationId": res.ID,
				"error":         err.Error(),
			})
			continue
		}
		tally(results, summary)
	}
}

// applicableRules restricts the rule set to whichever window(s) the
// reservation actually falls into. A reservation matched only via its
// check-out date receives no arrival-anchored rules.
func applicableRules(rules []models.Rule, res models.Reservation, ciFrom, ciTo, coFrom, coTo time.Time) []models.Rule {
	inCheckIn := !res.CheckInDate.Before(ciFrom) && !res.CheckInDate.After(ciTo)
	inCheckOut := !res.CheckOutDate.Before(coFrom) && !res.CheckOutDate.After(coTo)

	var out []models.Rule
	for _, rule := range rules {
		if rule.Anchor.ArrivalAnchored() && inCheckIn {
			out = append(out, rule)
		}
		if rule.Anchor.DepartureAnchored() && inCheckOut {
			out = append(out, rule)
		}
	}
	return out
}

func tally(results []models.GenerationResult, summary *models.ScanSummary) {
	for _, r := range results {
		switch r.Status {
		case models.GenCreated:
			summary.Generated++
		case models.GenSkipped, models.GenExists:
			summary.Skipped++
		}
	}
}

func (s *Scanner) cacheHit(ctx context.Context, reservationID string) bool {
	if s.cache == nil {
		return false
	}
	n, err := s.cache.Exists(ctx, onCreateCachePrefix+reservationID).Result()
	return err == nil && n > 0
}

func (s *Scanner) cacheMark(ctx context.Context, reservationID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, onCreateCachePrefix+reservationID, "1", onCreateCacheTTL).Err(); err != nil {
		s.logger.Debug("cache mark failed", map[string]interface{}{
			"reservationId": reservationID,
			"error":         err.Error(),
		})
	}
}
