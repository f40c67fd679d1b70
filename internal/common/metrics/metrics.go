// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SchedulesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_schedules_generated_total",
			Help: "Total number of schedule records created",
		},
		[]string{"rule_code"},
	)

	SchedulesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_schedules_skipped_total",
			Help: "Total number of rule evaluations skipped or deduplicated",
		},
		[]string{"rule_code", "reason"},
	)

	SchedulesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_schedules_failed_total",
			Help: "Total number of rule evaluations that failed to materialize",
		},
		[]string{"rule_code", "kind"},
	)

	RecordsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_records_dispatched_total",
			Help: "Total number of schedule records dispatched successfully",
		},
		[]string{"channel"},
	)

	RecordsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_records_failed_total",
			Help: "Total number of schedule records that failed dispatch",
		},
		[]string{"channel", "error_code"},
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "automation_reconcile_duration_seconds",
			Help: "Duration of reconciliation scans in seconds",
		},
	)

	DispatchClaimed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "automation_dispatch_claimed",
			Help: "Number of records claimed in the last dispatch tick",
		},
	)
)
