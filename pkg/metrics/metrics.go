// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionsTotal tracks identity resolutions by record category and outcome
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "resolve",
			Name:      "resolutions_total",
			Help:      "Total number of identity resolutions by category and outcome",
		},
		[]string{"category", "outcome"},
	)

	// ResolutionConflictRetries tracks unique-violation retries during resolution
	ResolutionConflictRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "resolve",
			Name:      "conflict_retries_total",
			Help:      "Total number of resolution retries after a unique constraint violation",
		},
		[]string{"category"},
	)

	// EventsPublished tracks events published to the bus
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of events published to the bus",
		},
		[]string{"category", "action"},
	)

	// EventsDispatched tracks events handled by dispatch workers
	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "dispatch",
			Name:      "events_total",
			Help:      "Total number of events dispatched to handlers by status",
		},
		[]string{"category", "source_type", "status"},
	)

	// DispatchDuration tracks handler duration per category
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "dispatch",
			Name:      "handler_duration_seconds",
			Help:      "Duration of event handler execution in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"category"},
	)

	// QueueDepth tracks the number of events waiting per category queue
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "events",
			Name:      "queue_depth",
			Help:      "Number of events waiting in each category queue",
		},
		[]string{"category"},
	)

	// DLQEventsTotal tracks events sent to the dead letter queue
	DLQEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "dlq",
			Name:      "events_total",
			Help:      "Total number of events sent to the dead letter queue",
		},
		[]string{"tenant_id", "reason"},
	)

	// RunsFinished tracks job run outcomes
	RunsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "jobs",
			Name:      "runs_finished_total",
			Help:      "Total number of job runs finished by terminal status",
		},
		[]string{"status"},
	)

	// ObservationsConsumed tracks inbound observations consumed from Kafka
	ObservationsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "observations_total",
			Help:      "Total number of inbound observations consumed by status",
		},
		[]string{"kind", "status"},
	)
)

// RecordResolution records one identity resolution outcome (created|updated|noop)
func RecordResolution(category, outcome string) {
	ResolutionsTotal.WithLabelValues(category, outcome).Inc()
}

// RecordConflictRetry records a resolution retry after a unique violation
func RecordConflictRetry(category string) {
	ResolutionConflictRetries.WithLabelValues(category).Inc()
}

// RecordEventPublished records an event published to the bus
func RecordEventPublished(category, action string) {
	EventsPublished.WithLabelValues(category, action).Inc()
}

// RecordDispatch records an event handled by a dispatch worker
func RecordDispatch(category, sourceType, status string, durationSeconds float64) {
	EventsDispatched.WithLabelValues(category, sourceType, status).Inc()
	DispatchDuration.WithLabelValues(category).Observe(durationSeconds)
}

// RecordDLQEvent records an event sent to the dead letter queue
func RecordDLQEvent(tenantID, reason string) {
	DLQEventsTotal.WithLabelValues(tenantID, reason).Inc()
}

// RecordRunFinished records a job run reaching a terminal status
func RecordRunFinished(status string) {
	RunsFinished.WithLabelValues(status).Inc()
}

// RecordObservation records an inbound observation consumed from Kafka
func RecordObservation(kind, status string) {
	ObservationsConsumed.WithLabelValues(kind, status).Inc()
}
