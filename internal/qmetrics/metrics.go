// Package qmetrics holds the Prometheus instrumentation shared across
// the platform.
package qmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequestsTotal counts inbound webhook requests by provider,
	// event type and HTTP status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "intake",
		Name:      "webhook_requests_total",
		Help:      "Total webhook requests by provider, event type and HTTP status.",
	}, []string{"provider", "event_type", "status"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quill",
		Subsystem: "intake",
		Name:      "webhook_duration_seconds",
		Help:      "Webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})

	// DuplicateEventsTotal counts events dropped by the dedup window.
	DuplicateEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "intake",
		Name:      "duplicate_events_total",
		Help:      "Events dropped as exact eventId repeats.",
	}, []string{"provider"})

	// ReconcileOutcomesTotal counts reconciliation results by event type.
	ReconcileOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "entitlement",
		Name:      "reconcile_outcomes_total",
		Help:      "Reconciliation outcomes by event type and status.",
	}, []string{"event_type", "outcome"})

	// QuotaDenialsTotal counts metered actions refused by the tracker.
	QuotaDenialsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "quota",
		Name:      "denials_total",
		Help:      "Metered actions refused because the monthly limit was reached.",
	})

	// AICompletionsTotal counts provider calls by operation and outcome.
	AICompletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "ai",
		Name:      "completions_total",
		Help:      "AI provider calls by operation and outcome.",
	}, []string{"operation", "outcome"})
)
