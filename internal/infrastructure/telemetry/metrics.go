package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Compliance engine metrics, exposed on /metrics via the default registry.
var (
	RequestsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gdpr",
		Subsystem: "requests",
		Name:      "processed_total",
		Help:      "Subject rights requests processed, by type and outcome.",
	}, []string{"type", "outcome"})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gdpr",
		Subsystem: "webhooks",
		Name:      "deliveries_total",
		Help:      "Webhook delivery attempts, by outcome.",
	}, []string{"outcome"})

	WebhookDeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gdpr",
		Subsystem: "webhooks",
		Name:      "delivery_duration_seconds",
		Help:      "Wall time of individual webhook delivery attempts.",
		Buckets:   prometheus.DefBuckets,
	})

	RetentionRowsRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gdpr",
		Subsystem: "retention",
		Name:      "rows_removed_total",
		Help:      "Rows deleted, anonymized or archived by retention sweeps.",
	}, []string{"table", "action"})

	ConsentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gdpr",
		Subsystem: "consents",
		Name:      "transitions_total",
		Help:      "Consent status transitions, by resulting status.",
	}, []string{"status"})
)
