package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchAttemptsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notification",
			Name:      "dispatch_attempts_total",
			Help:      "Total delivery attempts per channel and status.",
		},
		[]string{"channel", "status"},
	)

	dispatchRequestsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notification",
			Name:      "dispatch_requests_total",
			Help:      "Total dispatch calls by terminal outcome.",
		},
		[]string{"outcome"}, // delivered, failed, no_destination
	)

	attemptDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "notification",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of single provider delivery attempts.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	bulkRecipientsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notification",
			Name:      "bulk_recipients_total",
			Help:      "Total bulk fan-out recipients by outcome.",
		},
		[]string{"status"},
	)

	retryJobsScheduledCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "notification",
			Name:      "retry_jobs_scheduled_total",
			Help:      "Total dispatch jobs scheduled for delayed retry.",
		},
	)

	retryJobsExhaustedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "notification",
			Name:      "retry_jobs_exhausted_total",
			Help:      "Total dispatch jobs abandoned after the retry bound.",
		},
	)
)
