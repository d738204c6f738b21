package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_submissions_total",
		Help: "Total number of payment submissions by method and result",
	}, []string{"method", "result"})

	PesapalRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pesapal_request_latency_seconds",
		Help:    "Latency of outbound Pesapal API calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	PesapalRequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pesapal_request_errors_total",
		Help: "Total number of failed Pesapal API calls",
	}, []string{"operation", "reason"})

	IPNReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ipn_received_total",
		Help: "Total number of payment notifications received",
	})

	IPNDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ipn_duplicate_total",
		Help: "Total number of notifications already reconciled on a previous delivery",
	})

	IPNOrphanedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipn_orphaned_total",
		Help: "Total number of notifications that could not be matched to a payment",
	}, []string{"reason"})

	IPNFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipn_failures_total",
		Help: "Total number of notifications answered with a failure acknowledgement",
	}, []string{"stage"})

	IPNInvalidFieldsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipn_invalid_fields_total",
		Help: "Total number of notification fields that could not be interpreted and were stored as null",
	}, []string{"field"})

	ReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciliations_total",
		Help: "Total number of reconciliations by outcome",
	}, []string{"outcome", "source"})

	ConsumerDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_messages_dropped_total",
		Help: "Total number of consumed messages committed after their handler kept failing",
	}, []string{"topic"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
