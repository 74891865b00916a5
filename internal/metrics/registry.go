package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level collectors for the security layer. All collectors are
// registered with the default registry via promauto so the /metrics
// endpoint picks them up without extra wiring.

var (
	// Scanner metrics
	ScanTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsec",
			Subsystem: "scanner",
			Name:      "scans_total",
			Help:      "Total number of threat scans performed",
		},
		[]string{"kind", "result"},
	)

	ScanFindings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsec",
			Subsystem: "scanner",
			Name:      "findings_total",
			Help:      "Threat findings by category and severity",
		},
		[]string{"category", "severity"},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bsec",
			Subsystem: "scanner",
			Name:      "scan_duration_seconds",
			Help:      "Threat scan duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 16), // 1μs to ~65ms
		},
	)

	// Admission metrics
	AdmissionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsec",
			Subsystem: "admission",
			Name:      "decisions_total",
			Help:      "Admission decisions by scope and outcome",
		},
		[]string{"scope", "outcome"},
	)

	AdmissionBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsec",
			Subsystem: "admission",
			Name:      "blocks_total",
			Help:      "Subjects blocked after repeated violations",
		},
		[]string{"subject_type"},
	)

	AdmissionFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bsec",
			Subsystem: "admission",
			Name:      "local_fallback_total",
			Help:      "Admission checks served by the local limiter during Redis outages",
		},
	)

	// Audit metrics
	AuditRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsec",
			Subsystem: "audit",
			Name:      "events_recorded_total",
			Help:      "Audit events accepted for recording",
		},
		[]string{"category", "outcome"},
	)

	AuditDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bsec",
			Subsystem: "audit",
			Name:      "events_dropped_total",
			Help:      "Audit events dropped because the queue was full",
		},
	)

	AuditQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bsec",
			Subsystem: "audit",
			Name:      "queue_depth",
			Help:      "Current number of audit events waiting to be written",
		},
	)

	AuditAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsec",
			Subsystem: "audit",
			Name:      "alerts_total",
			Help:      "Security alerts raised for high severity events",
		},
		[]string{"severity"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsec",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "handler", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bsec",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"method", "handler"},
	)
)
