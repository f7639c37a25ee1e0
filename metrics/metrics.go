// Package metrics provides Prometheus metrics for the family tree service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ImportsTotal tracks GEDCOM imports by outcome
	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "familytree",
			Subsystem: "gedcom",
			Name:      "imports_total",
			Help:      "Total number of GEDCOM imports by status",
		},
		[]string{"status"},
	)

	// ParseDuration tracks time spent reading GEDCOM text
	ParseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "familytree",
			Subsystem: "gedcom",
			Name:      "parse_duration_seconds",
			Help:      "Duration of GEDCOM parsing in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// SkippedLinesTotal counts malformed lines dropped by the reader
	SkippedLinesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "familytree",
			Subsystem: "gedcom",
			Name:      "skipped_lines_total",
			Help:      "Total number of GEDCOM lines skipped while parsing",
		},
	)

	// ExportsTotal tracks GEDCOM exports by kind (download or file)
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "familytree",
			Subsystem: "gedcom",
			Name:      "exports_total",
			Help:      "Total number of GEDCOM exports by kind",
		},
		[]string{"kind"},
	)

	// EditsTotal tracks edit commands by operation and status
	EditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "familytree",
			Subsystem: "tree",
			Name:      "edits_total",
			Help:      "Total number of edit commands by operation and status",
		},
		[]string{"op", "status"},
	)

	// LayoutTicksTotal counts simulation ticks run by live engines
	LayoutTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "familytree",
			Subsystem: "layout",
			Name:      "ticks_total",
			Help:      "Total number of layout frames published by live engines",
		},
	)

	// LayoutSessionsActive tracks live layout engines
	LayoutSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "familytree",
			Subsystem: "layout",
			Name:      "sessions_active",
			Help:      "Number of live layout engines",
		},
	)

	// WorkerJobsTotal tracks background jobs by task and status
	WorkerJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "familytree",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total number of background jobs processed by task and status",
		},
		[]string{"task", "status"},
	)

	// HTTPRequestsTotal tracks inbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "familytree",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestDuration tracks inbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "familytree",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)
)
