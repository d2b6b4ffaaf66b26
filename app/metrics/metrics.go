// Package metrics provides Prometheus metrics for the collection pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "workflow_pulse"

var (
	// UpstreamRequests counts outbound calls by source and status class.
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of upstream HTTP requests",
		},
		[]string{"source", "status"},
	)

	// UpstreamDuration measures upstream call latency.
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of upstream HTTP requests in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	// UpstreamFailures counts classified upstream failures.
	UpstreamFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_failures_total",
			Help:      "Total number of upstream failures by classification",
		},
		[]string{"source", "kind"},
	)

	// ItemsCollected counts normalized items per source and country.
	ItemsCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_collected_total",
			Help:      "Total number of normalized items collected",
		},
		[]string{"source", "country"},
	)

	// CollectionFailures counts adapter runs that degraded to zero items.
	CollectionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_failures_total",
			Help:      "Total number of failed source collections",
		},
		[]string{"source", "country"},
	)

	// RunDuration measures full collection runs.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of collection runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	// LastRunTimestamp tracks the end of the last completed run.
	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed collection run",
		},
	)
)

func RecordUpstreamRequest(source, status string, duration time.Duration) {
	UpstreamRequests.WithLabelValues(source, status).Inc()
	UpstreamDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func RecordUpstreamFailure(source, kind string) {
	UpstreamFailures.WithLabelValues(source, kind).Inc()
}

func RecordCollection(source, country string, count int, failed bool) {
	if failed {
		CollectionFailures.WithLabelValues(source, country).Inc()
		return
	}
	ItemsCollected.WithLabelValues(source, country).Add(float64(count))
}

func RecordRun(duration time.Duration, finishedAt time.Time) {
	RunDuration.Observe(duration.Seconds())
	LastRunTimestamp.Set(float64(finishedAt.Unix()))
}
