// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PushAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordernotify_push_attempts_total",
			Help: "Push send attempts by outcome (success, transient, permanent)",
		},
		[]string{"outcome"},
	)

	PushPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ordernotify_push_pruned_total",
			Help: "Subscriptions removed after a permanent delivery failure",
		},
	)

	DispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ordernotify_push_dispatch_duration_seconds",
			Help:    "Duration of a full dispatch fan-out",
			Buckets: prometheus.DefBuckets,
		},
	)

	DispatchSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ordernotify_push_dispatch_skipped_total",
			Help: "Dispatch calls short-circuited by a misconfigured credential",
		},
	)

	StreamSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ordernotify_stream_sessions_active",
			Help: "Currently open order stream sessions",
		},
	)

	StreamFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordernotify_stream_frames_total",
			Help: "Frames written to stream sessions by type",
		},
		[]string{"type"},
	)

	DetectorErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordernotify_detector_errors_total",
			Help: "Change detector failures by strategy",
		},
		[]string{"strategy"},
	)

	BroadcastDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ordernotify_broadcast_dropped_total",
			Help: "Broadcast messages dropped because a subscriber buffer was full",
		},
	)

	StorageOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ordernotify_storage_op_duration_seconds",
			Help:    "Embedded storage operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"op"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordernotify_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"handler", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ordernotify_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PushAttemptsTotal,
			PushPrunedTotal,
			DispatchDuration,
			DispatchSkippedTotal,
			StreamSessionsActive,
			StreamFramesTotal,
			DetectorErrorsTotal,
			BroadcastDroppedTotal,
			StorageOpDuration,
			HTTPRequestsTotal,
			HTTPRequestDuration,
		)
	})
}
