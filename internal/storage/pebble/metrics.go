package pebblestore

import (
	"time"

	"github.com/rzbill/ordernotify/internal/metrics"
)

// PrometheusMetrics reports operation latencies to the process collectors.
type PrometheusMetrics struct{}

func (PrometheusMetrics) Observe(op Op, d time.Duration, _ int) {
	metrics.StorageOpDuration.WithLabelValues(string(op)).Observe(d.Seconds())
}
