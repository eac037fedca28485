package featurestore

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the feature store.
type Metrics struct {
	OperationsTotal *prometheus.CounterVec
	SearchDuration  prometheus.Histogram
	SearchFanout    prometheus.Histogram
	RecordsWritten  prometheus.Counter
	RecordsDeleted  prometheus.Counter
}

// NewMetrics creates and registers Prometheus metrics for the feature store.
//
// Uses sync.Once so metrics are only registered once globally, preventing
// "duplicate metrics collector registration" panics.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			OperationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "voiced_store_operations_total",
					Help: "Total feature store operations by operation and status",
				},
				[]string{"operation", "status"},
			),

			SearchDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "voiced_store_search_duration_seconds",
					Help:    "Duration of similarity searches in seconds",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
				},
			),

			SearchFanout: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "voiced_store_search_fanout_tenants",
					Help:    "Number of tenant collections queried per fan-out search",
					Buckets: prometheus.ExponentialBuckets(1, 2, 10),
				},
			),

			RecordsWritten: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "voiced_store_records_written_total",
					Help: "Total feature records written",
				},
			),

			RecordsDeleted: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "voiced_store_records_deleted_total",
					Help: "Total feature records deleted",
				},
			),
		}
	})

	return globalMetrics
}

// RecordOperation records one store operation outcome.
func (m *Metrics) RecordOperation(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
}
