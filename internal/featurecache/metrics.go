package featurecache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the feature cache.
type Metrics struct {
	HitsTotal   prometheus.Counter
	MissesTotal prometheus.Counter
	Size        prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for the feature cache.
//
// Uses sync.Once so metrics are only registered once globally, preventing
// "duplicate metrics collector registration" panics.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			HitsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "voiced_feature_cache_hits_total",
					Help: "Total number of feature cache hits",
				},
			),

			MissesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "voiced_feature_cache_misses_total",
					Help: "Total number of feature cache misses",
				},
			),

			Size: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "voiced_feature_cache_size",
					Help: "Current number of tenants in the feature cache",
				},
			),
		}
	})

	return globalMetrics
}

// RecordHit records a cache hit.
func (m *Metrics) RecordHit() {
	m.HitsTotal.Inc()
}

// RecordMiss records a cache miss.
func (m *Metrics) RecordMiss() {
	m.MissesTotal.Inc()
}

// SetSize updates the current cache size gauge.
func (m *Metrics) SetSize(size int) {
	m.Size.Set(float64(size))
}
