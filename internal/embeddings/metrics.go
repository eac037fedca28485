package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/voiceprintlabs/voiced/internal/embeddings"

// Metrics holds extraction-related metrics.
type Metrics struct {
	meter     metric.Meter
	logger    *zap.Logger
	duration  metric.Float64Histogram
	audioSize metric.Int64Histogram
	errors    metric.Int64Counter
}

// NewMetrics creates a new Metrics instance for the extractor client.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"voiced.extraction.duration_seconds",
		metric.WithDescription("Duration of voice feature extraction in seconds, labeled by model"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.audioSize, err = m.meter.Int64Histogram(
		"voiced.extraction.audio_bytes",
		metric.WithDescription("Size of audio clips submitted for extraction"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1024, 16384, 65536, 262144, 1048576, 4194304, 16777216),
	)
	if err != nil {
		m.logger.Warn("failed to create audio size histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"voiced.extraction.errors_total",
		metric.WithDescription("Total feature extraction errors by model"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordExtraction records extraction metrics for one request.
func (m *Metrics) RecordExtraction(ctx context.Context, model string, duration time.Duration, audioBytes int, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
	}

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if m.audioSize != nil {
		m.audioSize.Record(ctx, int64(audioBytes), metric.WithAttributes(attrs...))
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
