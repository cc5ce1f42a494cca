package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/memoryd/internal/embeddings"

// Metrics records embedding call latency and failures.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	duration metric.Float64Histogram
	inputLen metric.Int64Histogram
	errors   metric.Int64Counter
}

// NewMetrics creates metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{meter: meter, logger: logger}

	var err error
	m.duration, err = meter.Float64Histogram(
		"memoryd.embedding.duration_seconds",
		metric.WithDescription("Duration of embedding calls by provider and model"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.inputLen, err = meter.Int64Histogram(
		"memoryd.embedding.input_chars",
		metric.WithDescription("Characters of text submitted per embedding call"),
		metric.WithUnit("{char}"),
		metric.WithExplicitBucketBoundaries(64, 256, 800, 2000, 8000, 32000),
	)
	if err != nil {
		logger.Warn("failed to create input length histogram", zap.Error(err))
	}

	m.errors, err = meter.Int64Counter(
		"memoryd.embedding.errors_total",
		metric.WithDescription("Failed embedding calls by provider and model"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn("failed to create errors counter", zap.Error(err))
	}
	return m
}

// Record captures one embedding call.
func (m *Metrics) Record(ctx context.Context, providerName, model string, duration time.Duration, chars int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", providerName),
		attribute.String("model", model),
	)
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
	if m.inputLen != nil && chars > 0 {
		m.inputLen.Record(ctx, int64(chars), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
