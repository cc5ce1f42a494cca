package http

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/memory"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/memoryd/internal/http"

// latencyBuckets covers fast keyword queries through slow summarize calls.
var latencyBuckets = []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 60}

// HTTPMetrics records per-route request counts and latency, plus engine
// failures by error kind.
type HTTPMetrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	failures metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

// NewHTTPMetrics creates HTTPMetrics on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HTTPMetrics{
		meter:  otel.Meter(httpInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *HTTPMetrics) init() {
	var err error
	warn := func(name string) {
		if err != nil {
			m.logger.Warn("failed to create http instrument", zap.String("instrument", name), zap.Error(err))
		}
	}

	m.requests, err = m.meter.Int64Counter("memoryd.http.requests_total",
		metric.WithDescription("Requests by route, method and rendered status"),
		metric.WithUnit("{request}"))
	warn("requests_total")

	m.latency, err = m.meter.Float64Histogram("memoryd.http.request_duration_seconds",
		metric.WithDescription("Request latency by route, method and rendered status"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))
	warn("request_duration_seconds")

	m.failures, err = m.meter.Int64Counter("memoryd.http.engine_errors_total",
		metric.WithDescription("Engine failures by route and error kind"),
		metric.WithUnit("{error}"))
	warn("engine_errors_total")

	m.inFlight, err = m.meter.Int64UpDownCounter("memoryd.http.active_requests",
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}"))
	warn("active_requests")
}

// MetricsMiddleware returns an Echo middleware that records request metrics.
// It must run outside the request logger so that handler errors are already
// rendered when the status is read.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := c.Request().Context()

			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)

			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("endpoint", normalizePath(c.Path())),
				attribute.Int("status", c.Response().Status),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return err
		}
	}
}

// RecordFailure counts an engine error rendered for endpoint.
func (m *HTTPMetrics) RecordFailure(ctx context.Context, endpoint string, kind memory.Kind) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", normalizePath(endpoint)),
		attribute.String("kind", string(kind)),
	))
}

// normalizePath maps an unmatched route to "/". All routes are static, so
// the matched path is already low-cardinality.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
