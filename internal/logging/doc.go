// Package logging provides structured logging with OpenTelemetry correlation.
//
// The Logger wraps zap with context-aware methods. Every entry picks up
// trace_id/span_id from the active span plus the namespace, session and
// request identifiers stored on the context:
//
//	ctx = logging.WithNamespace(ctx, "team-a")
//	ctx = logging.WithSessionID(ctx, "sess_123")
//	logger.Info(ctx, "session compacted", zap.Int("archived", 81))
//
// Secret-looking fields are redacted at the encoder, sampling keeps volume
// bounded below error level, and an optional otelzap core forwards entries
// to an OpenTelemetry log provider.
//
// Tests use NewTestLogger and its Assert helpers.
package logging
