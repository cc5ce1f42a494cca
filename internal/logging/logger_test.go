package logging

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger.Underlying())
	assert.NoError(t, logger.Sync())
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg, nil)
	require.Error(t, err)

	cfg = NewDefaultConfig()
	cfg.Stdout = false
	_, err = NewLogger(cfg, nil)
	require.Error(t, err)
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(config.LoggingConfig{Level: "trace", Format: "console"})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	_, err = FromAppConfig(config.LoggingConfig{Level: "loud"})
	require.Error(t, err)
}

func TestContextFields(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	ctx = WithNamespace(ctx, "team-a")
	ctx = WithSessionID(ctx, "sess 42")
	ctx = WithRequestID(ctx, "req-1")

	tl := NewTestLogger()
	tl.Info(ctx, "compacted")

	tl.AssertField(t, "compacted", "namespace", "team-a")
	tl.AssertField(t, "compacted", "session.id", "sess 42")
	tl.AssertField(t, "compacted", "request.id", "req-1")
	fields := tl.FilterMessage("compacted").All()[0].ContextMap()
	assert.Contains(t, fields, "trace_id")
	assert.Contains(t, fields, "span_id")
}

func TestContextSetters_IgnoreInvalid(t *testing.T) {
	ctx := WithSessionID(context.Background(), "bad\nid")
	assert.Equal(t, "", SessionIDFromContext(ctx))

	ctx = WithNamespace(context.Background(), "")
	assert.Equal(t, "", NamespaceFromContext(ctx))
}

func TestFor(t *testing.T) {
	tl := NewTestLogger()
	z := tl.Underlying()
	assert.Same(t, z, For(context.Background(), z), "no fields, same logger")

	ctx := WithNamespace(WithRequestID(context.Background(), "req-9"), "team-b")
	For(ctx, z).Warn("annotated")
	tl.AssertField(t, "annotated", "namespace", "team-b")
	tl.AssertField(t, "annotated", "request.id", "req-9")
}

func TestRedactingEncoder(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	var buf bytes.Buffer
	core := zapcore.NewCore(enc, zapcore.AddSync(&buf), zapcore.DebugLevel)
	logger := zap.New(core).With(zap.String("authorization", "Bearer abc"))

	logger.Info("request",
		zap.String("api_key", "sk-live-abcdefghijklmnop"),
		zap.String("note", "uses sk-abcdefghijklmnopqrst inline"),
		Secret("openai", config.Secret("sk-123")),
		zap.String("namespace", "default"),
	)

	out := buf.String()
	assert.NotContains(t, out, "sk-live")
	assert.NotContains(t, out, "Bearer abc")
	assert.NotContains(t, out, "sk-abcdefghijklmnopqrst")
	assert.NotContains(t, out, "sk-123")
	assert.Contains(t, out, `"namespace":"default"`)
}

func TestSampledCore_WarningsNeverDropped(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled:    true,
		Tick:       time.Minute,
		Initial:    1,
		Thereafter: 0,
	})
	logger := zap.New(sampled)

	for i := 0; i < 5; i++ {
		logger.Info("repeated")
		logger.Warn("skipped")
		logger.With(zap.String("session.id", "s1")).Error("failure")
	}

	assert.Equal(t, 1, observed.FilterMessage("repeated").Len())
	assert.Equal(t, 5, observed.FilterMessage("skipped").Len())
	assert.Equal(t, 5, observed.FilterMessage("failure").Len())
}
