package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitLogger_Level(t *testing.T) {
	InitLogger("test", "debug")
	assert.True(t, Log.Core().Enabled(zapcore.DebugLevel))

	InitLogger("test", "bogus")
	assert.False(t, Log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, Log.Core().Enabled(zapcore.InfoLevel))
}

func TestWithTrace(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithTrace(context.Background(), base).Info("no span")

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	WithTrace(ctx, base).Info("with span")
	span.End()

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.NotContains(t, entries[0].ContextMap(), "trace_id")
	assert.Equal(t, span.SpanContext().TraceID().String(), entries[1].ContextMap()["trace_id"])
	assert.Contains(t, entries[1].ContextMap(), "span_id")
}

func TestWithFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := Log
	Log = zap.New(core)
	t.Cleanup(func() { Log = prev })

	ctx := WithFields(context.Background(), zap.String("request_id", "req-1"))
	ctx = WithFields(ctx, zap.String("user_id", "u1"))

	GetLogger(ctx).Info("tagged")
	GetLogger(context.Background()).Info("plain")

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, map[string]interface{}{"request_id": "req-1", "user_id": "u1"}, entries[0].ContextMap())
	assert.Empty(t, entries[1].ContextMap())
}
