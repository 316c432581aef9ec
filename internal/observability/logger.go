package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.Logger

// InitLogger builds the process logger. An empty or unknown level means info.
func InitLogger(serviceName string, level ...string) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if len(level) > 0 && level[0] != "" {
		if lvl, err := zapcore.ParseLevel(level[0]); err == nil {
			config.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	logger, err := config.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	Log = logger.With(zap.String("service", serviceName))
}

// Sync flushes buffered log entries. Call it once on shutdown.
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}

type loggerKey struct{}

// GetLogger returns the request logger carried by ctx, or the process logger,
// decorated with the active span.
func GetLogger(ctx context.Context) *zap.Logger {
	return WithTrace(ctx, contextLogger(ctx))
}

// WithFields returns a copy of ctx whose logger carries fields. Later
// GetLogger calls on the returned context include them.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, loggerKey{}, contextLogger(ctx).With(fields...))
}

func contextLogger(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	if Log == nil {
		InitLogger("unknown")
	}
	return Log
}

// WithTrace decorates logger with the ids of the span active in ctx.
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		logger = logger.With(
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("span_id", span.SpanContext().SpanID().String()),
		)
	}
	return logger
}
