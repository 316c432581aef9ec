package middleware

import (
	"context"

	"github.com/SARVESHVARADKAR123/RealChat/internal/observability"
	"go.uber.org/zap"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	requestIDKey
)

// InjectUserID records the authenticated caller and tags the request logger
// with user_id.
func InjectUserID(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, id)
	return observability.WithFields(ctx, zap.String("user_id", id))
}

func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// InjectRequestID records the request id and tags the request logger with
// request_id.
func InjectRequestID(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, id)
	return observability.WithFields(ctx, zap.String("request_id", id))
}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
