package transport

import (
	"context"
	"net/http"

	"github.com/SARVESHVARADKAR123/RealChat/internal/observability"
	grpctransport "github.com/SARVESHVARADKAR123/RealChat/internal/transport/grpc"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error writes err as a JSON error body. Domain errors are first mapped to a
// gRPC status so HTTP and gRPC callers see the same classification.
func Error(ctx context.Context, w http.ResponseWriter, err error) {
	StatusError(ctx, w, grpctransport.MapError(err))
}

func StatusError(ctx context.Context, w http.ResponseWriter, err error) {
	log := observability.GetLogger(ctx)

	st, ok := status.FromError(err)
	if !ok {
		log.Error("http: unexpected error", zap.Error(err))
		WriteError(ctx, w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
		return
	}

	log.Warn("http: request failed", zap.String("code", st.Code().String()), zap.String("message", st.Message()))

	code, errCode, msg := describe(st)
	WriteError(ctx, w, code, errCode, msg)
}

// ErrorCode classifies err the way Error does, for transports that carry
// their own framing such as websocket error frames.
func ErrorCode(err error) (code, message string) {
	st, _ := status.FromError(grpctransport.MapError(err))
	_, code, message = describe(st)
	return code, message
}

func describe(st *status.Status) (int, string, string) {
	switch st.Code() {
	case codes.NotFound:
		return http.StatusNotFound, "not_found", st.Message()
	case codes.InvalidArgument:
		return http.StatusBadRequest, "invalid_argument", st.Message()
	case codes.Unauthenticated:
		return http.StatusUnauthorized, "unauthorized", "authentication failed"
	case codes.PermissionDenied:
		return http.StatusForbidden, "forbidden", st.Message()
	case codes.AlreadyExists:
		return http.StatusConflict, "already_exists", st.Message()
	case codes.FailedPrecondition:
		return http.StatusConflict, "failed_precondition", st.Message()
	case codes.Unavailable:
		return http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable"
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout, "timeout", "request timed out"
	case codes.Canceled:
		return 499, "canceled", "request canceled"
	default:
		return http.StatusInternalServerError, "internal_error", "an unexpected error occurred"
	}
}
