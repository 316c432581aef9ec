package grpc

import (
	"context"
	"errors"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/observability"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// MapError converts a domain error into a gRPC status error.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, domain.ErrConversationNotFound),
		errors.Is(err, domain.ErrMessageNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, domain.ErrNotParticipant),
		errors.Is(err, domain.ErrNotSender),
		errors.Is(err, domain.ErrNotAdmin):
		return status.Error(codes.PermissionDenied, err.Error())

	case errors.Is(err, domain.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, domain.ErrMessageDeleted),
		errors.Is(err, domain.ErrDirectModification),
		errors.Is(err, domain.ErrLastAdmin):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, domain.ErrInvalidMessage),
		errors.Is(err, domain.ErrInvalidSequence),
		errors.Is(err, domain.ErrMessageTooLarge),
		errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, domain.ErrTransient):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	default:
		observability.GetLogger(context.Background()).Error("internal error", zap.Error(err))
		return status.Error(codes.Internal, "internal server error")
	}
}
