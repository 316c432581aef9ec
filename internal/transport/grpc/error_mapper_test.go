package grpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode codes.Code
	}{
		{"nil error", nil, codes.OK},
		{"conversation not found", domain.ErrConversationNotFound, codes.NotFound},
		{"message not found", domain.ErrMessageNotFound, codes.NotFound},
		{"not participant", domain.ErrNotParticipant, codes.PermissionDenied},
		{"not sender", domain.ErrNotSender, codes.PermissionDenied},
		{"not admin", domain.ErrNotAdmin, codes.PermissionDenied},
		{"already exists", domain.ErrAlreadyExists, codes.AlreadyExists},
		{"invalid message", domain.ErrInvalidMessage, codes.InvalidArgument},
		{"message too large", domain.ErrMessageTooLarge, codes.InvalidArgument},
		{"message deleted", domain.ErrMessageDeleted, codes.FailedPrecondition},
		{"direct modification", domain.ErrDirectModification, codes.FailedPrecondition},
		{"last admin removal", domain.ErrLastAdmin, codes.FailedPrecondition},
		{"transient wrapped", fmt.Errorf("%w: db down", domain.ErrTransient), codes.Unavailable},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"already grpc error", status.Error(codes.AlreadyExists, "already exists"), codes.AlreadyExists},
		{"unknown error", errors.New("something went wrong"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotErr := MapError(tt.err)
			if tt.err == nil {
				assert.NoError(t, gotErr)
				return
			}

			st, ok := status.FromError(gotErr)
			require.True(t, ok, "MapError did not return a gRPC status error")
			assert.Equal(t, tt.wantCode, st.Code())
		})
	}
}

func TestMapError_HidesInternalDetails(t *testing.T) {
	st, _ := status.FromError(MapError(errors.New("pq: password authentication failed")))
	assert.Equal(t, "internal server error", st.Message())
}
