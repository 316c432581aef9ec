package application

import (
	"context"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"go.uber.org/zap"
)

func (s *Service) AddParticipant(ctx context.Context, conversationID, requesterID, userID string) (*domain.Conversation, error) {
	conv, err := s.conversations.AddParticipant(ctx, conversationID, requesterID, userID)
	if err != nil {
		return nil, transient(err)
	}

	s.log.Info("participant added",
		zap.String("conversation_id", conversationID),
		zap.String("user_id", userID),
		zap.String("requester_id", requesterID),
	)
	return conv, nil
}

// RemoveParticipant ends targetID's membership and detaches their live
// sessions from the conversation.
func (s *Service) RemoveParticipant(ctx context.Context, conversationID, requesterID, targetID string) (*domain.Conversation, error) {
	conv, err := s.conversations.RemoveParticipant(ctx, conversationID, requesterID, targetID)
	if err != nil {
		return nil, transient(err)
	}
	s.hub.UnsubscribeUser(conversationID, targetID)

	s.log.Info("participant removed",
		zap.String("conversation_id", conversationID),
		zap.String("user_id", targetID),
		zap.String("requester_id", requesterID),
	)
	return conv, nil
}
