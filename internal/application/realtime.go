package application

import (
	"context"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/fanout"
)

// Connect registers a live session. A session from the same device replaces
// the previous one.
func (s *Service) Connect(session *fanout.Session) {
	s.hub.Register(session)
}

// Subscribe attaches session to the conversation's live events. Only active
// participants may subscribe.
func (s *Service) Subscribe(ctx context.Context, session *fanout.Session, conversationID string) error {
	if err := s.conversations.RequireParticipant(ctx, conversationID, session.UserID); err != nil {
		return transient(err)
	}
	if !s.hub.Subscribe(conversationID, session) {
		return domain.ErrInvalidInput
	}
	return nil
}

func (s *Service) Unsubscribe(session *fanout.Session, conversationID string) {
	s.hub.Unsubscribe(conversationID, session)
}

func (s *Service) Disconnect(session *fanout.Session) {
	s.hub.Disconnect(session)
}

// SendTyping broadcasts an ephemeral typing indicator. It is never stored.
func (s *Service) SendTyping(ctx context.Context, conversationID, userID string) error {
	if err := s.conversations.RequireParticipant(ctx, conversationID, userID); err != nil {
		return transient(err)
	}
	s.hub.Publish(ctx, domain.NewTypingEvent(conversationID, userID, s.now()))
	return nil
}
