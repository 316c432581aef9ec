package application

import (
	"context"
	"sort"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"go.uber.org/zap"
)

// ConversationSummary is a conversation as seen by one participant.
type ConversationSummary struct {
	*domain.Conversation
	LastMessage *domain.Message `json:"last_message,omitempty"`
	UnreadCount int             `json:"unread_count"`
}

// ActivityAt is the time of the last visible message, or creation time.
func (c *ConversationSummary) ActivityAt() time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.SentAt
	}
	return c.CreatedAt
}

// CreateOrGetDirectConversation returns the one direct conversation between
// the two users. Repeated calls, in either order, return the same id.
func (s *Service) CreateOrGetDirectConversation(ctx context.Context, userID, otherUserID string) (*domain.Conversation, error) {
	conv, err := s.conversations.FindOrCreateDirect(ctx, userID, otherUserID)
	if err != nil {
		return nil, transient(err)
	}
	return conv, nil
}

func (s *Service) CreateGroupConversation(ctx context.Context, userID, title string, memberIDs []string) (*domain.Conversation, error) {
	conv, err := s.conversations.CreateGroup(ctx, userID, memberIDs, title)
	if err != nil {
		return nil, transient(err)
	}
	return conv, nil
}

// ListConversations returns the user's active conversations, most recently
// active first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]*ConversationSummary, error) {
	convs, err := s.conversations.List(ctx, userID)
	if err != nil {
		return nil, transient(err)
	}

	summaries := make([]*ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summary, err := s.summarize(ctx, conv, userID)
		if err != nil {
			return nil, transient(err)
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].ActivityAt().After(summaries[j].ActivityAt())
	})
	return summaries, nil
}

func (s *Service) GetConversation(ctx context.Context, conversationID, userID string) (*ConversationSummary, error) {
	if err := s.conversations.RequireParticipant(ctx, conversationID, userID); err != nil {
		return nil, transient(err)
	}
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, transient(err)
	}
	summary, err := s.summarize(ctx, conv, userID)
	if err != nil {
		return nil, transient(err)
	}
	return summary, nil
}

// DeleteConversation removes the conversation from the requester's view by
// ending their participation. Other participants keep the full history.
func (s *Service) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	if err := s.conversations.Remove(ctx, conversationID, userID); err != nil {
		return transient(err)
	}
	s.hub.UnsubscribeUser(conversationID, userID)

	s.log.Info("conversation left",
		zap.String("conversation_id", conversationID),
		zap.String("user_id", userID),
	)
	return nil
}

func (s *Service) summarize(ctx context.Context, conv *domain.Conversation, userID string) (*ConversationSummary, error) {
	last, err := s.messages.GetLastMessage(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	unread, err := s.deliveries.UnreadCount(ctx, conv.ID, userID)
	if err != nil {
		return nil, err
	}
	return &ConversationSummary{
		Conversation: conv,
		LastMessage:  last,
		UnreadCount:  unread,
	}, nil
}
