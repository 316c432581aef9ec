// Package notify hands offline recipients to an out-of-band notification channel.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notification is what a recipient without a live connection is told about a
// new message.
type Notification struct {
	RecipientID    string `json:"recipient_id"`
	SenderID       string `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Sequence       int64  `json:"sequence"`
	Preview        string `json:"preview"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NameResolver maps a user id to the name shown in a notification.
type NameResolver interface {
	DisplayName(ctx context.Context, userID string) string
}

// UserIDNames uses the user id itself as the display name.
type UserIDNames struct{}

func (UserIDNames) DisplayName(_ context.Context, userID string) string {
	return userID
}

// LogNotifier only logs; it is used when no queue is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.log.Info("offline notification",
		zap.String("user_id", n.RecipientID),
		zap.String("sender_id", n.SenderID),
		zap.String("conversation_id", n.ConversationID),
		zap.String("message_id", n.MessageID),
	)
	return nil
}
