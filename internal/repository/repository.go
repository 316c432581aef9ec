package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
)

// All methods accept a nil tx and then run against the pool directly.

type ConversationRepository interface {
	// InsertConversation is an insert-or-fetch primitive: it reports false when a
	// conversation with the same lookup key already exists.
	InsertConversation(ctx context.Context, tx *sql.Tx, conv *domain.Conversation, lookupKey *string) (bool, error)
	InitSequence(ctx context.Context, tx *sql.Tx, convID string) error
	// UpsertParticipant inserts p or re-activates a participant who left.
	UpsertParticipant(ctx context.Context, tx *sql.Tx, convID string, p domain.Participant) error
	MarkParticipantLeft(ctx context.Context, tx *sql.Tx, convID, userID string, at time.Time) error

	GetConversation(ctx context.Context, tx *sql.Tx, convID string) (*domain.Conversation, error)
	GetConversationLocked(ctx context.Context, tx *sql.Tx, convID string) (*domain.Conversation, error)
	GetConversationByLookupKey(ctx context.Context, tx *sql.Tx, key string) (*domain.Conversation, error)
	IsActiveParticipant(ctx context.Context, tx *sql.Tx, convID, userID string) (bool, error)
	// ListConversationsByUser orders by the newest non-deleted message, then creation time.
	ListConversationsByUser(ctx context.Context, userID string) ([]*domain.Conversation, error)
	InvalidateConversation(ctx context.Context, convID string) error
}

type MessageRepository interface {
	NextSequence(ctx context.Context, tx *sql.Tx, convID string) (int64, error)
	InsertMessage(ctx context.Context, tx *sql.Tx, msg *domain.Message) error
	GetMessage(ctx context.Context, tx *sql.Tx, messageID string) (*domain.Message, error)
	GetMessageForUpdate(ctx context.Context, tx *sql.Tx, messageID string) (*domain.Message, error)
	UpdateMessageContent(ctx context.Context, tx *sql.Tx, msg *domain.Message) error
	MarkMessageDeleted(ctx context.Context, tx *sql.Tx, msgID string, at time.Time) error

	// FetchMessagesBefore returns up to limit messages with sequence < beforeSeq
	// (all when beforeSeq <= 0), ascending.
	FetchMessagesBefore(ctx context.Context, convID string, beforeSeq int64, limit int) ([]*domain.Message, error)
	// FetchMessagesAfter returns up to limit messages with sequence > afterSeq, ascending.
	FetchMessagesAfter(ctx context.Context, convID string, afterSeq int64, limit int) ([]*domain.Message, error)
	// GetLastMessage returns the highest-sequence non-deleted message or nil.
	GetLastMessage(ctx context.Context, convID string) (*domain.Message, error)
}

type DeliveryRepository interface {
	InsertDeliveries(ctx context.Context, tx *sql.Tx, records []domain.DeliveryRecord) error
	// AdvanceDelivery moves the record forward only; it reports whether a row changed.
	AdvanceDelivery(ctx context.Context, tx *sql.Tx, messageID, userID string, to domain.DeliveryState, at time.Time) (bool, error)
	AdvanceDeliveriesUpTo(ctx context.Context, tx *sql.Tx, convID, userID string, uptoSeq int64, to domain.DeliveryState, at time.Time) (int64, error)
	GetDelivery(ctx context.Context, tx *sql.Tx, messageID, userID string) (*domain.DeliveryRecord, error)
	CountUnread(ctx context.Context, convID, userID string) (int, error)
}

type IdempotencyRepository interface {
	TryInsertIdempotency(ctx context.Context, tx *sql.Tx, key, userID, conversationID string, expiresAt time.Time) (bool, error)
	GetIdempotencyForUpdate(ctx context.Context, tx *sql.Tx, key, userID, conversationID string) ([]byte, error)
	UpdateIdempotencyResponse(ctx context.Context, tx *sql.Tx, key, userID, conversationID string, payload []byte) error
	DeleteExpiredIdempotency(ctx context.Context, now time.Time) (int64, error)
}

type OutboxRepository interface {
	InsertOutbox(ctx context.Context, tx *sql.Tx, aggregateType, aggregateID, eventType string, payload []byte) error
}

type Repository interface {
	ConversationRepository
	MessageRepository
	DeliveryRepository
	IdempotencyRepository
	OutboxRepository
}
