// Package messagelog is the append-only, per-conversation ordered history.
package messagelog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/repository"
	"github.com/google/uuid"
)

// Repository is the storage the log needs: messages plus read access to
// conversations for authorization.
type Repository interface {
	repository.MessageRepository
	GetConversation(ctx context.Context, tx *sql.Tx, convID string) (*domain.Conversation, error)
	IsActiveParticipant(ctx context.Context, tx *sql.Tx, convID, userID string) (bool, error)
}

type Log struct {
	repo Repository
	now  func() time.Time
}

func New(repo Repository) *Log {
	return &Log{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

type AppendInput struct {
	ConversationID string
	SenderID       string
	Type           domain.MessageType
	Content        string
	MediaURL       string
}

type AppendResult struct {
	Message *domain.Message
	// Recipients are the active participants other than the sender at append time.
	Recipients []string
}

// Append assigns the next sequence and persists the message inside tx. The
// sequence is claimed from a row-locked counter, so two appends to the same
// conversation serialize and a committed sequence is never handed out again.
func (l *Log) Append(ctx context.Context, tx *sql.Tx, in AppendInput) (*AppendResult, error) {
	if in.Type == "" {
		in.Type = domain.MessageText
	}
	if err := domain.ValidateContent(in.Type, in.Content, in.MediaURL); err != nil {
		return nil, err
	}

	conv, err := l.repo.GetConversation(ctx, tx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if err := conv.CanSend(in.SenderID); err != nil {
		return nil, err
	}

	seq, err := l.repo.NextSequence(ctx, tx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate message sequence: %w", err)
	}

	msg, err := domain.NewMessage(
		uuid.NewString(),
		in.ConversationID,
		in.SenderID,
		seq,
		in.Type,
		in.Content,
		in.MediaURL,
		l.now(),
	)
	if err != nil {
		return nil, err
	}

	if err := l.repo.InsertMessage(ctx, tx, msg); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	return &AppendResult{
		Message:    msg,
		Recipients: conv.Recipients(in.SenderID),
	}, nil
}

// GetRecent returns up to limit messages in ascending sequence order. With
// beforeSeq > 0 only messages older than beforeSeq are considered.
func (l *Log) GetRecent(ctx context.Context, conversationID, requesterID string, limit int, beforeSeq int64) ([]*domain.Message, error) {
	if err := l.authorizeRead(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}

	msgs, err := l.repo.FetchMessagesBefore(ctx, conversationID, beforeSeq, domain.NormalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return tombstoned(msgs), nil
}

// Sync returns messages strictly after afterSeq, for clients catching up
// after a reconnect.
func (l *Log) Sync(ctx context.Context, conversationID, requesterID string, afterSeq int64, limit int) ([]*domain.Message, error) {
	if afterSeq < 0 {
		return nil, domain.ErrInvalidSequence
	}
	if err := l.authorizeRead(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}

	msgs, err := l.repo.FetchMessagesAfter(ctx, conversationID, afterSeq, domain.NormalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return tombstoned(msgs), nil
}

// GetLastMessage returns the newest non-deleted message, or nil for an empty
// conversation.
func (l *Log) GetLastMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	return l.repo.GetLastMessage(ctx, conversationID)
}

func (l *Log) Get(ctx context.Context, tx *sql.Tx, messageID string) (*domain.Message, error) {
	return l.repo.GetMessage(ctx, tx, messageID)
}

// Edit replaces the content of a message. Only its sender may edit, and the
// sequence is left untouched.
func (l *Log) Edit(ctx context.Context, tx *sql.Tx, messageID, editorID, content string) (*domain.Message, error) {
	msg, err := l.repo.GetMessageForUpdate(ctx, tx, messageID)
	if err != nil {
		return nil, err
	}
	if err := msg.Edit(editorID, content, l.now()); err != nil {
		return nil, err
	}
	if err := l.repo.UpdateMessageContent(ctx, tx, msg); err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	return msg, nil
}

// Delete soft-deletes a message. The second return value is false when the
// message was already deleted.
func (l *Log) Delete(ctx context.Context, tx *sql.Tx, messageID, requesterID string) (*domain.Message, bool, error) {
	msg, err := l.repo.GetMessageForUpdate(ctx, tx, messageID)
	if err != nil {
		return nil, false, err
	}
	if msg.SenderID != requesterID {
		return nil, false, domain.ErrNotSender
	}
	if msg.IsDeleted() {
		return msg.Tombstone(), false, nil
	}

	now := l.now()
	if err := l.repo.MarkMessageDeleted(ctx, tx, messageID, now); err != nil {
		return nil, false, fmt.Errorf("failed to delete message: %w", err)
	}
	msg.DeletedAt = &now
	return msg.Tombstone(), true, nil
}

func (l *Log) authorizeRead(ctx context.Context, conversationID, requesterID string) error {
	ok, err := l.repo.IsActiveParticipant(ctx, nil, conversationID, requesterID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := l.repo.GetConversation(ctx, nil, conversationID); err != nil {
		return err
	}
	return domain.ErrNotParticipant
}

func tombstoned(msgs []*domain.Message) []*domain.Message {
	for i, m := range msgs {
		if m.IsDeleted() {
			msgs[i] = m.Tombstone()
		}
	}
	return msgs
}
