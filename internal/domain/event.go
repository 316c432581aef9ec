package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventMessageCreated  EventType = "message.created"
	EventMessageEdited   EventType = "message.edited"
	EventMessageDeleted  EventType = "message.deleted"
	EventReadReceipt     EventType = "receipt.read"
	EventDeliveryReceipt EventType = "receipt.delivered"
	EventTyping          EventType = "typing"
)

// Event is pushed to subscribed sessions and written to the outbox.
// Clients treat a repeated (type, message_id) pair as a no-op.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	OccurredAt     time.Time `json:"occurred_at"`
	Message        *Message  `json:"message,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	Sequence       int64     `json:"sequence,omitempty"`
}

func newEvent(t EventType, conversationID string, now time.Time) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           t,
		ConversationID: conversationID,
		OccurredAt:     now,
	}
}

func NewMessageEvent(t EventType, msg *Message, now time.Time) Event {
	e := newEvent(t, msg.ConversationID, now)
	e.Message = msg
	e.MessageID = msg.ID
	e.UserID = msg.SenderID
	e.Sequence = msg.Sequence
	return e
}

func NewReceiptEvent(t EventType, msg *Message, userID string, now time.Time) Event {
	e := newEvent(t, msg.ConversationID, now)
	e.MessageID = msg.ID
	e.UserID = userID
	e.Sequence = msg.Sequence
	return e
}

// NewReadUpToEvent announces that userID has read everything up to sequence.
func NewReadUpToEvent(conversationID, userID string, sequence int64, now time.Time) Event {
	e := newEvent(EventReadReceipt, conversationID, now)
	e.UserID = userID
	e.Sequence = sequence
	return e
}

func NewTypingEvent(conversationID, userID string, now time.Time) Event {
	e := newEvent(EventTyping, conversationID, now)
	e.UserID = userID
	return e
}

// Durable reports whether the event belongs in the outbox. Typing is ephemeral.
func (e Event) Durable() bool {
	return e.Type != EventTyping
}
