package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxMessageSize  = 5000
	maxPreviewRunes = 100
	DefaultPageSize = 100
	MaxPageSize     = 500
)

type MessageType string

const (
	MessageText    MessageType = "text"
	MessageImage   MessageType = "image"
	MessageVideo   MessageType = "video"
	MessageVoice   MessageType = "voice"
	MessageFile    MessageType = "file"
	MessageCallLog MessageType = "call_log"
)

func ParseMessageType(s string) (MessageType, error) {
	if s == "" {
		return MessageText, nil
	}
	switch t := MessageType(strings.ToLower(s)); t {
	case MessageText, MessageImage, MessageVideo, MessageVoice, MessageFile, MessageCallLog:
		return t, nil
	}
	return "", ErrInvalidMessage
}

// Message Invariants:
// 1. Ordering: Sequence is strictly increasing and never reused per ConversationID.
// 2. Immutability: only Content (via Edit) and DeletedAt change after creation.
// 3. Editing never changes Sequence.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Sequence       int64       `json:"sequence"`
	Type           MessageType `json:"type"`
	Content        string      `json:"content"`
	MediaURL       string      `json:"media_url,omitempty"`
	SentAt         time.Time   `json:"sent_at"`
	Edited         bool        `json:"edited"`
	EditedAt       *time.Time  `json:"edited_at,omitempty"`
	DeletedAt      *time.Time  `json:"deleted_at,omitempty"`
}

// ValidateContent checks a message body before a sequence number is claimed.
func ValidateContent(msgType MessageType, content, mediaURL string) error {
	if len(content) > MaxMessageSize {
		return ErrMessageTooLarge
	}
	if msgType == MessageText {
		if strings.TrimSpace(content) == "" {
			return ErrInvalidMessage
		}
		return nil
	}
	if mediaURL == "" {
		return ErrInvalidMessage
	}
	return nil
}

func NewMessage(
	id string,
	conversationID string,
	senderID string,
	sequence int64,
	msgType MessageType,
	content string,
	mediaURL string,
	now time.Time,
) (*Message, error) {

	if id == "" || conversationID == "" || senderID == "" {
		return nil, ErrInvalidMessage
	}

	if sequence <= 0 {
		return nil, ErrInvalidSequence
	}

	if err := ValidateContent(msgType, content, mediaURL); err != nil {
		return nil, err
	}

	return &Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Sequence:       sequence,
		Type:           msgType,
		Content:        content,
		MediaURL:       mediaURL,
		SentAt:         now,
	}, nil
}

func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

func (m *Message) Edit(editorID, content string, now time.Time) error {
	if m.SenderID != editorID {
		return ErrNotSender
	}
	if m.IsDeleted() {
		return ErrMessageDeleted
	}
	if err := ValidateContent(m.Type, content, m.MediaURL); err != nil {
		return err
	}
	m.Content = content
	m.Edited = true
	m.EditedAt = &now
	return nil
}

// Tombstone returns a copy safe to show after deletion.
func (m *Message) Tombstone() *Message {
	t := *m
	t.Content = ""
	t.MediaURL = ""
	return &t
}

// Preview is the short text handed to the notification collaborator.
func (m *Message) Preview() string {
	if m.Type != MessageText {
		return "[" + string(m.Type) + "]"
	}
	if utf8.RuneCountInString(m.Content) <= maxPreviewRunes {
		return m.Content
	}
	r := []rune(m.Content)
	return string(r[:maxPreviewRunes]) + "…"
}

// NormalizeLimit applies the default and the cap to a page size.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
