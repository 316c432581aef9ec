package domain

import (
	"fmt"
	"time"
)

// DeliveryState only moves forward: Sent -> Delivered -> Read.
type DeliveryState int

const (
	DeliverySent DeliveryState = iota
	DeliveryDelivered
	DeliveryRead
)

func (s DeliveryState) String() string {
	switch s {
	case DeliverySent:
		return "sent"
	case DeliveryDelivered:
		return "delivered"
	case DeliveryRead:
		return "read"
	}
	return fmt.Sprintf("DeliveryState(%d)", int(s))
}

func (s DeliveryState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *DeliveryState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "sent":
		*s = DeliverySent
	case "delivered":
		*s = DeliveryDelivered
	case "read":
		*s = DeliveryRead
	default:
		return ErrInvalidInput
	}
	return nil
}

// CanAdvanceTo reports whether moving to next is a forward transition.
// Skipping Delivered is allowed; staying or moving back is not.
func (s DeliveryState) CanAdvanceTo(next DeliveryState) bool {
	return next > s && next <= DeliveryRead
}

type DeliveryRecord struct {
	MessageID      string        `json:"message_id"`
	ConversationID string        `json:"conversation_id"`
	UserID         string        `json:"user_id"`
	State          DeliveryState `json:"state"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Advance moves the record forward and reports whether anything changed.
func (r *DeliveryRecord) Advance(next DeliveryState, now time.Time) bool {
	if !r.State.CanAdvanceTo(next) {
		return false
	}
	r.State = next
	r.UpdatedAt = now
	return true
}
