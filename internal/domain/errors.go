package domain

import "errors"

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")

	ErrNotParticipant = errors.New("user not participant")
	ErrNotSender      = errors.New("user is not the message sender")
	ErrNotAdmin       = errors.New("user is not a conversation admin")

	ErrAlreadyExists = errors.New("already exists")

	ErrMessageDeleted     = errors.New("message deleted")
	ErrDirectModification = errors.New("cannot modify direct conversation participants")
	ErrLastAdmin          = errors.New("cannot remove last admin")

	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidMessage  = errors.New("invalid message")
	ErrMessageTooLarge = errors.New("message too large")
	ErrInvalidSequence = errors.New("invalid sequence")

	// ErrTransient marks failures the caller may retry with the same idempotency key.
	ErrTransient = errors.New("transient failure")
)

var known = []error{
	ErrConversationNotFound, ErrMessageNotFound,
	ErrNotParticipant, ErrNotSender, ErrNotAdmin,
	ErrAlreadyExists,
	ErrMessageDeleted, ErrDirectModification, ErrLastAdmin,
	ErrInvalidInput, ErrInvalidMessage, ErrMessageTooLarge, ErrInvalidSequence,
	ErrTransient,
}

// IsKnown reports whether err wraps one of the sentinels above.
func IsKnown(err error) bool {
	for _, k := range known {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
