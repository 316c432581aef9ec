package domain

import (
	"fmt"
	"sort"
	"time"
)

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

type Participant struct {
	UserID   string     `json:"user_id"`
	Role     Role       `json:"role"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

func (p Participant) Active() bool {
	return p.LeftAt == nil
}

// Conversation Invariants:
// 1. Membership (Direct): exactly one conversation per unordered user pair.
// 2. Membership (Group): at least one active admin. The last admin cannot be removed.
// 3. A user is an active participant at most once; leaving sets LeftAt instead of deleting.
// 4. A conversation never references its messages.
type Conversation struct {
	ID           string                 `json:"id"`
	Type         ConversationType       `json:"type"`
	Title        string                 `json:"title,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	Participants map[string]Participant `json:"participants"`
}

// DirectLookupKey canonicalizes an unordered user pair.
func DirectLookupKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("direct:%s:%s", userA, userB)
}

func (c *Conversation) IsGroup() bool {
	return c.Type == ConversationGroup
}

func (c *Conversation) IsActiveParticipant(userID string) bool {
	p, ok := c.Participants[userID]
	return ok && p.Active()
}

// ActiveParticipantIDs returns the active members sorted by id.
func (c *Conversation) ActiveParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for id, p := range c.Participants {
		if p.Active() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Recipients returns the active members other than senderID.
func (c *Conversation) Recipients(senderID string) []string {
	ids := c.ActiveParticipantIDs()
	out := ids[:0]
	for _, id := range ids {
		if id != senderID {
			out = append(out, id)
		}
	}
	return out
}

func (c *Conversation) CanSend(userID string) error {
	if !c.IsActiveParticipant(userID) {
		return ErrNotParticipant
	}
	return nil
}

func (c *Conversation) activeAdmins() int {
	n := 0
	for _, p := range c.Participants {
		if p.Active() && p.Role == RoleAdmin {
			n++
		}
	}
	return n
}

// isLastAdmin reports whether p is the sole active admin of a group that still
// has other active members.
func (c *Conversation) isLastAdmin(p Participant) bool {
	return p.Role == RoleAdmin && c.activeAdmins() == 1 && len(c.ActiveParticipantIDs()) > 1
}

// AddParticipant adds or re-activates userID. Adding an active member is a no-op.
func (c *Conversation) AddParticipant(requesterID, userID string, now time.Time) (bool, error) {
	if c.Type != ConversationGroup {
		return false, ErrDirectModification
	}
	req, ok := c.Participants[requesterID]
	if !ok || !req.Active() {
		return false, ErrNotParticipant
	}
	if req.Role != RoleAdmin {
		return false, ErrNotAdmin
	}
	if c.IsActiveParticipant(userID) {
		return false, nil
	}

	c.Participants[userID] = Participant{
		UserID:   userID,
		Role:     RoleMember,
		JoinedAt: now,
	}
	return true, nil
}

// RemoveParticipant soft-ends targetID's membership. Members may remove themselves.
func (c *Conversation) RemoveParticipant(requesterID, targetID string, now time.Time) error {
	if c.Type != ConversationGroup {
		return ErrDirectModification
	}
	req, ok := c.Participants[requesterID]
	if !ok || !req.Active() {
		return ErrNotParticipant
	}
	if requesterID != targetID && req.Role != RoleAdmin {
		return ErrNotAdmin
	}

	target, ok := c.Participants[targetID]
	if !ok || !target.Active() {
		return ErrNotParticipant
	}
	if c.isLastAdmin(target) {
		return ErrLastAdmin
	}

	target.LeftAt = &now
	c.Participants[targetID] = target
	return nil
}

// Leave soft-ends userID's membership in any conversation type. The sole admin
// of a group cannot leave while other members remain.
func (c *Conversation) Leave(userID string, now time.Time) error {
	p, ok := c.Participants[userID]
	if !ok || !p.Active() {
		return ErrNotParticipant
	}
	if c.IsGroup() && c.isLastAdmin(p) {
		return ErrLastAdmin
	}
	p.LeftAt = &now
	c.Participants[userID] = p
	return nil
}
