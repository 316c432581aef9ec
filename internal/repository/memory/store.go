// Package memory is a process-local Repository for development and tests.
// A unit of work started with WithTx is rolled back on error through an undo
// journal; concurrent units are not isolated from each other.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/repository"
	"github.com/SARVESHVARADKAR123/RealChat/internal/tx"
)

var (
	_ repository.Repository = (*Store)(nil)
	_ tx.Transactor         = (*Store)(nil)
)

type deliveryKey struct{ messageID, userID string }

type idempotencyKey struct{ key, userID, conversationID string }

type idempotencyEntry struct {
	payload   []byte
	expiresAt time.Time
}

type OutboxEvent struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type Store struct {
	mu sync.RWMutex

	conversations  map[string]*domain.Conversation
	lookup         map[string]string
	sequences      map[string]int64
	messages       map[string]*domain.Message
	byConversation map[string][]*domain.Message
	deliveries     map[deliveryKey]*domain.DeliveryRecord
	idempotency    map[idempotencyKey]*idempotencyEntry
	outbox         []OutboxEvent
}

func New() *Store {
	return &Store{
		conversations:  make(map[string]*domain.Conversation),
		lookup:         make(map[string]string),
		sequences:      make(map[string]int64),
		messages:       make(map[string]*domain.Message),
		byConversation: make(map[string][]*domain.Message),
		deliveries:     make(map[deliveryKey]*domain.DeliveryRecord),
		idempotency:    make(map[idempotencyKey]*idempotencyEntry),
	}
}

type journalKey struct{}

type journal struct {
	mu   sync.Mutex
	undo []func()
}

// WithTx runs fn and replays the undo journal in reverse when it fails.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if _, nested := ctx.Value(journalKey{}).(*journal); nested {
		return fn(ctx, nil)
	}

	j := &journal{}
	err := fn(context.WithValue(ctx, journalKey{}, j), nil)
	if err != nil {
		s.mu.Lock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		s.mu.Unlock()
	}
	return err
}

// onRollback must be called with s.mu held.
func onRollback(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.mu.Lock()
		j.undo = append(j.undo, undo)
		j.mu.Unlock()
	}
}

// OutboxEvents returns a copy of everything written to the outbox.
func (s *Store) OutboxEvents() []OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]OutboxEvent(nil), s.outbox...)
}

func copyConversation(c *domain.Conversation) *domain.Conversation {
	out := *c
	out.Participants = make(map[string]domain.Participant, len(c.Participants))
	for id, p := range c.Participants {
		if p.LeftAt != nil {
			t := *p.LeftAt
			p.LeftAt = &t
		}
		out.Participants[id] = p
	}
	return &out
}

func copyMessage(m *domain.Message) *domain.Message {
	out := *m
	if m.EditedAt != nil {
		t := *m.EditedAt
		out.EditedAt = &t
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		out.DeletedAt = &t
	}
	return &out
}

// ---- conversations ----

func (s *Store) InsertConversation(ctx context.Context, _ *sql.Tx, conv *domain.Conversation, lookupKey *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lookupKey != nil {
		if _, exists := s.lookup[*lookupKey]; exists {
			return false, nil
		}
	}
	if _, exists := s.conversations[conv.ID]; exists {
		return false, domain.ErrAlreadyExists
	}

	stored := copyConversation(conv)
	stored.Participants = make(map[string]domain.Participant)
	s.conversations[conv.ID] = stored
	if lookupKey != nil {
		s.lookup[*lookupKey] = conv.ID
	}

	key := lookupKey
	onRollback(ctx, func() {
		delete(s.conversations, conv.ID)
		if key != nil {
			delete(s.lookup, *key)
		}
	})
	return true, nil
}

func (s *Store) InitSequence(ctx context.Context, _ *sql.Tx, convID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[convID]; !ok {
		return domain.ErrConversationNotFound
	}
	s.sequences[convID] = 0
	onRollback(ctx, func() { delete(s.sequences, convID) })
	return nil
}

func (s *Store) UpsertParticipant(ctx context.Context, _ *sql.Tx, convID string, p domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[convID]
	if !ok {
		return domain.ErrConversationNotFound
	}
	prev, existed := conv.Participants[p.UserID]
	if existed && prev.Active() {
		return nil
	}
	p.LeftAt = nil
	conv.Participants[p.UserID] = p

	onRollback(ctx, func() {
		if existed {
			conv.Participants[p.UserID] = prev
		} else {
			delete(conv.Participants, p.UserID)
		}
	})
	return nil
}

func (s *Store) MarkParticipantLeft(ctx context.Context, _ *sql.Tx, convID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[convID]
	if !ok {
		return domain.ErrConversationNotFound
	}
	prev, ok := conv.Participants[userID]
	if !ok || !prev.Active() {
		return nil
	}
	left := prev
	left.LeftAt = &at
	conv.Participants[userID] = left

	onRollback(ctx, func() { conv.Participants[userID] = prev })
	return nil
}

func (s *Store) GetConversation(_ context.Context, _ *sql.Tx, convID string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[convID]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return copyConversation(conv), nil
}

func (s *Store) GetConversationLocked(ctx context.Context, tx *sql.Tx, convID string) (*domain.Conversation, error) {
	return s.GetConversation(ctx, tx, convID)
}

func (s *Store) GetConversationByLookupKey(ctx context.Context, tx *sql.Tx, key string) (*domain.Conversation, error) {
	s.mu.RLock()
	id, ok := s.lookup[key]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return s.GetConversation(ctx, tx, id)
}

func (s *Store) IsActiveParticipant(_ context.Context, _ *sql.Tx, convID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[convID]
	if !ok {
		return false, nil
	}
	return conv.IsActiveParticipant(userID), nil
}

func (s *Store) ListConversationsByUser(_ context.Context, userID string) ([]*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type entry struct {
		conv     *domain.Conversation
		activity time.Time
	}
	var entries []entry
	for _, conv := range s.conversations {
		if !conv.IsActiveParticipant(userID) {
			continue
		}
		activity := conv.CreatedAt
		if last := s.lastMessageLocked(conv.ID); last != nil {
			activity = last.SentAt
		}
		entries = append(entries, entry{conv: copyConversation(conv), activity: activity})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].activity.Equal(entries[j].activity) {
			return entries[i].activity.After(entries[j].activity)
		}
		return entries[i].conv.ID < entries[j].conv.ID
	})

	out := make([]*domain.Conversation, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.conv)
	}
	return out, nil
}

func (s *Store) InvalidateConversation(context.Context, string) error {
	return nil
}

// ---- messages ----

func (s *Store) NextSequence(ctx context.Context, _ *sql.Tx, convID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sequences[convID]
	if !ok {
		return 0, domain.ErrConversationNotFound
	}
	next := cur + 1
	s.sequences[convID] = next

	// Only the latest claim can be returned without leaving a gap.
	onRollback(ctx, func() {
		if s.sequences[convID] == next {
			s.sequences[convID] = cur
		}
	})
	return next, nil
}

func (s *Store) InsertMessage(ctx context.Context, _ *sql.Tx, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[msg.ID]; exists {
		return domain.ErrAlreadyExists
	}
	stored := copyMessage(msg)
	s.messages[msg.ID] = stored

	list := s.byConversation[msg.ConversationID]
	i := sort.Search(len(list), func(i int) bool { return list[i].Sequence >= msg.Sequence })
	if i < len(list) && list[i].Sequence == msg.Sequence {
		delete(s.messages, msg.ID)
		return domain.ErrAlreadyExists
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = stored
	s.byConversation[msg.ConversationID] = list

	onRollback(ctx, func() {
		delete(s.messages, msg.ID)
		l := s.byConversation[msg.ConversationID]
		for k, m := range l {
			if m.ID == msg.ID {
				s.byConversation[msg.ConversationID] = append(l[:k], l[k+1:]...)
				break
			}
		}
	})
	return nil
}

func (s *Store) GetMessage(_ context.Context, _ *sql.Tx, messageID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return copyMessage(msg), nil
}

func (s *Store) GetMessageForUpdate(ctx context.Context, tx *sql.Tx, messageID string) (*domain.Message, error) {
	return s.GetMessage(ctx, tx, messageID)
}

func (s *Store) UpdateMessageContent(ctx context.Context, _ *sql.Tx, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.messages[msg.ID]
	if !ok {
		return domain.ErrMessageNotFound
	}
	prev := *stored
	stored.Content = msg.Content
	stored.Edited = true
	stored.EditedAt = msg.EditedAt

	onRollback(ctx, func() { *stored = prev })
	return nil
}

func (s *Store) MarkMessageDeleted(ctx context.Context, _ *sql.Tx, msgID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.messages[msgID]
	if !ok {
		return domain.ErrMessageNotFound
	}
	if stored.DeletedAt != nil {
		return nil
	}
	stored.DeletedAt = &at

	onRollback(ctx, func() { stored.DeletedAt = nil })
	return nil
}

func (s *Store) FetchMessagesBefore(_ context.Context, convID string, beforeSeq int64, limit int) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.byConversation[convID]
	end := len(list)
	if beforeSeq > 0 {
		end = sort.Search(len(list), func(i int) bool { return list[i].Sequence >= beforeSeq })
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	out := make([]*domain.Message, 0, end-start)
	for _, m := range list[start:end] {
		out = append(out, copyMessage(m))
	}
	return out, nil
}

func (s *Store) FetchMessagesAfter(_ context.Context, convID string, afterSeq int64, limit int) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.byConversation[convID]
	start := sort.Search(len(list), func(i int) bool { return list[i].Sequence > afterSeq })

	out := make([]*domain.Message, 0)
	for _, m := range list[start:] {
		if len(out) == limit {
			break
		}
		out = append(out, copyMessage(m))
	}
	return out, nil
}

func (s *Store) GetLastMessage(_ context.Context, convID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if last := s.lastMessageLocked(convID); last != nil {
		return copyMessage(last), nil
	}
	return nil, nil
}

func (s *Store) lastMessageLocked(convID string) *domain.Message {
	list := s.byConversation[convID]
	for i := len(list) - 1; i >= 0; i-- {
		if !list[i].IsDeleted() {
			return list[i]
		}
	}
	return nil
}

// ---- deliveries ----

func (s *Store) InsertDeliveries(ctx context.Context, _ *sql.Tx, records []domain.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		k := deliveryKey{rec.MessageID, rec.UserID}
		if _, exists := s.deliveries[k]; exists {
			continue
		}
		r := rec
		s.deliveries[k] = &r
		onRollback(ctx, func() { delete(s.deliveries, k) })
	}
	return nil
}

func (s *Store) AdvanceDelivery(ctx context.Context, _ *sql.Tx, messageID, userID string, to domain.DeliveryState, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.deliveries[deliveryKey{messageID, userID}]
	if !ok {
		return false, nil
	}
	prev := *rec
	if !rec.Advance(to, at) {
		return false, nil
	}
	onRollback(ctx, func() { *rec = prev })
	return true, nil
}

func (s *Store) AdvanceDeliveriesUpTo(ctx context.Context, _ *sql.Tx, convID, userID string, uptoSeq int64, to domain.DeliveryState, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, msg := range s.byConversation[convID] {
		if msg.Sequence > uptoSeq {
			break
		}
		rec, ok := s.deliveries[deliveryKey{msg.ID, userID}]
		if !ok {
			continue
		}
		prev := *rec
		if rec.Advance(to, at) {
			n++
			onRollback(ctx, func() { *rec = prev })
		}
	}
	return n, nil
}

func (s *Store) GetDelivery(_ context.Context, _ *sql.Tx, messageID, userID string) (*domain.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.deliveries[deliveryKey{messageID, userID}]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	out := *rec
	return &out, nil
}

func (s *Store) CountUnread(_ context.Context, convID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, msg := range s.byConversation[convID] {
		if msg.IsDeleted() {
			continue
		}
		if rec, ok := s.deliveries[deliveryKey{msg.ID, userID}]; ok && rec.State != domain.DeliveryRead {
			n++
		}
	}
	return n, nil
}

// ---- idempotency + outbox ----

func (s *Store) TryInsertIdempotency(ctx context.Context, _ *sql.Tx, key, userID, conversationID string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := idempotencyKey{key, userID, conversationID}
	prev, exists := s.idempotency[k]
	if exists && !prev.expiresAt.Before(time.Now()) {
		return false, nil
	}
	s.idempotency[k] = &idempotencyEntry{expiresAt: expiresAt}
	onRollback(ctx, func() {
		if exists {
			s.idempotency[k] = prev
			return
		}
		delete(s.idempotency, k)
	})
	return true, nil
}

func (s *Store) GetIdempotencyForUpdate(_ context.Context, _ *sql.Tx, key, userID, conversationID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.idempotency[idempotencyKey{key, userID, conversationID}]; ok {
		return e.payload, nil
	}
	return nil, nil
}

func (s *Store) UpdateIdempotencyResponse(ctx context.Context, _ *sql.Tx, key, userID, conversationID string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.idempotency[idempotencyKey{key, userID, conversationID}]; ok {
		prev := e.payload
		e.payload = payload
		onRollback(ctx, func() { e.payload = prev })
	}
	return nil
}

func (s *Store) DeleteExpiredIdempotency(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, e := range s.idempotency {
		if e.expiresAt.Before(now) {
			delete(s.idempotency, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertOutbox(ctx context.Context, _ *sql.Tx, aggregateType, aggregateID, eventType string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outbox = append(s.outbox, OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	})
	n := len(s.outbox)
	onRollback(ctx, func() {
		if len(s.outbox) == n {
			s.outbox = s.outbox[:n-1]
		}
	})
	return nil
}
