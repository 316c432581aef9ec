// Package fanout pushes events to the live connections subscribed to a
// conversation, on this instance and, through a Broker, on the others.
package fanout

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/observability"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub is the session registry. Publishing never blocks on a slow connection.
type Hub struct {
	instanceID string
	broker     Broker
	log        *zap.Logger

	mu           sync.RWMutex
	sessions     map[string]*Session            // connection id
	users        map[string]map[string]*Session // user id -> device id
	rooms        map[string]map[string]*Session // conversation id -> connection id
	sessionRooms map[string]map[string]struct{} // connection id -> conversation ids
}

func NewHub(instanceID string, broker Broker, log *zap.Logger) *Hub {
	if broker == nil {
		broker = NewLocalBroker()
	}
	return &Hub{
		instanceID:   instanceID,
		broker:       broker,
		log:          log,
		sessions:     make(map[string]*Session),
		users:        make(map[string]map[string]*Session),
		rooms:        make(map[string]map[string]*Session),
		sessionRooms: make(map[string]map[string]struct{}),
	}
}

// Start attaches the hub to its broker.
func (h *Hub) Start(ctx context.Context) error {
	return h.broker.Subscribe(ctx, h.handleEnvelope)
}

// Register tracks s. An existing session for the same user and device is
// detached and closed with CloseSessionReplaced.
func (h *Hub) Register(s *Session) {
	var previous *Session

	h.mu.Lock()
	devices := h.users[s.UserID]
	if devices == nil {
		devices = make(map[string]*Session)
		h.users[s.UserID] = devices
	}
	if old, ok := devices[s.DeviceID]; ok && old.ID != s.ID {
		previous = old
		h.detachLocked(old)
	}

	devices[s.DeviceID] = s
	h.sessions[s.ID] = s
	h.sessionRooms[s.ID] = make(map[string]struct{})
	h.mu.Unlock()

	observability.WebSocketConnections.Inc()

	if previous != nil {
		h.log.Info("hub: replacing existing connection",
			zap.String("user_id", s.UserID),
			zap.String("device_id", s.DeviceID),
			zap.String("old_connection_id", previous.ID),
			zap.String("connection_id", s.ID),
		)
		previous.CloseWithReason(CloseSessionReplaced, "session_replaced")
	}
}

// Subscribe adds s to the conversation room. It reports false for a session
// that is not registered.
func (h *Hub) Subscribe(conversationID string, s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.sessions[s.ID]; !ok || current != s {
		return false
	}

	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[string]*Session)
		h.rooms[conversationID] = room
	}
	room[s.ID] = s
	h.sessionRooms[s.ID][conversationID] = struct{}{}
	return true
}

func (h *Hub) Unsubscribe(conversationID string, s *Session) {
	h.mu.Lock()
	h.leaveLocked(conversationID, s.ID)
	h.mu.Unlock()
}

// UnsubscribeUser removes every session of userID from the conversation room.
func (h *Hub) UnsubscribeUser(conversationID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range h.users[userID] {
		h.leaveLocked(conversationID, s.ID)
	}
}

// Disconnect drops s from every room and closes it. A late call for a session
// that was already replaced leaves the replacement untouched.
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	h.detachLocked(s)
	h.mu.Unlock()

	s.Close()
}

// IsOnline reports whether userID has a live session on this instance.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

func (h *Hub) UserSessions(userID string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]*Session, 0, len(h.users[userID]))
	for _, s := range h.users[userID] {
		result = append(result, s)
	}
	return result
}

// Publish delivers ev to the subscribers of its conversation. Failures are
// logged and never returned: the event is already durable.
func (h *Hub) Publish(ctx context.Context, ev domain.Event) {
	log := observability.WithTrace(ctx, h.log)

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error("hub: failed to encode event", zap.String("event_type", string(ev.Type)), zap.Error(err))
		return
	}

	delivered := h.deliverLocal(ev, payload)
	observability.FanoutEventsTotal.WithLabelValues(string(ev.Type)).Inc()
	log.Debug("hub: event published",
		zap.String("event_type", string(ev.Type)),
		zap.String("conversation_id", ev.ConversationID),
		zap.Int("local_sessions", delivered),
	)

	if err := h.broker.Publish(ctx, Envelope{Origin: h.instanceID, Event: payload}); err != nil {
		log.Error("hub: remote routing failed",
			zap.String("conversation_id", ev.ConversationID),
			zap.Error(err),
		)
	}
}

// Close closes every session and detaches from the broker.
func (h *Hub) Close() error {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[string]*Session)
	h.users = make(map[string]map[string]*Session)
	h.rooms = make(map[string]map[string]*Session)
	h.sessionRooms = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, s := range sessions {
		observability.WebSocketConnections.Dec()
		s.CloseWithReason(websocket.CloseGoingAway, "server shutdown")
	}
	return h.broker.Close()
}

func (h *Hub) handleEnvelope(env Envelope) {
	if env.Origin == h.instanceID {
		return
	}
	var ev domain.Event
	if err := json.Unmarshal(env.Event, &ev); err != nil {
		h.log.Error("hub: invalid remote event", zap.String("origin", env.Origin), zap.Error(err))
		return
	}
	h.deliverLocal(ev, env.Event)
}

func (h *Hub) deliverLocal(ev domain.Event, payload []byte) int {
	h.mu.RLock()
	room := h.rooms[ev.ConversationID]
	targets := make([]*Session, 0, len(room))
	for _, s := range room {
		// Typing indicators are not echoed to the typist's own devices.
		if ev.Type == domain.EventTyping && s.UserID == ev.UserID {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.Buffer(ev, payload) || s.TrySend(payload) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) detachLocked(s *Session) {
	current, ok := h.sessions[s.ID]
	if !ok || current != s {
		return
	}
	delete(h.sessions, s.ID)

	if devices, ok := h.users[s.UserID]; ok {
		if d, ok := devices[s.DeviceID]; ok && d.ID == s.ID {
			delete(devices, s.DeviceID)
			if len(devices) == 0 {
				delete(h.users, s.UserID)
			}
		}
	}

	for roomID := range h.sessionRooms[s.ID] {
		h.leaveLocked(roomID, s.ID)
	}
	delete(h.sessionRooms, s.ID)
	observability.WebSocketConnections.Dec()
}

func (h *Hub) leaveLocked(conversationID, sessionID string) {
	room := h.rooms[conversationID]
	if room == nil {
		return
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
	if memberships, ok := h.sessionRooms[sessionID]; ok {
		delete(memberships, conversationID)
	}
}
