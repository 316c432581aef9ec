package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/application"
	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/fanout"
	"github.com/SARVESHVARADKAR123/RealChat/internal/middleware"
	"github.com/SARVESHVARADKAR123/RealChat/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/internal/transport"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameTyping      = "typing"
	frameDelivered   = "delivered"
	frameRead        = "read"
	frameResume      = "resume"

	frameWelcome       = "welcome"
	frameResumeMessage = "resume.message"
	frameResumeDone    = "resume.done"
	frameError         = "error"

	maxFrameBytes  = 64 << 10
	frameTimeout   = 10 * time.Second
	resumePageSize = 100
)

// clientFrame is a command sent by a connected client.
type clientFrame struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversation_id,omitempty"`
	MessageID      string           `json:"message_id,omitempty"`
	Sequence       int64            `json:"sequence,omitempty"`
	LastSequences  map[string]int64 `json:"last_sequences,omitempty"`
}

type serverFrame struct {
	Type           string          `json:"type"`
	ConnectionID   string          `json:"connection_id,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Message        *domain.Message `json:"message,omitempty"`
	Ref            string          `json:"ref,omitempty"`
	Error          string          `json:"error,omitempty"`
	Detail         string          `json:"detail,omitempty"`
}

// RealtimeHandler upgrades authenticated requests to websocket sessions.
type RealtimeHandler struct {
	svc      *application.Service
	upgrader websocket.Upgrader
}

func NewRealtimeHandler(svc *application.Service, allowedOrigins []string) *RealtimeHandler {
	return &RealtimeHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || lo.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(allowed, origin)
	}
}

// ServeHTTP GET /ws?device_id=...
func (h *RealtimeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		transport.WriteError(r.Context(), w, http.StatusBadRequest, errInvalidParams, "missing device_id")
		return
	}

	log := observability.GetLogger(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := fanout.NewSession(uuid.NewString(), userID, deviceID, conn, log)
	h.svc.Connect(session)
	session.Start()
	log.Info("connected",
		zap.String("connection_id", session.ID),
		zap.String("user_id", userID),
		zap.String("device_id", deviceID),
	)

	send(session, serverFrame{Type: frameWelcome, ConnectionID: session.ID})

	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(fanout.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(fanout.PongWait))
	})

	h.readLoop(context.WithoutCancel(r.Context()), conn, session)
}

func (h *RealtimeHandler) readLoop(ctx context.Context, conn *websocket.Conn, s *fanout.Session) {
	log := observability.GetLogger(ctx).With(zap.String("connection_id", s.ID))
	defer func() {
		h.svc.Disconnect(s)
		log.Info("disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn("read loop error", zap.Error(err))
			}
			return
		}
		if s.Closed() {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			send(s, serverFrame{Type: frameError, Error: errInvalidBody, Detail: msgInvalidJSON})
			continue
		}
		h.handleFrame(ctx, s, frame)
	}
}

func (h *RealtimeHandler) handleFrame(ctx context.Context, s *fanout.Session, f clientFrame) {
	if f.Type == frameResume {
		h.resume(ctx, s, f.LastSequences)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, frameTimeout)
	defer cancel()

	var err error
	switch f.Type {
	case frameSubscribe:
		err = h.svc.Subscribe(ctx, s, f.ConversationID)
	case frameUnsubscribe:
		h.svc.Unsubscribe(s, f.ConversationID)
	case frameTyping:
		err = h.svc.SendTyping(ctx, f.ConversationID, s.UserID)
	case frameDelivered:
		err = h.svc.MarkDelivered(ctx, f.MessageID, s.UserID)
	case frameRead:
		if f.MessageID != "" {
			err = h.svc.MarkRead(ctx, f.MessageID, s.UserID)
		} else {
			_, err = h.svc.MarkConversationRead(ctx, f.ConversationID, s.UserID, f.Sequence)
		}
	default:
		send(s, serverFrame{Type: frameError, Ref: f.Type, Error: errInvalidParams, Detail: "unknown frame type"})
		return
	}

	if err != nil {
		code, detail := transport.ErrorCode(err)
		send(s, serverFrame{Type: frameError, Ref: f.Type, ConversationID: f.ConversationID, Error: code, Detail: detail})
	}
}

// resume subscribes s to every conversation it belongs to, replays what the
// client missed after its last known sequences, and then releases the live
// events that arrived meanwhile.
func (h *RealtimeHandler) resume(ctx context.Context, s *fanout.Session, lastSequences map[string]int64) {
	s.BeginResume()

	log := observability.GetLogger(ctx).With(zap.String("connection_id", s.ID))

	toSync := make(map[string]int64, len(lastSequences))
	for convID, seq := range lastSequences {
		toSync[convID] = seq
	}

	convs, err := h.svc.ListConversations(ctx, s.UserID)
	if err != nil {
		log.Error("resume: error listing conversations", zap.Error(err))
	}
	for _, c := range convs {
		if _, ok := toSync[c.ID]; !ok {
			toSync[c.ID] = 0
		}
	}

	convIDs := lo.Keys(toSync)
	sort.Strings(convIDs)

	for _, convID := range convIDs {
		if err := h.svc.Subscribe(ctx, s, convID); err != nil {
			code, detail := transport.ErrorCode(err)
			send(s, serverFrame{Type: frameError, Ref: frameResume, ConversationID: convID, Error: code, Detail: detail})
			continue
		}
		h.syncConversation(ctx, s, convID, toSync[convID])
	}

	s.FlushBufferSorted()
	send(s, serverFrame{Type: frameResumeDone})
}

func (h *RealtimeHandler) syncConversation(ctx context.Context, s *fanout.Session, convID string, after int64) {
	for {
		msgs, err := h.svc.SyncMessages(ctx, convID, s.UserID, after, resumePageSize)
		if err != nil {
			observability.GetLogger(ctx).Error("resume: error syncing messages",
				zap.String("conversation_id", convID), zap.Error(err))
			return
		}

		for _, m := range msgs {
			payload, err := json.Marshal(serverFrame{Type: frameResumeMessage, ConversationID: convID, Message: m})
			if err != nil || !s.Send(ctx, payload) {
				return
			}
			if m.Sequence > after {
				after = m.Sequence
			}
		}

		if len(msgs) < resumePageSize {
			return
		}
	}
}

func send(s *fanout.Session, f serverFrame) bool {
	payload, err := json.Marshal(f)
	if err != nil {
		return false
	}
	return s.TrySend(payload)
}
