package handlers

import (
	"net/http"

	"github.com/SARVESHVARADKAR123/RealChat/internal/application"
	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/middleware"
	"github.com/SARVESHVARADKAR123/RealChat/internal/transport"
)

// IdempotencyKeyHeader may carry the idempotency key instead of the body.
const IdempotencyKeyHeader = "Idempotency-Key"

type MessageHandler struct {
	svc *application.Service
}

func NewMessageHandler(svc *application.Service) *MessageHandler {
	return &MessageHandler{svc: svc}
}

type sendMessageRequest struct {
	Type           string `json:"type" validate:"omitempty,oneof=text image video voice file call_log"`
	Content        string `json:"content"`
	MediaURL       string `json:"media_url" validate:"omitempty,url"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=128"`
}

type editMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type messageList struct {
	Messages []*domain.Message `json:"messages"`
}

// List GET /api/conversations/{conversationID}/messages?limit&before&after
//
// With after set, messages newer than that sequence are returned oldest
// first (catch-up). Otherwise the most recent page before `before` is
// returned, also oldest first.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	convID := conversationID(r)

	limit, err := queryInt64(r, "limit", 0)
	if err != nil {
		transport.WriteError(r.Context(), w, http.StatusBadRequest, errInvalidParams, err.Error())
		return
	}
	before, err := queryInt64(r, "before", 0)
	if err != nil {
		transport.WriteError(r.Context(), w, http.StatusBadRequest, errInvalidParams, err.Error())
		return
	}

	var msgs []*domain.Message
	if r.URL.Query().Has("after") {
		after, perr := queryInt64(r, "after", 0)
		if perr != nil {
			transport.WriteError(r.Context(), w, http.StatusBadRequest, errInvalidParams, perr.Error())
			return
		}
		msgs, err = h.svc.SyncMessages(r.Context(), convID, userID, after, int(limit))
	} else {
		msgs, err = h.svc.GetMessages(r.Context(), convID, userID, int(limit), before)
	}
	if err != nil {
		transport.Error(r.Context(), w, err)
		return
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	transport.WriteJSON(r.Context(), w, http.StatusOK, messageList{Messages: msgs})
}

// Send POST /api/conversations/{conversationID}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decode(w, r, &req) {
		return
	}

	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get(IdempotencyKeyHeader)
	}

	msg, err := h.svc.SendMessage(r.Context(), application.SendMessageCommand{
		ConversationID: conversationID(r),
		UserID:         middleware.UserID(r.Context()),
		IdempotencyKey: key,
		Type:           req.Type,
		Content:        req.Content,
		MediaURL:       req.MediaURL,
	})
	if err != nil {
		transport.Error(r.Context(), w, err)
		return
	}
	transport.WriteJSON(r.Context(), w, http.StatusCreated, msg)
}

// Edit PATCH /api/messages/{messageID}
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req editMessageRequest
	if !decode(w, r, &req) {
		return
	}

	msg, err := h.svc.EditMessage(r.Context(), messageID(r), middleware.UserID(r.Context()), req.Content)
	if err != nil {
		transport.Error(r.Context(), w, err)
		return
	}
	transport.WriteJSON(r.Context(), w, http.StatusOK, msg)
}

// Delete DELETE /api/messages/{messageID}
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteMessage(r.Context(), messageID(r), middleware.UserID(r.Context())); err != nil {
		transport.Error(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkRead POST /api/messages/{messageID}/read
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkRead(r.Context(), messageID(r), middleware.UserID(r.Context())); err != nil {
		transport.Error(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkDelivered POST /api/messages/{messageID}/delivered
func (h *MessageHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkDelivered(r.Context(), messageID(r), middleware.UserID(r.Context())); err != nil {
		transport.Error(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
