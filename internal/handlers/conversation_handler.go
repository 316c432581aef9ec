package handlers

import (
	"net/http"

	"github.com/SARVESHVARADKAR123/RealChat/internal/application"
	"github.com/SARVESHVARADKAR123/RealChat/internal/middleware"
	"github.com/SARVESHVARADKAR123/RealChat/internal/transport"
	"github.com/go-chi/chi/v5"
)

// ConversationHandler serves conversation, participant and receipt routes.
type ConversationHandler struct {
	svc *application.Service
}

func NewConversationHandler(svc *application.Service) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type createDirectRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

type createGroupRequest struct {
	Title     string   `json:"title" validate:"max=255"`
	MemberIDs []string `json:"member_ids" validate:"required,min=1,dive,required,max=128"`
}

type participantRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

type readUpToRequest struct {
	Sequence int64 `json:"sequence" validate:"required,gt=0"`
}

type conversationList struct {
	Conversations []*application.ConversationSummary `json:"conversations"`
}

// CreateDirect POST /api/conversations/direct
func (h *ConversationHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	var req createDirectRequest
	if !decode(w, r, &req) {
		return
	}

	conv, err := h.svc.CreateOrGetDirectConversation(r.Context(), middleware.UserID(r.Context()), req.UserID)
	if err != nil {
		transport.Error(r.Context(), w, err)
		return
	}
	transport.WriteJSON(r.Context(), w, http.StatusOK, conv)
}

// CreateGroup POST /api/conversations/group
func (h *ConversationHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if !decode(w, r, &req) {
		return
	}

	conv, err := h.svc.CreateGroupConversation(r.Context(), middleware.UserID(r.Context()), req.Title, req.MemberIDs)
	if err != nil {
		transport.Error(r.Context(), w, err)
		return
	}
	transport.WriteJSON(r.Context(), w, http.StatusCreated, conv)
}

// List GET /api/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	convs, err := h.svc.ListConversations(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		transport.Error(r.Context(), w, err)
		return
	}
	if convs == nil {
		convs = []*application.ConversationSummary{}
	}
	transport.WriteJSON(r.Context(), w, http.StatusOK, conversationList{Conversations: convs})
}

// Get GET /api/conversations/{conversationID}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.GetConversation(r.Context(), conversationID(r), middleware.UserID(r.Context()))
	if err != nil {
		transport.Error(r.Context(), w, err)
		return
	}
	transport.WriteJSON(r.Context(), w, http.StatusOK, summary)
}

// Delete DELETE /api/conversations/{conversationID}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteConversation(r.Context(), conversationID(r), middleware.UserID(r.Context())); err != nil {
		transport.Error(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddParticipant POST /api/conversations/{conversationID}/participants
func (h *ConversationHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if !decode(w, r, &req) {
		return
	}

	conv, err := h.svc.AddParticipant(r.Context(), conversationID(r), middleware.UserID(r.Context()), req.UserID)
	if err != nil {
		transport.Error(r.Context(), w, err)
		return
	}
	transport.WriteJSON(r.Context(), w, http.StatusOK, conv)
}

// RemoveParticipant DELETE /api/conversations/{conversationID}/participants/{userID}
func (h *ConversationHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	conv, err := h.svc.RemoveParticipant(r.Context(), conversationID(r), middleware.UserID(r.Context()), chi.URLParam(r, "userID"))
	if err != nil {
		transport.Error(r.Context(), w, err)
		return
	}
	transport.WriteJSON(r.Context(), w, http.StatusOK, conv)
}

// MarkRead POST /api/conversations/{conversationID}/read
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req readUpToRequest
	if !decode(w, r, &req) {
		return
	}

	updated, err := h.svc.MarkConversationRead(r.Context(), conversationID(r), middleware.UserID(r.Context()), req.Sequence)
	if err != nil {
		transport.Error(r.Context(), w, err)
		return
	}
	transport.WriteJSON(r.Context(), w, http.StatusOK, map[string]int64{"updated": updated})
}

// Unread GET /api/conversations/{conversationID}/unread
func (h *ConversationHandler) Unread(w http.ResponseWriter, r *http.Request) {
	convID := conversationID(r)
	count, err := h.svc.UnreadCount(r.Context(), convID, middleware.UserID(r.Context()))
	if err != nil {
		transport.Error(r.Context(), w, err)
		return
	}
	transport.WriteJSON(r.Context(), w, http.StatusOK, map[string]interface{}{
		"conversation_id": convID,
		"unread_count":    count,
	})
}

// Typing POST /api/conversations/{conversationID}/typing
func (h *ConversationHandler) Typing(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SendTyping(r.Context(), conversationID(r), middleware.UserID(r.Context())); err != nil {
		transport.Error(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
