package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloudzz-dev/rosterchat/internal/models"
)

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.MessageRequest
	if !decodeValid(w, r, &req) {
		return
	}
	msg, err := s.store.SaveMessage(r.Context(), currentUserID(r), req.ReceiverID, req.Content)
	if err != nil {
		writeStoreError(w, "send message", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.Conversation(r.Context(), currentUserID(r), chi.URLParam(r, "userId"))
	if err != nil {
		writeStoreError(w, "conversation", err)
		return
	}
	writeMessages(w, msgs)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	msg, err := s.store.MarkRead(r.Context(), chi.URLParam(r, "messageId"))
	if err != nil {
		writeStoreError(w, "mark read", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.Unread(r.Context(), currentUserID(r))
	if err != nil {
		writeStoreError(w, "unread", err)
		return
	}
	writeMessages(w, msgs)
}

func (s *Server) handleChatUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.Partners(r.Context(), currentUserID(r))
	if err != nil {
		writeStoreError(w, "chat users", err)
		return
	}
	writeUsers(w, users)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	since, err := models.ParseTimestamp(r.URL.Query().Get("timestamp"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid timestamp")
		return
	}
	msgs, err := s.store.MessagesSince(r.Context(), currentUserID(r), since)
	if err != nil {
		writeStoreError(w, "poll", err)
		return
	}
	writeMessages(w, msgs)
}

func writeMessages(w http.ResponseWriter, msgs []models.Message) {
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}
