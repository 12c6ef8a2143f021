// Package api provides conversation history handlers for sindico endpoints.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sindicoapp/sindico/internal/models"
)

// conversationSummary is one row in the recent conversations list.
type conversationSummary struct {
	AssistantID   string    `json:"assistant_id"`
	AssistantName string    `json:"assistant_name"`
	LastUpdate    time.Time `json:"last_update"`
	MessageCount  int       `json:"message_count"`
}

// listConversationsHandler handles GET /api/conversations?user_id=...: the
// user's cached conversations, most recently updated first.
func (s *Server) listConversationsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}

	conversations, err := s.st.ListConversations(userID)
	if err != nil {
		slog.Error("Server.listConversationsHandler: listing failed", "userID", userID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Falha ao listar conversas"))
		return
	}

	summaries := make([]conversationSummary, 0, len(conversations))
	for _, c := range conversations {
		summaries = append(summaries, conversationSummary{
			AssistantID:   c.AssistantID,
			AssistantName: c.AssistantName,
			LastUpdate:    c.LastUpdate,
			MessageCount:  len(c.Messages),
		})
	}
	writeJSONResponse(w, http.StatusOK, models.Success(summaries))
}

// getConversationHandler handles GET /api/conversations/{assistantID}: the
// cached message history with one assistant.
func (s *Server) getConversationHandler(w http.ResponseWriter, r *http.Request) {
	assistantID := chi.URLParam(r, "assistantID")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}

	conversation, err := s.st.GetConversation(userID, assistantID)
	if err != nil {
		slog.Error("Server.getConversationHandler: lookup failed", "userID", userID, "assistantID", assistantID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Falha ao buscar conversa"))
		return
	}
	if conversation == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversa não encontrada"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(conversation))
}
