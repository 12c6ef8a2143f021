// Package api provides assistant directory handlers for sindico endpoints.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sindicoapp/sindico/internal/models"
)

// listAssistantsHandler handles GET /api/assistants. The listing is served
// from the local mirror; refresh=true syncs from the provider first.
func (s *Server) listAssistantsHandler(w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(r.URL.Query().Get("refresh"), "true") {
		if _, err := s.syncAssistants(r); err != nil {
			slog.Error("Server.listAssistantsHandler: refresh failed", "error", err)
			writeJSONResponse(w, http.StatusBadGateway, models.Error("Falha ao atualizar a lista de assistentes"))
			return
		}
	}

	limit, offset := pagination(r)
	assistants, total, err := s.st.ListAssistants(limit, offset, r.URL.Query().Get("search"))
	if err != nil {
		slog.Error("Server.listAssistantsHandler: listing failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Falha ao listar assistentes"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"assistants": assistants,
		"total":      total,
	}))
}

// getAssistantHandler handles GET /api/assistants/{id}. A miss in the local
// mirror falls through to the provider and caches the result.
func (s *Server) getAssistantHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	assistant, err := s.st.GetAssistant(id)
	if err != nil {
		slog.Error("Server.getAssistantHandler: lookup failed", "id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Falha ao buscar assistente"))
		return
	}
	if assistant == nil {
		remote, err := s.client.GetAssistant(r.Context(), id)
		if err != nil || remote == nil {
			slog.Warn("Server.getAssistantHandler: assistant not found", "id", id, "error", err)
			writeJSONResponse(w, http.StatusNotFound, models.Error("Assistente não encontrado"))
			return
		}
		if err := s.st.SaveAssistant(*remote); err != nil {
			slog.Error("Server.getAssistantHandler: failed to cache assistant", "id", id, "error", err)
		}
		assistant = remote
	}

	writeJSONResponse(w, http.StatusOK, models.Success(assistant))
}

// deleteAssistantHandler handles DELETE /api/assistants/{id}. Only the local
// mirror entry is removed; the provider directory is untouched.
func (s *Server) deleteAssistantHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.st.DeleteAssistant(id); err != nil {
		slog.Error("Server.deleteAssistantHandler: delete failed", "id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Falha ao remover assistente"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Assistente removido", nil))
}

// syncAssistantsHandler handles POST /api/assistants/sync.
func (s *Server) syncAssistantsHandler(w http.ResponseWriter, r *http.Request) {
	count, err := s.syncAssistants(r)
	if err != nil {
		slog.Error("Server.syncAssistantsHandler: sync failed", "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Falha ao sincronizar assistentes"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Assistentes sincronizados", map[string]interface{}{
		"count": count,
	}))
}

// syncAssistants pulls the provider directory into the local mirror.
func (s *Server) syncAssistants(r *http.Request) (int, error) {
	assistants, err := s.client.ListAssistants(r.Context())
	if err != nil {
		return 0, err
	}
	count := 0
	for _, a := range assistants {
		if err := s.st.SaveAssistant(a); err != nil {
			slog.Error("Server.syncAssistants: failed to save assistant", "id", a.ID, "error", err)
			continue
		}
		count++
	}
	slog.Info("Server.syncAssistants: directory synced", "count", count)
	return count, nil
}
