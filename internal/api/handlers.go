// Package api provides HTTP handlers for sindico endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sindicoapp/sindico/internal/document"
	"github.com/sindicoapp/sindico/internal/flow"
	"github.com/sindicoapp/sindico/internal/media"
	"github.com/sindicoapp/sindico/internal/models"
	"github.com/sindicoapp/sindico/internal/util"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing.
const maxUploadMemory = 8 << 20

type chatRequest struct {
	AssistantID string `json:"assistant_id"`
	UserID      string `json:"user_id"`
	Message     string `json:"message"`
}

type chatResponse struct {
	Messages  []string                  `json:"messages"`
	Document  *models.ParsedDocument    `json:"documento,omitempty"`
	Generated *models.GeneratedDocument `json:"documento_gerado,omitempty"`
	FlowDone  bool                      `json:"fluxo_concluido,omitempty"`
}

func (r *chatRequest) validate() error {
	if r.UserID == "" {
		return models.ErrEmptyUserID
	}
	if r.AssistantID == "" {
		return models.ErrEmptyAssistantID
	}
	if r.Message == "" {
		return models.ErrEmptyMessage
	}
	return nil
}

// chatHandler handles POST /api/chat. A message either advances the active
// guided flow, starts one when it carries a document intent, or goes to the
// bound assistant thread as a regular chat turn.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.validate(); err != nil {
		slog.Warn("Server.chatHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	assistantName := s.assistantName(req.AssistantID)
	s.appendHistory(req.UserID, req.AssistantID, assistantName, req.Message, true)

	active, err := s.engine.Active(req.UserID, req.AssistantID)
	if err != nil {
		slog.Error("Server.chatHandler: failed to check flow state", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Falha ao consultar o estado da conversa"))
		return
	}

	var resp chatResponse
	switch {
	case active:
		result, err := s.engine.HandleMessage(r.Context(), req.UserID, req.AssistantID, req.Message)
		if err != nil {
			slog.Error("Server.chatHandler: flow step failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Falha ao processar a resposta do fluxo"))
			return
		}
		resp = chatResponse{Messages: result.Messages, Generated: result.Document, FlowDone: result.Done}

	case s.detector.Detect(req.Message) != "":
		docType := s.detector.Detect(req.Message)
		result, err := s.engine.Start(r.Context(), req.UserID, req.AssistantID, docType)
		if err != nil {
			slog.Error("Server.chatHandler: failed to start flow", "docType", docType, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Falha ao iniciar o fluxo guiado"))
			return
		}
		resp = chatResponse{Messages: result.Messages}

	default:
		display, parsed, err := s.assistantTurn(r, req)
		if err != nil {
			slog.Error("Server.chatHandler: assistant turn failed", "error", err)
			writeJSONResponse(w, http.StatusBadGateway, models.Error("Erro ao processar a mensagem"))
			return
		}
		resp = chatResponse{Messages: []string{display}, Document: parsed}
	}

	for _, msg := range resp.Messages {
		s.appendHistory(req.UserID, req.AssistantID, assistantName, msg, false)
	}
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// assistantTurn sends a free-form message to the assistant thread bound to
// the pair, creating the thread on first use.
func (s *Server) assistantTurn(r *http.Request, req chatRequest) (string, *models.ParsedDocument, error) {
	ctx := r.Context()

	threadID, err := s.st.GetThreadID(req.UserID, req.AssistantID)
	if err != nil {
		return "", nil, err
	}
	if threadID == "" {
		threadID, err = s.client.CreateThread(ctx)
		if err != nil {
			return "", nil, err
		}
		if err := s.st.SaveThreadID(req.UserID, req.AssistantID, threadID); err != nil {
			return "", nil, err
		}
	}

	reply, err := s.client.RunAssistant(ctx, threadID, req.AssistantID, req.Message)
	if err != nil {
		return "", nil, err
	}

	display, parsed := document.ParseReply(document.CleanReply(reply))
	return display, parsed, nil
}

// generateDocumentHandler handles POST /api/documents/generate: a direct
// generation request carrying the already collected values.
func (s *Server) generateDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req models.DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.generateDocumentHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.generateDocumentHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	body, err := s.pipeline.Generate(r.Context(), document.GenerateRequest{
		Type:        req.Type,
		AssistantID: req.AssistantID,
		Occurrence:  document.OccurrenceFromValues(req.Data),
	})
	if err != nil {
		slog.Error("Server.generateDocumentHandler: generation failed", "error", err)
		if errors.Is(err, document.ErrGenerationFailed) {
			writeJSONResponse(w, http.StatusBadGateway, models.Error(document.GenerationFailureMessage))
			return
		}
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Falha ao gerar o documento"))
		return
	}

	doc := models.GeneratedDocument{
		ID:          util.GenerateUploadID(),
		Type:        req.Type,
		UserID:      req.UserID,
		AssistantID: req.AssistantID,
		Body:        body,
		Date:        document.FormatDate(req.Data["data"]),
		Value:       req.Data["valor"],
		Description: req.Data["descricao"],
		CreatedAt:   time.Now(),
	}
	if err := s.st.SaveDocument(doc); err != nil {
		slog.Error("Server.generateDocumentHandler: failed to persist document", "documentID", doc.ID, "error", err)
	}

	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Documento gerado com sucesso!", doc))
}

// listDocumentsHandler handles GET /api/documents with pagination and search.
func (s *Server) listDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}
	limit, offset := pagination(r)

	docs, total, err := s.st.ListDocuments(userID, limit, offset, r.URL.Query().Get("search"))
	if err != nil {
		slog.Error("Server.listDocumentsHandler: listing failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Falha ao listar documentos"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"documentos": docs,
		"total":      total,
	}))
}

// uploadImagesHandler handles POST /api/documents/{id}/images. Files arrive
// as multipart form data. When the requester has an active flow on its image
// step the stored batch is attached to the flow as well.
func (s *Server) uploadImagesHandler(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		slog.Warn("Server.uploadImagesHandler: invalid multipart form", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid multipart form"))
		return
	}

	var uploads []media.Upload
	var names []string
	for _, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				slog.Warn("Server.uploadImagesHandler: failed to open part", "name", fh.Filename, "error", err)
				continue
			}
			defer f.Close()
			uploads = append(uploads, media.Upload{
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Size:        fh.Size,
				Data:        f,
			})
			names = append(names, fh.Filename)
		}
	}

	set, rejected, err := s.media.Store(documentID, uploads)
	if err != nil {
		if errors.Is(err, models.ErrTooManyImages) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrTooManyImages.Error()))
			return
		}
		slog.Error("Server.uploadImagesHandler: storage failed", "documentID", documentID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Falha ao armazenar as imagens"))
		return
	}
	if set.Total == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Nenhuma imagem válida foi enviada"))
		return
	}

	resp := map[string]interface{}{
		"imagens":    set.Images,
		"total":      set.Total,
		"rejeitadas": rejected,
	}

	userID := r.FormValue("user_id")
	assistantID := r.FormValue("assistant_id")
	if userID != "" && assistantID != "" {
		if result := s.attachToFlow(r, userID, assistantID, names); result != nil {
			resp["messages"] = result.Messages
			if result.Document != nil {
				resp["documento_gerado"] = result.Document
			}
		}
	}

	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// attachToFlow feeds stored image names into an active flow image step.
// A missing flow is not an error; the upload stands on its own.
func (s *Server) attachToFlow(r *http.Request, userID, assistantID string, names []string) *flow.Result {
	result, err := s.engine.AttachImages(r.Context(), userID, assistantID, names)
	if err != nil {
		if !errors.Is(err, models.ErrFlowNotActive) {
			slog.Warn("Server.attachToFlow: attach failed", "userID", userID, "error", err)
		}
		return nil
	}
	return result
}

type skipImagesRequest struct {
	UserID      string `json:"user_id"`
	AssistantID string `json:"assistant_id"`
}

// skipImagesHandler handles POST /api/flows/skip-images: the user chose to
// finish the flow without attaching evidence.
func (s *Server) skipImagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req skipImagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserID == "" || req.AssistantID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id and assistant_id are required"))
		return
	}

	result, err := s.engine.SkipImages(r.Context(), req.UserID, req.AssistantID)
	if err != nil {
		if errors.Is(err, models.ErrFlowNotActive) {
			writeJSONResponse(w, http.StatusConflict, models.Error(models.ErrFlowNotActive.Error()))
			return
		}
		slog.Error("Server.skipImagesHandler: skip failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Falha ao avançar o fluxo"))
		return
	}

	assistantName := s.assistantName(req.AssistantID)
	for _, msg := range result.Messages {
		s.appendHistory(req.UserID, req.AssistantID, assistantName, msg, false)
	}
	writeJSONResponse(w, http.StatusOK, models.Success(chatResponse{
		Messages:  result.Messages,
		Generated: result.Document,
		FlowDone:  result.Done,
	}))
}

type resetThreadRequest struct {
	UserID      string `json:"user_id"`
	AssistantID string `json:"assistant_id"`
}

// resetThreadHandler handles POST /api/threads/reset: drops the assistant
// thread binding and abandons any active flow for the pair.
func (s *Server) resetThreadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req resetThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserID == "" || req.AssistantID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id and assistant_id are required"))
		return
	}

	if err := s.st.DeleteThreadID(req.UserID, req.AssistantID); err != nil {
		slog.Error("Server.resetThreadHandler: failed to clear thread binding", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Falha ao reiniciar a conversa"))
		return
	}
	if err := s.engine.Reset(req.UserID, req.AssistantID); err != nil {
		slog.Error("Server.resetThreadHandler: failed to clear flow state", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Falha ao reiniciar a conversa"))
		return
	}

	slog.Info("Server.resetThreadHandler: conversation reset", "userID", req.UserID, "assistantID", req.AssistantID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Conversa reiniciada", nil))
}

// appendHistory records a chat turn, tolerating storage failures so a cache
// problem never breaks the conversation.
func (s *Server) appendHistory(userID, assistantID, assistantName, text string, isUser bool) {
	err := s.st.AppendMessage(userID, assistantID, assistantName, models.ChatMessage{
		Text:      text,
		IsUser:    isUser,
		Timestamp: time.Now(),
	})
	if err != nil {
		slog.Error("Server.appendHistory: failed to record message", "userID", userID, "error", err)
	}
}

// assistantName resolves the display name for history entries.
func (s *Server) assistantName(assistantID string) string {
	assistant, err := s.st.GetAssistant(assistantID)
	if err != nil || assistant == nil {
		return "Assistente"
	}
	return assistant.Name
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}
