package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/convinceme/convince-server-go/internal/middleware"
	"github.com/convinceme/convince-server-go/internal/repository"
	"github.com/convinceme/convince-server-go/internal/service"
)

type MessageHandler struct {
	attemptService *service.AttemptService
	responder      *service.ResponderService
	messageRepo    repository.MessageRepository
	aiResponseRepo repository.AIResponseRepository
}

func NewMessageHandler(
	attemptService *service.AttemptService,
	responder *service.ResponderService,
	messageRepo repository.MessageRepository,
	aiResponseRepo repository.AIResponseRepository,
) *MessageHandler {
	return &MessageHandler{
		attemptService: attemptService,
		responder:      responder,
		messageRepo:    messageRepo,
		aiResponseRepo: aiResponseRepo,
	}
}

type createMessageRequest struct {
	AttemptID string `json:"attemptId"`
	Body      string `json:"body"`
}

// POST /v1/messages
func (h *MessageHandler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	convincer := middleware.GetConvincer(r.Context())

	var req createMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.attemptService.SubmitMessage(r.Context(), convincer.ID, req.AttemptID, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

type createAIResponseRequest struct {
	AttemptID       string `json:"attemptId"`
	MessageID       string `json:"messageId"`
	Delta           int    `json:"delta"`
	ConvincingScore int    `json:"convincingScore"`
}

// POST /v1/ai-responses
//
// Immediate write path for a generated response; also what a client uses
// to retry a reply it believes was lost.
func (h *MessageHandler) CreateAIResponse(w http.ResponseWriter, r *http.Request) {
	convincer := middleware.GetConvincer(r.Context())

	var req createAIResponseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.attemptService.AuthorizeSubscription(r.Context(), convincer.ID, req.AttemptID); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.responder.Respond(r.Context(), req.AttemptID, req.MessageID, req.Delta, req.ConvincingScore)
	if err != nil {
		writeError(w, err)
		return
	}
	if resp == nil {
		// The attempt already left active; the reply is dropped.
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "Attempt is not active",
		})
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// GET /v1/attempts/{attemptID}/messages
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	convincer := middleware.GetConvincer(r.Context())
	attemptID := chi.URLParam(r, "attemptID")

	if err := h.attemptService.AuthorizeSubscription(r.Context(), convincer.ID, attemptID); err != nil {
		writeError(w, err)
		return
	}

	limit, offset := parsePagination(r)
	msgs, err := h.messageRepo.FindByAttemptID(r.Context(), attemptID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// GET /v1/attempts/{attemptID}/ai-responses
func (h *MessageHandler) ListAIResponses(w http.ResponseWriter, r *http.Request) {
	convincer := middleware.GetConvincer(r.Context())
	attemptID := chi.URLParam(r, "attemptID")

	if err := h.attemptService.AuthorizeSubscription(r.Context(), convincer.ID, attemptID); err != nil {
		writeError(w, err)
		return
	}

	limit, offset := parsePagination(r)
	resps, err := h.aiResponseRepo.FindByAttemptID(r.Context(), attemptID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"aiResponses": resps})
}
