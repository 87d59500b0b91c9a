package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/convinceme/convince-server-go/internal/errors"
	"github.com/convinceme/convince-server-go/internal/middleware"
	"github.com/convinceme/convince-server-go/internal/model"
	"github.com/convinceme/convince-server-go/internal/service"
)

type AttemptHandler struct {
	attemptService *service.AttemptService
}

func NewAttemptHandler(attemptService *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{attemptService: attemptService}
}

// POST /v1/attempts
func (h *AttemptHandler) StartOrResume(w http.ResponseWriter, r *http.Request) {
	convincer := middleware.GetConvincer(r.Context())

	result, err := h.attemptService.StartOrResume(r.Context(), convincer.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Resumed {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

type updateAttemptRequest struct {
	Status           string `json:"status"`
	SecondsUnflushed int    `json:"seconds_unflushed,omitempty"`
}

// PATCH /v1/attempts/{attemptID}
//
// The client drives three transitions here: an explicit stop, the
// countdown's zero-crossing check, and the win-completion retry.
func (h *AttemptHandler) Update(w http.ResponseWriter, r *http.Request) {
	convincer := middleware.GetConvincer(r.Context())
	attemptID := chi.URLParam(r, "attemptID")

	var req updateAttemptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	switch model.AttemptStatus(req.Status) {
	case model.AttemptStatusAbandoned:
		attempt, err := h.attemptService.Abandon(r.Context(), convincer.ID, attemptID, req.SecondsUnflushed)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"attempt": attempt})

	case model.AttemptStatusExpired:
		result, err := h.attemptService.ExpireCheck(r.Context(), convincer.ID, attemptID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case model.AttemptStatusCompleted:
		attempt, err := h.attemptService.Complete(r.Context(), convincer.ID, attemptID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"attempt": attempt})

	default:
		writeError(w, apperrors.InvalidInput("status", "must be abandoned, expired or completed"))
	}
}

// GET /v1/convincers/{convincerID}/attempts/active
func (h *AttemptHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	convincer := middleware.GetConvincer(r.Context())
	convincerID := chi.URLParam(r, "convincerID")

	if convincerID != convincer.ID {
		writeError(w, apperrors.Forbidden("Cannot read another convincer's attempts"))
		return
	}

	attempt, balance, err := h.attemptService.ActiveAttempt(r.Context(), convincer.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if attempt == nil {
		writeError(w, apperrors.NotFound("Active attempt"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"attempt":        attempt,
		"balanceSeconds": balance,
	})
}
