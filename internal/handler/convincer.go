package handler

import (
	"net/http"

	"github.com/convinceme/convince-server-go/internal/service"
)

type ConvincerHandler struct {
	convincerService *service.ConvincerService
}

func NewConvincerHandler(convincerService *service.ConvincerService) *ConvincerHandler {
	return &ConvincerHandler{convincerService: convincerService}
}

type registerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// POST /v1/convincers
func (h *ConvincerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.convincerService.Register(r.Context(), req.Name, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}
