package handler

import (
	"net/http"

	"github.com/convinceme/convince-server-go/internal/middleware"
	"github.com/convinceme/convince-server-go/internal/ws"
)

type WSHandler struct {
	hub *ws.Hub
}

func NewWSHandler(hub *ws.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// GET /v1/ws
func (h *WSHandler) Connect(w http.ResponseWriter, r *http.Request) {
	convincer := middleware.GetConvincer(r.Context())
	h.hub.HandleConnection(w, r, convincer.ID)
}
