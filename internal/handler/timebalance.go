package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/convinceme/convince-server-go/internal/audit"
	apperrors "github.com/convinceme/convince-server-go/internal/errors"
	"github.com/convinceme/convince-server-go/internal/middleware"
	"github.com/convinceme/convince-server-go/internal/service"
)

type TimeBalanceHandler struct {
	ledgerService *service.TimeLedgerService
}

func NewTimeBalanceHandler(ledgerService *service.TimeLedgerService) *TimeBalanceHandler {
	return &TimeBalanceHandler{ledgerService: ledgerService}
}

// GET /v1/time-balance/{convincerID}
func (h *TimeBalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	convincer := middleware.GetConvincer(r.Context())
	convincerID := chi.URLParam(r, "convincerID")

	if convincerID != convincer.ID {
		writeError(w, apperrors.Forbidden("Cannot read another convincer's balance"))
		return
	}

	balance, err := h.ledgerService.Read(r.Context(), convincer.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"balanceSeconds": balance})
}

type debitRequest struct {
	SecondsToSubtract int `json:"seconds_to_subtract"`
}

// PUT /v1/time-balance/{convincerID}
//
// Consumed-time flush from the countdown loop. Floors at zero rather than
// erroring so a late flush after expiry cannot fail the client.
func (h *TimeBalanceHandler) Debit(w http.ResponseWriter, r *http.Request) {
	convincer := middleware.GetConvincer(r.Context())
	convincerID := chi.URLParam(r, "convincerID")

	if convincerID != convincer.ID {
		writeError(w, apperrors.Forbidden("Cannot debit another convincer's balance"))
		return
	}

	var req debitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	remaining, err := h.ledgerService.Debit(r.Context(), convincer.ID, req.SecondsToSubtract)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"balanceSeconds": remaining})
}

type createPaymentRequest struct {
	Reference         string `json:"reference"`
	AmountTimeSeconds int    `json:"amount_time_seconds"`
}

// POST /v1/payments
func (h *TimeBalanceHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	convincer := middleware.GetConvincer(r.Context())

	var req createPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.ledgerService.Credit(r.Context(), convincer.ID, req.Reference, req.AmountTimeSeconds)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Applied {
		audit.Log(r.Context(), audit.Event{
			Type:        audit.EventPaymentCredit,
			ConvincerID: convincer.ID,
			IP:          r.RemoteAddr,
			Details:     map[string]any{"reference": req.Reference, "seconds": req.AmountTimeSeconds},
		})
		writeJSON(w, http.StatusCreated, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
