package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/convinceme/convince-server-go/internal/errors"
	"github.com/convinceme/convince-server-go/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// decodeJSON is the validation boundary for request bodies: unknown
// fields and malformed payloads are rejected before they reach a service.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.ValidationError("Malformed request body").WithCause(err)
	}
	return nil
}
