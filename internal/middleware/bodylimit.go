package middleware

import (
	"net/http"

	"github.com/convinceme/convince-server-go/internal/config"
)

// BodyLimitMiddleware caps request bodies before handlers decode them.
// The largest legitimate payload is a chat message; everything else is a
// small JSON document, so one tight cap covers the whole surface.
type BodyLimitMiddleware struct {
	maxBytes int64
}

// NewBodyLimitMiddleware builds the middleware; maxBytes <= 0 selects the
// configured default.
func NewBodyLimitMiddleware(maxBytes int64) *BodyLimitMiddleware {
	if maxBytes <= 0 {
		maxBytes = config.MaxRequestBodyBytes
	}
	return &BodyLimitMiddleware{maxBytes: maxBytes}
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > m.maxBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": "Request body exceeds the message size limit",
				"code":  "PAYLOAD_TOO_LARGE",
			})
			return
		}

		// Covers chunked requests that carry no Content-Length.
		r.Body = http.MaxBytesReader(w, r.Body, m.maxBytes)
		next.ServeHTTP(w, r)
	})
}
