package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/convinceme/convince-server-go/internal/audit"
	"github.com/convinceme/convince-server-go/internal/model"
	"github.com/convinceme/convince-server-go/internal/repository"
	"github.com/convinceme/convince-server-go/internal/util"
)

type contextKey string

const ConvincerContextKey contextKey = "convincer"

func GetConvincer(ctx context.Context) *model.Convincer {
	if convincer, ok := ctx.Value(ConvincerContextKey).(*model.Convincer); ok {
		return convincer
	}
	return nil
}

type AuthMiddleware struct {
	convincerRepo repository.ConvincerRepository
}

func NewAuthMiddleware(convincerRepo repository.ConvincerRepository) *AuthMiddleware {
	return &AuthMiddleware{convincerRepo: convincerRepo}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing authentication token",
			})
			return
		}

		tokenHash := util.HashToken(token)
		convincer, err := m.convincerRepo.FindByTokenHash(r.Context(), tokenHash)
		if err != nil {
			log.Error().Err(err).Msg("auth middleware: database error")
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "Authentication failed",
			})
			return
		}

		if convincer == nil {
			audit.Log(r.Context(), audit.Event{
				Type: audit.EventAuthFailure,
				IP:   r.RemoteAddr,
			})
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid token",
			})
			return
		}

		ctx := context.WithValue(r.Context(), ConvincerContextKey, convincer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken accepts the Authorization header and, for WebSocket
// upgrades where custom headers are awkward, a query parameter.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	return ""
}
