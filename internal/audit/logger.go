// Package audit emits structured security/audit events.
package audit

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventAuthFailure        EventType = "auth_failure"
	EventOwnershipViolation EventType = "ownership_violation"
	EventConvincerCreate    EventType = "convincer_create"
	EventPaymentCredit      EventType = "payment_credit"
	EventAttemptWin         EventType = "attempt_win"
	EventRateLimitExceed    EventType = "rate_limit_exceeded"
)

type Event struct {
	Type        EventType
	ConvincerID string
	AttemptID   string
	IP          string
	Details     map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Logger()

	if event.ConvincerID != "" {
		logger = logger.With().Str("convincer_id", event.ConvincerID).Logger()
	}
	if event.AttemptID != "" {
		logger = logger.With().Str("attempt_id", event.AttemptID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}
