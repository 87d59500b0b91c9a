package model

import (
	"time"
)

// Message is a user-authored chat message. Messages are append-only; the
// score snapshot records the convincing score at the moment of writing and
// is an audit trail, not an input to later computation.
type Message struct {
	ID                      string    `db:"id" json:"id"`
	AttemptID               string    `db:"attempt_id" json:"attemptId"`
	ConvincerID             string    `db:"convincer_id" json:"convincerId"`
	Body                    string    `db:"body" json:"body"`
	ConvincingScoreSnapshot int       `db:"convincing_score_snapshot" json:"convincingScoreSnapshot"`
	CreatedAt               time.Time `db:"created_at" json:"createdAt"`
}

type CreateMessageParams struct {
	AttemptID               string
	ConvincerID             string
	Body                    string
	ConvincingScoreSnapshot int
}

// AIResponse is a generated reply to a user message, also append-only.
type AIResponse struct {
	ID                      string    `db:"id" json:"id"`
	AttemptID               string    `db:"attempt_id" json:"attemptId"`
	MessageID               *string   `db:"message_id" json:"messageId,omitempty"`
	Body                    string    `db:"body" json:"body"`
	ConvincingScoreSnapshot int       `db:"convincing_score_snapshot" json:"convincingScoreSnapshot"`
	CreatedAt               time.Time `db:"created_at" json:"createdAt"`
}

type CreateAIResponseParams struct {
	AttemptID               string
	MessageID               *string
	Body                    string
	ConvincingScoreSnapshot int
}
