package model

import (
	"time"
)

// TimeBalance is the single source of truth for purchased-but-unused
// attempt seconds. One row per convincer; amount never goes negative.
type TimeBalance struct {
	ID                string    `db:"id" json:"id"`
	ConvincerID       string    `db:"convincer_id" json:"convincerId"`
	AmountTimeSeconds int       `db:"amount_time_seconds" json:"amountTimeSeconds"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

// Payment records a confirmed time purchase. The unique reference is what
// makes crediting idempotent: one reference credits at most once.
type Payment struct {
	ID                string    `db:"id" json:"id"`
	ConvincerID       string    `db:"convincer_id" json:"convincerId"`
	Reference         string    `db:"reference" json:"reference"`
	AmountTimeSeconds int       `db:"amount_time_seconds" json:"amountTimeSeconds"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
}

type CreatePaymentParams struct {
	ConvincerID       string
	Reference         string
	AmountTimeSeconds int
}
