package model

import (
	"time"
)

type Prize struct {
	ID                 string      `db:"id" json:"id"`
	AmountCents        int64       `db:"amount_cents" json:"amountCents"`
	Status             PrizeStatus `db:"status" json:"status"`
	WinnerConvincerID  *string     `db:"winner_convincer_id" json:"winnerConvincerId,omitempty"`
	WinnerAttemptID    *string     `db:"winner_attempt_id" json:"winnerAttemptId,omitempty"`
	DistributedAt      *time.Time  `db:"distributed_at" json:"distributedAt,omitempty"`
	CreatedAt          time.Time   `db:"created_at" json:"createdAt"`
}

// PrizeCertificate is minted once when a prize is distributed. The content
// hash makes certificates unique and tamper-evident; rows are immutable.
type PrizeCertificate struct {
	ID          string    `db:"id" json:"id"`
	PrizeID     string    `db:"prize_id" json:"prizeId"`
	ConvincerID string    `db:"convincer_id" json:"convincerId"`
	ContentHash string    `db:"content_hash" json:"contentHash"`
	IssuedAt    time.Time `db:"issued_at" json:"issuedAt"`
}
