package model

import (
	"time"
)

type Attempt struct {
	ID                   string        `db:"id" json:"id"`
	ConvincerID          string        `db:"convincer_id" json:"convincerId"`
	Status               AttemptStatus `db:"status" json:"status"`
	AvailableTimeSeconds int           `db:"available_time_seconds" json:"availableTimeSeconds"`
	ConvincingScore      int           `db:"convincing_score" json:"convincingScore"`
	CreatedAt            time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time     `db:"updated_at" json:"updatedAt"`
}

type CreateAttemptParams struct {
	ConvincerID          string
	AvailableTimeSeconds int
}
