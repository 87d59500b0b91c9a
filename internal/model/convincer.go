package model

import (
	"time"
)

type Convincer struct {
	ID           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Email        string          `db:"email" json:"email"`
	Status       ConvincerStatus `db:"status" json:"status"`
	APITokenHash string          `db:"api_token_hash" json:"-"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

type CreateConvincerParams struct {
	Name         string
	Email        string
	APITokenHash string
}
