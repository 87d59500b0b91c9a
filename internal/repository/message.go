package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/convinceme/convince-server-go/internal/model"
)

type MessageRepository interface {
	FindByID(ctx context.Context, id string) (*model.Message, error)
	FindByAttemptID(ctx context.Context, attemptID string, limit, offset int) ([]model.Message, error)
	CountByAttemptID(ctx context.Context, attemptID string) (int, error)
	Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
	WithTx(tx *sqlx.Tx) MessageRepository
}

type messageRepo struct {
	db queryer
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) WithTx(tx *sqlx.Tx) MessageRepository {
	return &messageRepo{db: tx}
}

func (r *messageRepo) FindByID(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `SELECT * FROM messages WHERE id = $1`, id)
	return HandleNotFound(&msg, err)
}

func (r *messageRepo) FindByAttemptID(ctx context.Context, attemptID string, limit, offset int) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages
		WHERE attempt_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, attemptID, limit, offset)
	return msgs, err
}

func (r *messageRepo) CountByAttemptID(ctx context.Context, attemptID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages WHERE attempt_id = $1
	`, attemptID)
	return count, err
}

func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO messages (attempt_id, convincer_id, body, convincing_score_snapshot)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.AttemptID, params.ConvincerID, params.Body, params.ConvincingScoreSnapshot)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

type AIResponseRepository interface {
	FindByID(ctx context.Context, id string) (*model.AIResponse, error)
	FindByAttemptID(ctx context.Context, attemptID string, limit, offset int) ([]model.AIResponse, error)
	Create(ctx context.Context, params model.CreateAIResponseParams) (*model.AIResponse, error)
	WithTx(tx *sqlx.Tx) AIResponseRepository
}

type aiResponseRepo struct {
	db queryer
}

func NewAIResponseRepository(db *sqlx.DB) AIResponseRepository {
	return &aiResponseRepo{db: db}
}

func (r *aiResponseRepo) WithTx(tx *sqlx.Tx) AIResponseRepository {
	return &aiResponseRepo{db: tx}
}

func (r *aiResponseRepo) FindByID(ctx context.Context, id string) (*model.AIResponse, error) {
	var resp model.AIResponse
	err := r.db.GetContext(ctx, &resp, `SELECT * FROM ai_responses WHERE id = $1`, id)
	return HandleNotFound(&resp, err)
}

func (r *aiResponseRepo) FindByAttemptID(ctx context.Context, attemptID string, limit, offset int) ([]model.AIResponse, error) {
	var resps []model.AIResponse
	err := r.db.SelectContext(ctx, &resps, `
		SELECT * FROM ai_responses
		WHERE attempt_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, attemptID, limit, offset)
	return resps, err
}

func (r *aiResponseRepo) Create(ctx context.Context, params model.CreateAIResponseParams) (*model.AIResponse, error) {
	var resp model.AIResponse
	err := r.db.GetContext(ctx, &resp, `
		INSERT INTO ai_responses (attempt_id, message_id, body, convincing_score_snapshot)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.AttemptID, params.MessageID, params.Body, params.ConvincingScoreSnapshot)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
