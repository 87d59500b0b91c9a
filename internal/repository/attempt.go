package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/convinceme/convince-server-go/internal/model"
)

type AttemptRepository interface {
	FindByID(ctx context.Context, id string) (*model.Attempt, error)
	// FindByIDForUpdate locks the attempt row; score updates racing a stop
	// request serialize on this lock. Only meaningful inside a transaction.
	FindByIDForUpdate(ctx context.Context, id string) (*model.Attempt, error)
	// FindActiveByConvincerID returns all active attempts for the convincer.
	// The invariant is at most one; callers surface anything more as a
	// consistency error instead of silently picking one.
	FindActiveByConvincerID(ctx context.Context, convincerID string) ([]model.Attempt, error)
	FindActiveByConvincerIDForUpdate(ctx context.Context, convincerID string) ([]model.Attempt, error)
	// LockConvincer takes a transaction-scoped advisory lock keyed on the
	// convincer. Row locks cannot serialize two creators who both see an
	// empty active set, so attempt starts take this lock first. Released
	// automatically at commit or rollback.
	LockConvincer(ctx context.Context, convincerID string) error
	FindStaleActive(ctx context.Context, idleSince time.Time) ([]model.Attempt, error)
	Create(ctx context.Context, params model.CreateAttemptParams) (*model.Attempt, error)
	// UpdateScore writes a new convincing score; it refuses to touch
	// non-active rows and reports whether a row was updated.
	UpdateScore(ctx context.Context, id string, score int) (bool, error)
	// MarkTerminal transitions an active attempt to the given terminal
	// status and reports whether the transition happened.
	MarkTerminal(ctx context.Context, id string, status model.AttemptStatus) (bool, error)
	// WithTx returns a repository bound to the given transaction.
	WithTx(tx *sqlx.Tx) AttemptRepository
}

type attemptRepo struct {
	db queryer
}

func NewAttemptRepository(db *sqlx.DB) AttemptRepository {
	return &attemptRepo{db: db}
}

func (r *attemptRepo) WithTx(tx *sqlx.Tx) AttemptRepository {
	return &attemptRepo{db: tx}
}

func (r *attemptRepo) FindByID(ctx context.Context, id string) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.db.GetContext(ctx, &attempt, `SELECT * FROM attempts WHERE id = $1`, id)
	return HandleNotFound(&attempt, err)
}

func (r *attemptRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.db.GetContext(ctx, &attempt, `
		SELECT * FROM attempts WHERE id = $1 FOR UPDATE
	`, id)
	return HandleNotFound(&attempt, err)
}

func (r *attemptRepo) FindActiveByConvincerID(ctx context.Context, convincerID string) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.db.SelectContext(ctx, &attempts, `
		SELECT * FROM attempts
		WHERE convincer_id = $1 AND status = 'active'
		ORDER BY created_at ASC
	`, convincerID)
	return attempts, err
}

func (r *attemptRepo) FindActiveByConvincerIDForUpdate(ctx context.Context, convincerID string) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.db.SelectContext(ctx, &attempts, `
		SELECT * FROM attempts
		WHERE convincer_id = $1 AND status = 'active'
		ORDER BY created_at ASC
		FOR UPDATE
	`, convincerID)
	return attempts, err
}

func (r *attemptRepo) LockConvincer(ctx context.Context, convincerID string) error {
	_, err := r.db.ExecContext(ctx, `
		SELECT pg_advisory_xact_lock(hashtextextended($1, 0))
	`, convincerID)
	return err
}

func (r *attemptRepo) FindStaleActive(ctx context.Context, idleSince time.Time) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.db.SelectContext(ctx, &attempts, `
		SELECT * FROM attempts
		WHERE status = 'active' AND updated_at < $1
		ORDER BY updated_at ASC
	`, idleSince)
	return attempts, err
}

func (r *attemptRepo) Create(ctx context.Context, params model.CreateAttemptParams) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.db.GetContext(ctx, &attempt, `
		INSERT INTO attempts (convincer_id, status, available_time_seconds, convincing_score)
		VALUES ($1, 'active', $2, 0)
		RETURNING *
	`, params.ConvincerID, params.AvailableTimeSeconds)
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *attemptRepo) UpdateScore(ctx context.Context, id string, score int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE attempts SET
			convincing_score = $2,
			updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`, id, score)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func (r *attemptRepo) MarkTerminal(ctx context.Context, id string, status model.AttemptStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE attempts SET
			status = $2,
			updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`, id, status)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}
