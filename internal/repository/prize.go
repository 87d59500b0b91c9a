package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/convinceme/convince-server-go/internal/model"
)

type PrizeRepository interface {
	FindByID(ctx context.Context, id string) (*model.Prize, error)
	FindOpen(ctx context.Context) (*model.Prize, error)
	// FindOpenForUpdate locks the open prize row so only one winning
	// transaction can distribute it. Only meaningful inside a transaction.
	FindOpenForUpdate(ctx context.Context) (*model.Prize, error)
	Create(ctx context.Context, amountCents int64) (*model.Prize, error)
	// MarkDistributed closes the prize for the given winner; guarded on
	// status so it can happen at most once per prize.
	MarkDistributed(ctx context.Context, id, convincerID, attemptID string) (bool, error)
	CreateCertificate(ctx context.Context, cert model.PrizeCertificate) (*model.PrizeCertificate, error)
	FindCertificateByPrizeID(ctx context.Context, prizeID string) (*model.PrizeCertificate, error)
	WithTx(tx *sqlx.Tx) PrizeRepository
}

type prizeRepo struct {
	db queryer
}

func NewPrizeRepository(db *sqlx.DB) PrizeRepository {
	return &prizeRepo{db: db}
}

func (r *prizeRepo) WithTx(tx *sqlx.Tx) PrizeRepository {
	return &prizeRepo{db: tx}
}

func (r *prizeRepo) FindByID(ctx context.Context, id string) (*model.Prize, error) {
	var prize model.Prize
	err := r.db.GetContext(ctx, &prize, `SELECT * FROM prizes WHERE id = $1`, id)
	return HandleNotFound(&prize, err)
}

func (r *prizeRepo) FindOpen(ctx context.Context) (*model.Prize, error) {
	var prize model.Prize
	err := r.db.GetContext(ctx, &prize, `
		SELECT * FROM prizes WHERE status = 'open'
		ORDER BY created_at DESC
		LIMIT 1
	`)
	return HandleNotFound(&prize, err)
}

func (r *prizeRepo) FindOpenForUpdate(ctx context.Context) (*model.Prize, error) {
	var prize model.Prize
	err := r.db.GetContext(ctx, &prize, `
		SELECT * FROM prizes WHERE status = 'open'
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`)
	return HandleNotFound(&prize, err)
}

func (r *prizeRepo) Create(ctx context.Context, amountCents int64) (*model.Prize, error) {
	var prize model.Prize
	err := r.db.GetContext(ctx, &prize, `
		INSERT INTO prizes (amount_cents, status)
		VALUES ($1, 'open')
		RETURNING *
	`, amountCents)
	if err != nil {
		return nil, err
	}
	return &prize, nil
}

func (r *prizeRepo) MarkDistributed(ctx context.Context, id, convincerID, attemptID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE prizes SET
			status = 'distributed',
			winner_convincer_id = $2,
			winner_attempt_id = $3,
			distributed_at = NOW()
		WHERE id = $1 AND status = 'open'
	`, id, convincerID, attemptID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func (r *prizeRepo) CreateCertificate(ctx context.Context, cert model.PrizeCertificate) (*model.PrizeCertificate, error) {
	var created model.PrizeCertificate
	err := r.db.GetContext(ctx, &created, `
		INSERT INTO prize_certificates (id, prize_id, convincer_id, content_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, cert.ID, cert.PrizeID, cert.ConvincerID, cert.ContentHash)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *prizeRepo) FindCertificateByPrizeID(ctx context.Context, prizeID string) (*model.PrizeCertificate, error) {
	var cert model.PrizeCertificate
	err := r.db.GetContext(ctx, &cert, `
		SELECT * FROM prize_certificates WHERE prize_id = $1
	`, prizeID)
	return HandleNotFound(&cert, err)
}
