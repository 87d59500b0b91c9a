package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/convinceme/convince-server-go/internal/model"
)

type TimeBalanceRepository interface {
	FindByConvincerID(ctx context.Context, convincerID string) (*model.TimeBalance, error)
	// Read returns the current balance in seconds, 0 when no row exists.
	Read(ctx context.Context, convincerID string) (int, error)
	// Credit atomically adds seconds to the balance, creating the row on
	// first use, and returns the new balance.
	Credit(ctx context.Context, convincerID string, seconds int) (int, error)
	// Debit atomically subtracts seconds, floored at 0, and returns the
	// remaining balance. A missing row is a no-op returning 0.
	Debit(ctx context.Context, convincerID string, seconds int) (int, error)
	WithTx(tx *sqlx.Tx) TimeBalanceRepository
}

type timeBalanceRepo struct {
	db queryer
}

func NewTimeBalanceRepository(db *sqlx.DB) TimeBalanceRepository {
	return &timeBalanceRepo{db: db}
}

func (r *timeBalanceRepo) WithTx(tx *sqlx.Tx) TimeBalanceRepository {
	return &timeBalanceRepo{db: tx}
}

func (r *timeBalanceRepo) FindByConvincerID(ctx context.Context, convincerID string) (*model.TimeBalance, error) {
	var balance model.TimeBalance
	err := r.db.GetContext(ctx, &balance, `
		SELECT * FROM time_balances WHERE convincer_id = $1
	`, convincerID)
	return HandleNotFound(&balance, err)
}

func (r *timeBalanceRepo) Read(ctx context.Context, convincerID string) (int, error) {
	balance, err := r.FindByConvincerID(ctx, convincerID)
	if err != nil {
		return 0, err
	}
	if balance == nil {
		return 0, nil
	}
	return balance.AmountTimeSeconds, nil
}

func (r *timeBalanceRepo) Credit(ctx context.Context, convincerID string, seconds int) (int, error) {
	var amount int
	err := r.db.GetContext(ctx, &amount, `
		INSERT INTO time_balances (convincer_id, amount_time_seconds)
		VALUES ($1, $2)
		ON CONFLICT (convincer_id) DO UPDATE SET
			amount_time_seconds = time_balances.amount_time_seconds + EXCLUDED.amount_time_seconds,
			updated_at = NOW()
		RETURNING amount_time_seconds
	`, convincerID, seconds)
	return amount, err
}

func (r *timeBalanceRepo) Debit(ctx context.Context, convincerID string, seconds int) (int, error) {
	var amount int
	err := r.db.GetContext(ctx, &amount, `
		UPDATE time_balances SET
			amount_time_seconds = GREATEST(amount_time_seconds - $2, 0),
			updated_at = NOW()
		WHERE convincer_id = $1
		RETURNING amount_time_seconds
	`, convincerID, seconds)
	result, err := HandleNotFound(&amount, err)
	if err != nil {
		return 0, err
	}
	if result == nil {
		return 0, nil
	}
	return *result, nil
}
