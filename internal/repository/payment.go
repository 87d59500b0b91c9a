package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/convinceme/convince-server-go/internal/model"
)

type PaymentRepository interface {
	FindByReference(ctx context.Context, reference string) (*model.Payment, error)
	// CreateIfAbsent inserts the payment unless its reference was already
	// recorded, returning nil in that case. The unique reference is what
	// makes ledger credits idempotent.
	CreateIfAbsent(ctx context.Context, params model.CreatePaymentParams) (*model.Payment, error)
	WithTx(tx *sqlx.Tx) PaymentRepository
}

type paymentRepo struct {
	db queryer
}

func NewPaymentRepository(db *sqlx.DB) PaymentRepository {
	return &paymentRepo{db: db}
}

func (r *paymentRepo) WithTx(tx *sqlx.Tx) PaymentRepository {
	return &paymentRepo{db: tx}
}

func (r *paymentRepo) FindByReference(ctx context.Context, reference string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.GetContext(ctx, &payment, `
		SELECT * FROM payments WHERE reference = $1
	`, reference)
	return HandleNotFound(&payment, err)
}

func (r *paymentRepo) CreateIfAbsent(ctx context.Context, params model.CreatePaymentParams) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.GetContext(ctx, &payment, `
		INSERT INTO payments (convincer_id, reference, amount_time_seconds)
		VALUES ($1, $2, $3)
		ON CONFLICT (reference) DO NOTHING
		RETURNING *
	`, params.ConvincerID, params.Reference, params.AmountTimeSeconds)
	return HandleNotFound(&payment, err)
}
