package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	apperrors "github.com/convinceme/convince-server-go/internal/errors"
	"github.com/convinceme/convince-server-go/internal/model"
	"github.com/convinceme/convince-server-go/internal/repository"
	"github.com/convinceme/convince-server-go/internal/util"
)

// TimeLedgerService is the single source of truth for how much attempt
// time a convincer has paid for and not yet consumed.
type TimeLedgerService struct {
	db          TxRunner
	balanceRepo repository.TimeBalanceRepository
	paymentRepo repository.PaymentRepository
}

func NewTimeLedgerService(
	db TxRunner,
	balanceRepo repository.TimeBalanceRepository,
	paymentRepo repository.PaymentRepository,
) *TimeLedgerService {
	return &TimeLedgerService{
		db:          db,
		balanceRepo: balanceRepo,
		paymentRepo: paymentRepo,
	}
}

type CreditResult struct {
	BalanceSeconds int  `json:"balanceSeconds"`
	Applied        bool `json:"applied"`
}

// Credit adds purchased seconds to the balance. It is idempotent per
// payment reference: re-sending a confirmation credits nothing and reports
// Applied=false.
func (s *TimeLedgerService) Credit(ctx context.Context, convincerID, reference string, seconds int) (*CreditResult, error) {
	if util.IsBlank(reference) {
		return nil, apperrors.MissingRequired("payment reference")
	}
	if seconds <= 0 {
		return nil, apperrors.InvalidInput("amount_time_seconds", "must be positive")
	}

	var result CreditResult
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		payment, err := s.paymentRepo.WithTx(tx).CreateIfAbsent(ctx, model.CreatePaymentParams{
			ConvincerID:       convincerID,
			Reference:         reference,
			AmountTimeSeconds: seconds,
		})
		if err != nil {
			return fmt.Errorf("record payment: %w", err)
		}

		if payment == nil {
			// Reference already credited; report the current balance.
			balance, err := s.balanceRepo.WithTx(tx).Read(ctx, convincerID)
			if err != nil {
				return fmt.Errorf("read balance: %w", err)
			}
			result = CreditResult{BalanceSeconds: balance, Applied: false}
			return nil
		}

		balance, err := s.balanceRepo.WithTx(tx).Credit(ctx, convincerID, seconds)
		if err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}
		result = CreditResult{BalanceSeconds: balance, Applied: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Applied {
		log.Info().
			Str("convincerId", convincerID).
			Str("reference", reference).
			Int("seconds", seconds).
			Int("balance", result.BalanceSeconds).
			Msg("time balance credited")
	} else {
		log.Warn().
			Str("convincerId", convincerID).
			Str("reference", reference).
			Msg("duplicate payment reference ignored")
	}

	return &result, nil
}

// Debit consumes seconds from the balance, floored at 0. A missing ledger
// row is a no-op.
func (s *TimeLedgerService) Debit(ctx context.Context, convincerID string, seconds int) (int, error) {
	if seconds < 0 {
		return 0, apperrors.InvalidInput("seconds_to_subtract", "must not be negative")
	}
	if seconds == 0 {
		return s.balanceRepo.Read(ctx, convincerID)
	}

	remaining, err := s.balanceRepo.Debit(ctx, convincerID, seconds)
	if err != nil {
		return 0, fmt.Errorf("debit balance: %w", err)
	}

	log.Debug().
		Str("convincerId", convincerID).
		Int("seconds", seconds).
		Int("remaining", remaining).
		Msg("time balance debited")

	return remaining, nil
}

// Read returns the current balance, 0 when no row exists.
func (s *TimeLedgerService) Read(ctx context.Context, convincerID string) (int, error) {
	return s.balanceRepo.Read(ctx, convincerID)
}
