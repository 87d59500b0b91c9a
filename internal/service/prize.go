package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	apperrors "github.com/convinceme/convince-server-go/internal/errors"
	"github.com/convinceme/convince-server-go/internal/model"
	"github.com/convinceme/convince-server-go/internal/repository"
)

// PrizeService distributes the open prize to a winner and opens the next
// one with a grown amount.
type PrizeService struct {
	prizeRepo     repository.PrizeRepository
	initialCents  int64
	growthPercent int
}

func NewPrizeService(prizeRepo repository.PrizeRepository, initialCents int64, growthPercent int) *PrizeService {
	return &PrizeService{
		prizeRepo:     prizeRepo,
		initialCents:  initialCents,
		growthPercent: growthPercent,
	}
}

// EnsureOpenPrize seeds the first open prize if none exists. Called once
// at startup.
func (s *PrizeService) EnsureOpenPrize(ctx context.Context) (*model.Prize, error) {
	prize, err := s.prizeRepo.FindOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("find open prize: %w", err)
	}
	if prize != nil {
		return prize, nil
	}
	if s.initialCents <= 0 {
		return nil, nil
	}

	prize, err = s.prizeRepo.Create(ctx, s.initialCents)
	if err != nil {
		return nil, fmt.Errorf("seed prize: %w", err)
	}
	log.Info().Str("prizeId", prize.ID).Int64("amountCents", prize.AmountCents).Msg("open prize seeded")
	return prize, nil
}

// CurrentOpen returns the prize currently up for grabs.
func (s *PrizeService) CurrentOpen(ctx context.Context) (*model.Prize, error) {
	return s.prizeRepo.FindOpen(ctx)
}

// AwardTx distributes the open prize to the winning attempt inside the
// caller's transaction: the prize is marked distributed, a certificate is
// minted, and the next open prize is created with a grown amount. Because
// the winning transition is status-guarded, this fires exactly once per
// attempt.
func (s *PrizeService) AwardTx(ctx context.Context, tx *sqlx.Tx, convincerID, attemptID string) (*model.PrizeCertificate, error) {
	repo := s.prizeRepo.WithTx(tx)

	prize, err := repo.FindOpenForUpdate(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock open prize: %w", err)
	}
	if prize == nil {
		return nil, apperrors.Consistency("no open prize to distribute")
	}

	distributed, err := repo.MarkDistributed(ctx, prize.ID, convincerID, attemptID)
	if err != nil {
		return nil, fmt.Errorf("distribute prize: %w", err)
	}
	if !distributed {
		return nil, apperrors.Consistency("open prize was already distributed")
	}

	issuedAt := time.Now().UTC()
	certID := uuid.NewString()
	cert := model.PrizeCertificate{
		ID:          certID,
		PrizeID:     prize.ID,
		ConvincerID: convincerID,
		ContentHash: CertificateHash(certID, convincerID, prize.ID, prize.AmountCents, issuedAt),
	}

	created, err := repo.CreateCertificate(ctx, cert)
	if err != nil {
		return nil, fmt.Errorf("mint certificate: %w", err)
	}

	next := grow(prize.AmountCents, s.growthPercent)
	if _, err := repo.Create(ctx, next); err != nil {
		return nil, fmt.Errorf("open next prize: %w", err)
	}

	log.Info().
		Str("prizeId", prize.ID).
		Str("convincerId", convincerID).
		Str("attemptId", attemptID).
		Str("certificateId", created.ID).
		Int64("amountCents", prize.AmountCents).
		Int64("nextAmountCents", next).
		Msg("prize distributed")

	return created, nil
}

// CertificateHash computes the immutable content hash of a certificate.
func CertificateHash(certID, convincerID, prizeID string, amountCents int64, issuedAt time.Time) string {
	payload := fmt.Sprintf("%s|%s|%s|%d|%d", certID, convincerID, prizeID, amountCents, issuedAt.UnixNano())
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func grow(amountCents int64, percent int) int64 {
	return amountCents + amountCents*int64(percent)/100
}
