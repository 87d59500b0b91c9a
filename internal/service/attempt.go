package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/convinceme/convince-server-go/internal/audit"
	apperrors "github.com/convinceme/convince-server-go/internal/errors"
	"github.com/convinceme/convince-server-go/internal/model"
	"github.com/convinceme/convince-server-go/internal/repository"
	"github.com/convinceme/convince-server-go/internal/scoring"
	"github.com/convinceme/convince-server-go/internal/util"
)

// AttemptService owns the attempt lifecycle: active -> completed | expired
// | abandoned, with all three terminal. Per-attempt serialization comes
// from locking the attempt row inside a transaction.
type AttemptService struct {
	db           TxRunner
	attemptRepo  repository.AttemptRepository
	messageRepo  repository.MessageRepository
	balanceRepo  repository.TimeBalanceRepository
	prizeService *PrizeService
	responder    *ResponderService
	notifier     Notifier
	winThreshold int
}

func NewAttemptService(
	db TxRunner,
	attemptRepo repository.AttemptRepository,
	messageRepo repository.MessageRepository,
	balanceRepo repository.TimeBalanceRepository,
	prizeService *PrizeService,
	responder *ResponderService,
	notifier Notifier,
	winThreshold int,
) *AttemptService {
	return &AttemptService{
		db:           db,
		attemptRepo:  attemptRepo,
		messageRepo:  messageRepo,
		balanceRepo:  balanceRepo,
		prizeService: prizeService,
		responder:    responder,
		notifier:     notifier,
		winThreshold: winThreshold,
	}
}

type StartResult struct {
	Attempt        *model.Attempt `json:"attempt"`
	Resumed        bool           `json:"resumed"`
	BalanceSeconds int            `json:"balanceSeconds"`
}

// StartOrResume returns the convincer's active attempt if one exists
// (same id, score preserved, remaining time restored from a fresh ledger
// read) and only creates a new attempt otherwise. The transaction opens
// with an advisory lock on the convincer: two concurrent starts with no
// existing active row have nothing to row-lock, so the advisory lock is
// what keeps the at-most-one-active invariant true by construction.
func (s *AttemptService) StartOrResume(ctx context.Context, convincerID string) (*StartResult, error) {
	var result StartResult
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		attemptRepo := s.attemptRepo.WithTx(tx)

		if err := attemptRepo.LockConvincer(ctx, convincerID); err != nil {
			return fmt.Errorf("lock convincer: %w", err)
		}

		attempts, err := attemptRepo.FindActiveByConvincerIDForUpdate(ctx, convincerID)
		if err != nil {
			return fmt.Errorf("find active attempt: %w", err)
		}
		if len(attempts) > 1 {
			return apperrors.Consistency(
				fmt.Sprintf("convincer has %d active attempts, expected at most one", len(attempts)))
		}

		balance, err := s.balanceRepo.WithTx(tx).Read(ctx, convincerID)
		if err != nil {
			return fmt.Errorf("read balance: %w", err)
		}

		if len(attempts) == 1 {
			attempt := attempts[0]
			result = StartResult{Attempt: &attempt, Resumed: true, BalanceSeconds: balance}
			return nil
		}

		if balance <= 0 {
			return apperrors.InsufficientTime()
		}

		attempt, err := attemptRepo.Create(ctx, model.CreateAttemptParams{
			ConvincerID:          convincerID,
			AvailableTimeSeconds: balance,
		})
		if err != nil {
			return fmt.Errorf("create attempt: %w", err)
		}
		result = StartResult{Attempt: attempt, Resumed: false, BalanceSeconds: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("attemptId", result.Attempt.ID).
		Str("convincerId", convincerID).
		Bool("resumed", result.Resumed).
		Int("balanceSeconds", result.BalanceSeconds).
		Msg("attempt started")

	return &result, nil
}

// ActiveAttempt fetches the single active attempt plus a fresh balance
// read, without creating anything.
func (s *AttemptService) ActiveAttempt(ctx context.Context, convincerID string) (*model.Attempt, int, error) {
	attempts, err := s.attemptRepo.FindActiveByConvincerID(ctx, convincerID)
	if err != nil {
		return nil, 0, fmt.Errorf("find active attempt: %w", err)
	}
	if len(attempts) > 1 {
		return nil, 0, apperrors.Consistency(
			fmt.Sprintf("convincer has %d active attempts, expected at most one", len(attempts)))
	}
	if len(attempts) == 0 {
		return nil, 0, nil
	}

	balance, err := s.balanceRepo.Read(ctx, convincerID)
	if err != nil {
		return nil, 0, fmt.Errorf("read balance: %w", err)
	}
	return &attempts[0], balance, nil
}

type SubmitResult struct {
	Message *model.Message `json:"message"`
	Attempt *model.Attempt `json:"attempt"`
	Delta   int            `json:"delta"`
	Won     bool           `json:"won"`
}

// SubmitMessage appends a user message, applies the scoring delta and, on
// crossing the win threshold, completes the attempt and awards the prize
// in the same transaction.
func (s *AttemptService) SubmitMessage(ctx context.Context, convincerID, attemptID, body string) (*SubmitResult, error) {
	if util.IsBlank(body) {
		return nil, apperrors.MissingRequired("message body")
	}

	var result SubmitResult
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		attemptRepo := s.attemptRepo.WithTx(tx)

		attempt, err := attemptRepo.FindByIDForUpdate(ctx, attemptID)
		if err != nil {
			return fmt.Errorf("find attempt: %w", err)
		}
		if attempt == nil {
			return apperrors.NotFound("Attempt")
		}
		if attempt.ConvincerID != convincerID {
			audit.Log(ctx, audit.Event{
				Type:        audit.EventOwnershipViolation,
				ConvincerID: convincerID,
				AttemptID:   attemptID,
			})
			return apperrors.Forbidden("Attempt belongs to another convincer")
		}
		if attempt.Status != model.AttemptStatusActive {
			return apperrors.AttemptNotActive()
		}

		msg, err := s.messageRepo.WithTx(tx).Create(ctx, model.CreateMessageParams{
			AttemptID:               attemptID,
			ConvincerID:             convincerID,
			Body:                    body,
			ConvincingScoreSnapshot: attempt.ConvincingScore,
		})
		if err != nil {
			return fmt.Errorf("create message: %w", err)
		}

		delta := scoring.Delta(body, attempt.ConvincingScore)
		newScore := scoring.Apply(attempt.ConvincingScore, delta)

		if _, err := attemptRepo.UpdateScore(ctx, attemptID, newScore); err != nil {
			return fmt.Errorf("update score: %w", err)
		}

		won := newScore >= s.winThreshold
		status := model.AttemptStatusActive
		if won {
			completed, err := attemptRepo.MarkTerminal(ctx, attemptID, model.AttemptStatusCompleted)
			if err != nil {
				return fmt.Errorf("complete attempt: %w", err)
			}
			if !completed {
				return apperrors.Consistency("winning attempt could not be completed")
			}
			if _, err := s.prizeService.AwardTx(ctx, tx, convincerID, attemptID); err != nil {
				return err
			}
			status = model.AttemptStatusCompleted
		}

		updated := *attempt
		updated.Status = status
		updated.ConvincingScore = newScore
		result = SubmitResult{Message: msg, Attempt: &updated, Delta: delta, Won: won}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.AttemptUpdated(attemptID, result.Attempt.ConvincingScore, result.Attempt.Status)

	if result.Won {
		audit.Log(ctx, audit.Event{
			Type:        audit.EventAttemptWin,
			ConvincerID: convincerID,
			AttemptID:   attemptID,
			Details:     map[string]interface{}{"score": result.Attempt.ConvincingScore},
		})
		s.notifier.AttemptClosed(attemptID)
	} else {
		s.responder.Schedule(attemptID, result.Message.ID, result.Delta, result.Attempt.ConvincingScore)
	}

	return &result, nil
}

type ExpireResult struct {
	Attempt      *model.Attempt `json:"attempt"`
	Expired      bool           `json:"expired"`
	RearmSeconds int            `json:"rearmSeconds"`
}

// ExpireCheck is the authoritative zero-crossing decision. The ledger
// balance is re-read fresh: a positive balance re-arms the countdown and
// the attempt stays active (time bought mid-session is picked up without
// losing the conversation); only a zero balance expires the attempt.
func (s *AttemptService) ExpireCheck(ctx context.Context, convincerID, attemptID string) (*ExpireResult, error) {
	attempt, err := s.authorizedAttempt(ctx, convincerID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptStatusActive {
		return &ExpireResult{
			Attempt: attempt,
			Expired: attempt.Status == model.AttemptStatusExpired,
		}, nil
	}

	balance, err := s.balanceRepo.Read(ctx, convincerID)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}

	if balance > 0 {
		log.Info().
			Str("attemptId", attemptID).
			Int("rearmSeconds", balance).
			Msg("countdown re-armed from fresh balance")
		return &ExpireResult{Attempt: attempt, Expired: false, RearmSeconds: balance}, nil
	}

	expired, err := s.attemptRepo.MarkTerminal(ctx, attemptID, model.AttemptStatusExpired)
	if err != nil {
		return nil, fmt.Errorf("expire attempt: %w", err)
	}
	if !expired {
		// A racing transition won; report whatever the row says now.
		current, err := s.attemptRepo.FindByID(ctx, attemptID)
		if err != nil || current == nil {
			return nil, fmt.Errorf("reload attempt: %w", err)
		}
		return &ExpireResult{
			Attempt: current,
			Expired: current.Status == model.AttemptStatusExpired,
		}, nil
	}

	attempt.Status = model.AttemptStatusExpired
	s.notifier.AttemptUpdated(attemptID, attempt.ConvincingScore, model.AttemptStatusExpired)
	s.notifier.AttemptClosed(attemptID)

	log.Info().Str("attemptId", attemptID).Msg("attempt expired")
	return &ExpireResult{Attempt: attempt, Expired: true}, nil
}

// Abandon stops an attempt on explicit user action. Unflushed locally
// spent seconds are flushed to the ledger before the attempt goes
// terminal.
func (s *AttemptService) Abandon(ctx context.Context, convincerID, attemptID string, unflushedSeconds int) (*model.Attempt, error) {
	if unflushedSeconds < 0 {
		return nil, apperrors.InvalidInput("seconds_unflushed", "must not be negative")
	}

	attempt, err := s.authorizedAttempt(ctx, convincerID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptStatusActive {
		return nil, apperrors.AttemptNotActive()
	}

	if unflushedSeconds > 0 {
		if _, err := s.balanceRepo.Debit(ctx, convincerID, unflushedSeconds); err != nil {
			return nil, fmt.Errorf("flush unspent seconds: %w", err)
		}
	}

	abandoned, err := s.attemptRepo.MarkTerminal(ctx, attemptID, model.AttemptStatusAbandoned)
	if err != nil {
		return nil, fmt.Errorf("abandon attempt: %w", err)
	}
	if !abandoned {
		return nil, apperrors.AttemptNotActive()
	}

	attempt.Status = model.AttemptStatusAbandoned
	s.notifier.AttemptUpdated(attemptID, attempt.ConvincingScore, model.AttemptStatusAbandoned)
	s.notifier.AttemptClosed(attemptID)

	log.Info().
		Str("attemptId", attemptID).
		Int("flushedSeconds", unflushedSeconds).
		Msg("attempt abandoned")
	return attempt, nil
}

// Complete is the client-retried completion write: if a win was detected
// but the completing mutation was lost, the client re-sends it. Idempotent
// for already-completed attempts.
func (s *AttemptService) Complete(ctx context.Context, convincerID, attemptID string) (*model.Attempt, error) {
	var completed *model.Attempt
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		attemptRepo := s.attemptRepo.WithTx(tx)

		attempt, err := attemptRepo.FindByIDForUpdate(ctx, attemptID)
		if err != nil {
			return fmt.Errorf("find attempt: %w", err)
		}
		if attempt == nil {
			return apperrors.NotFound("Attempt")
		}
		if attempt.ConvincerID != convincerID {
			audit.Log(ctx, audit.Event{
				Type:        audit.EventOwnershipViolation,
				ConvincerID: convincerID,
				AttemptID:   attemptID,
			})
			return apperrors.Forbidden("Attempt belongs to another convincer")
		}
		if attempt.Status == model.AttemptStatusCompleted {
			completed = attempt
			return nil
		}
		if attempt.Status != model.AttemptStatusActive {
			return apperrors.AttemptNotActive()
		}
		if attempt.ConvincingScore < s.winThreshold {
			return apperrors.ScoreBelowWinThreshold()
		}

		ok, err := attemptRepo.MarkTerminal(ctx, attemptID, model.AttemptStatusCompleted)
		if err != nil {
			return fmt.Errorf("complete attempt: %w", err)
		}
		if !ok {
			return apperrors.Consistency("winning attempt could not be completed")
		}
		if _, err := s.prizeService.AwardTx(ctx, tx, convincerID, attemptID); err != nil {
			return err
		}

		attempt.Status = model.AttemptStatusCompleted
		completed = attempt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.AttemptUpdated(attemptID, completed.ConvincingScore, model.AttemptStatusCompleted)
	s.notifier.AttemptClosed(attemptID)
	return completed, nil
}

// AuthorizeSubscription is the realtime hub's ownership check.
func (s *AttemptService) AuthorizeSubscription(ctx context.Context, convincerID, attemptID string) error {
	_, err := s.authorizedAttempt(ctx, convincerID, attemptID)
	return err
}

// ExpireStale transitions an idle active attempt whose ledger is empty to
// expired; used by the background reaper. Returns false when the ledger
// still has balance or the attempt already left active.
func (s *AttemptService) ExpireStale(ctx context.Context, attempt *model.Attempt) (bool, error) {
	balance, err := s.balanceRepo.Read(ctx, attempt.ConvincerID)
	if err != nil {
		return false, fmt.Errorf("read balance: %w", err)
	}
	if balance > 0 {
		return false, nil
	}

	expired, err := s.attemptRepo.MarkTerminal(ctx, attempt.ID, model.AttemptStatusExpired)
	if err != nil {
		return false, fmt.Errorf("expire attempt: %w", err)
	}
	if !expired {
		return false, nil
	}

	s.notifier.AttemptUpdated(attempt.ID, attempt.ConvincingScore, model.AttemptStatusExpired)
	s.notifier.AttemptClosed(attempt.ID)
	return true, nil
}

func (s *AttemptService) authorizedAttempt(ctx context.Context, convincerID, attemptID string) (*model.Attempt, error) {
	attempt, err := s.attemptRepo.FindByID(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("find attempt: %w", err)
	}
	if attempt == nil {
		return nil, apperrors.NotFound("Attempt")
	}
	if attempt.ConvincerID != convincerID {
		audit.Log(ctx, audit.Event{
			Type:        audit.EventOwnershipViolation,
			ConvincerID: convincerID,
			AttemptID:   attemptID,
		})
		return nil, apperrors.Forbidden("Attempt belongs to another convincer")
	}
	return attempt, nil
}
