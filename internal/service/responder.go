package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/convinceme/convince-server-go/internal/model"
	"github.com/convinceme/convince-server-go/internal/repository"
)

// ResponderService generates the deterministic "AI" reply to a scored
// message after a short delay. A reply in flight when the attempt leaves
// active is dropped: the write path re-checks the status under the row
// lock before recording anything.
type ResponderService struct {
	db             TxRunner
	attemptRepo    repository.AttemptRepository
	aiResponseRepo repository.AIResponseRepository
	notifier       Notifier
	clock          clockwork.Clock
	delay          time.Duration
}

func NewResponderService(
	db TxRunner,
	attemptRepo repository.AttemptRepository,
	aiResponseRepo repository.AIResponseRepository,
	notifier Notifier,
	clock clockwork.Clock,
	delay time.Duration,
) *ResponderService {
	return &ResponderService{
		db:             db,
		attemptRepo:    attemptRepo,
		aiResponseRepo: aiResponseRepo,
		notifier:       notifier,
		clock:          clock,
		delay:          delay,
	}
}

// Schedule queues a reply for the message after the configured delay.
func (s *ResponderService) Schedule(attemptID, messageID string, delta, score int) {
	go func() {
		<-s.clock.After(s.delay)
		if _, err := s.Respond(context.Background(), attemptID, messageID, delta, score); err != nil {
			log.Error().Err(err).Str("attemptId", attemptID).Msg("failed to record ai response")
		}
	}()
}

// Respond writes the reply now. Returns (nil, nil) when the attempt is no
// longer active and the reply is intentionally dropped.
func (s *ResponderService) Respond(ctx context.Context, attemptID, messageID string, delta, score int) (*model.AIResponse, error) {
	var resp *model.AIResponse
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		attempt, err := s.attemptRepo.WithTx(tx).FindByIDForUpdate(ctx, attemptID)
		if err != nil {
			return fmt.Errorf("find attempt: %w", err)
		}
		if attempt == nil || attempt.Status != model.AttemptStatusActive {
			log.Debug().Str("attemptId", attemptID).Msg("attempt no longer active, dropping ai reply")
			return nil
		}

		created, err := s.aiResponseRepo.WithTx(tx).Create(ctx, model.CreateAIResponseParams{
			AttemptID:               attemptID,
			MessageID:               &messageID,
			Body:                    ReplyFor(delta, score),
			ConvincingScoreSnapshot: score,
		})
		if err != nil {
			return fmt.Errorf("create ai response: %w", err)
		}
		resp = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}

	s.notifier.AIResponseCreated(resp)
	return resp, nil
}

// ReplyFor picks a canned reply from the delta and resulting score. Pure
// and deterministic; there is no language model behind the curtain.
func ReplyFor(delta, score int) string {
	switch {
	case score >= 85:
		return "Está quase me convencendo. Mais um argumento sólido e eu cedo."
	case delta >= 10:
		return "Esse argumento é forte. Estou reconsiderando minha posição."
	case delta > 0:
		return "Interessante. Continue, mas vou precisar de mais evidência."
	case delta == 0:
		return "Isso não muda nada para mim. Tente outra abordagem."
	default:
		return "Você está me deixando menos convencido, não mais."
	}
}
