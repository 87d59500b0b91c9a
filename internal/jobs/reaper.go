package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/convinceme/convince-server-go/internal/repository"
	"github.com/convinceme/convince-server-go/internal/service"
)

// ReaperJob expires attempts that were left active by clients that
// disconnected without a final flush. Only attempts idle past the TTL and
// backed by an empty ledger are transitioned; an idle attempt whose owner
// still has balance is left alone so it can be resumed.
type ReaperJob struct {
	attemptRepo    repository.AttemptRepository
	attemptService *service.AttemptService
	staleTTL       time.Duration
	interval       time.Duration
	done           chan struct{}
}

func NewReaperJob(
	attemptRepo repository.AttemptRepository,
	attemptService *service.AttemptService,
	staleTTL time.Duration,
	interval time.Duration,
) *ReaperJob {
	return &ReaperJob{
		attemptRepo:    attemptRepo,
		attemptService: attemptService,
		staleTTL:       staleTTL,
		interval:       interval,
		done:           make(chan struct{}),
	}
}

func (j *ReaperJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("staleTTL", j.staleTTL).Msg("attempt reaper started")
}

func (j *ReaperJob) Stop() {
	close(j.done)
	log.Info().Msg("attempt reaper stopped")
}

func (j *ReaperJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.reap()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.reap()
		}
	}
}

func (j *ReaperJob) reap() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	idleSince := time.Now().Add(-j.staleTTL)
	stale, err := j.attemptRepo.FindStaleActive(ctx, idleSince)
	if err != nil {
		log.Error().Err(err).Msg("failed to list stale attempts")
		return
	}

	expired := 0
	for i := range stale {
		ok, err := j.attemptService.ExpireStale(ctx, &stale[i])
		if err != nil {
			log.Error().Err(err).Str("attemptId", stale[i].ID).Msg("failed to expire stale attempt")
			continue
		}
		if ok {
			expired++
		}
	}
	if expired > 0 {
		log.Info().Int("count", expired).Msg("expired stale attempts")
	}
}
