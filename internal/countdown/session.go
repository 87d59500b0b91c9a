// Package countdown implements the client-side ticking clock for an
// attempt: a responsive per-second timer that flushes locally spent
// seconds to the server's time ledger on a fixed period instead of once
// per second. The server stays authoritative: the zero-crossing decision
// always re-reads the server balance before declaring the attempt over.
package countdown

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Ledger debits consumed seconds from the server-side time balance.
type Ledger interface {
	Debit(ctx context.Context, seconds int) (remaining int, err error)
}

// Expirer is consulted when the local countdown reaches zero. A positive
// rearmSeconds means the server still holds balance (time bought
// mid-session) and the countdown restarts from it without losing the
// conversation.
type Expirer interface {
	ExpireCheck(ctx context.Context) (rearmSeconds int, expired bool, err error)
}

// Hooks are optional observation points; nil funcs are skipped. They are
// invoked from the session goroutine, so they must not block.
type Hooks struct {
	OnTick    func(remaining int)
	OnRearmed func(seconds int)
	OnExpired func()
}

type Config struct {
	InitialSeconds int
	FlushInterval  time.Duration
	Clock          clockwork.Clock
	Ledger         Ledger
	Expirer        Expirer
	Hooks          Hooks
}

// ErrStopped is returned by Run when the session was stopped explicitly.
var ErrStopped = errors.New("countdown: stopped")

type flushOutcome struct {
	seconds int
	err     error
}

// Session is the local countdown plus reconciliation loop for one
// attempt. All timers live on one clock and are torn down together.
type Session struct {
	cfg Config

	mu        sync.Mutex
	remaining int
	unflushed int

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

func New(cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 15 * time.Second
	}
	return &Session{
		cfg:       cfg,
		remaining: cfg.InitialSeconds,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Remaining returns the locally displayed seconds left.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Unflushed returns locally spent seconds not yet reported to the ledger.
// After Run returns, anything still here is beacon material.
func (s *Session) Unflushed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unflushed
}

// Stop ends the session, flushing pending seconds before teardown. It
// waits for the loop to exit.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

// Run drives the countdown until the attempt expires, Stop is called, or
// ctx is cancelled. It returns nil on expiry, ErrStopped on Stop, and the
// context error on cancellation; in the latter two cases any seconds that
// could not be flushed remain readable via Unflushed.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.doneCh)

	tick := s.cfg.Clock.NewTicker(time.Second)
	defer tick.Stop()
	flush := s.cfg.Clock.NewTicker(s.cfg.FlushInterval)
	defer flush.Stop()

	var inFlight chan flushOutcome

	// settle waits out an in-flight flush; the zero-crossing decision
	// must not race a debit that is still on the wire.
	settle := func() {
		if inFlight == nil {
			return
		}
		outcome := <-inFlight
		inFlight = nil
		s.finishFlush(outcome)
	}

	for {
		select {
		case <-ctx.Done():
			settle()
			s.flushNow(ctx)
			return ctx.Err()

		case <-s.stopCh:
			settle()
			s.flushNow(context.WithoutCancel(ctx))
			return ErrStopped

		case outcome := <-inFlight:
			inFlight = nil
			s.finishFlush(outcome)

		case <-flush.Chan():
			if inFlight != nil {
				continue
			}
			if seconds := s.takeUnflushed(); seconds > 0 {
				inFlight = s.startFlush(ctx, seconds)
			}

		case <-tick.Chan():
			s.mu.Lock()
			if s.remaining > 0 {
				s.remaining--
				s.unflushed++
			}
			remaining := s.remaining
			s.mu.Unlock()

			if s.cfg.Hooks.OnTick != nil {
				s.cfg.Hooks.OnTick(remaining)
			}
			if remaining > 0 {
				continue
			}

			settle()
			s.flushNow(ctx)

			rearm, expired, err := s.cfg.Expirer.ExpireCheck(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("expire check failed, retrying next tick")
				continue
			}
			if !expired && rearm > 0 {
				s.mu.Lock()
				s.remaining = rearm
				s.mu.Unlock()
				if s.cfg.Hooks.OnRearmed != nil {
					s.cfg.Hooks.OnRearmed(rearm)
				}
				continue
			}
			if s.cfg.Hooks.OnExpired != nil {
				s.cfg.Hooks.OnExpired()
			}
			return nil
		}
	}
}

// startFlush debits asynchronously so a slow network round trip never
// blocks the per-second tick.
func (s *Session) startFlush(ctx context.Context, seconds int) chan flushOutcome {
	ch := make(chan flushOutcome, 1)
	go func() {
		_, err := s.cfg.Ledger.Debit(ctx, seconds)
		ch <- flushOutcome{seconds: seconds, err: err}
	}()
	return ch
}

// finishFlush restores the seconds for the next cycle when a flush
// failed; at most one flush period's worth of usage is ever at risk.
func (s *Session) finishFlush(outcome flushOutcome) {
	if outcome.err == nil {
		return
	}
	log.Warn().Err(outcome.err).Int("seconds", outcome.seconds).Msg("ledger flush failed, will retry")
	s.mu.Lock()
	s.unflushed += outcome.seconds
	s.mu.Unlock()
}

// flushNow synchronously flushes pending seconds, putting them back on
// failure.
func (s *Session) flushNow(ctx context.Context) {
	seconds := s.takeUnflushed()
	if seconds == 0 {
		return
	}
	if _, err := s.cfg.Ledger.Debit(ctx, seconds); err != nil {
		log.Warn().Err(err).Int("seconds", seconds).Msg("final ledger flush failed")
		s.mu.Lock()
		s.unflushed += seconds
		s.mu.Unlock()
	}
}

func (s *Session) takeUnflushed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	seconds := s.unflushed
	s.unflushed = 0
	return seconds
}
