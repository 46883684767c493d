// Package scheduler drives the periodic analysis loop, aligned to exchange
// timeframe boundaries.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const separator = "=================================================="

// TimeSource provides the reference clock for boundary alignment. The
// exchange clock is preferred so cycle starts line up with candle closes
// even when the local clock drifts.
type TimeSource interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

// Config controls cycle cadence.
type Config struct {
	Interval   time.Duration // timeframe step, boundaries are multiples of it
	FixedDelay time.Duration // when > 0, replaces boundary alignment entirely
	Cooldown   time.Duration // pause after a failed cycle before rescheduling
}

// Scheduler repeatedly waits for the next slot and runs one cycle. Cycle
// failures are isolated: they are logged, a cooldown passes, and the loop
// continues. Only context cancellation stops it.
type Scheduler struct {
	cfg   Config
	clock TimeSource
	cycle func(context.Context) error
	log   zerolog.Logger

	now   func() time.Time // test hook
	count int
}

func New(cfg Config, clock TimeSource, log zerolog.Logger, cycle func(context.Context) error) *Scheduler {
	return &Scheduler{
		cfg:   cfg,
		clock: clock,
		cycle: cycle,
		log:   log,
		now:   time.Now,
	}
}

// NextBoundary returns the first multiple of interval strictly after now,
// on the Unix epoch grid. A now exactly on a boundary yields the next one.
func NextBoundary(now time.Time, interval time.Duration) time.Time {
	intervalMs := interval.Milliseconds()
	return time.UnixMilli((now.UnixMilli()/intervalMs + 1) * intervalMs)
}

// Run loops until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := s.wait(ctx); err != nil {
			return err
		}

		s.count++
		s.log.Info().Msg(separator)
		s.log.Info().Int("check", s.count).Time("at", s.now()).Msg("periodic check")

		if err := s.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error().Err(err).Msg("cycle failed, cooling down")
			if err := sleepCtx(ctx, s.cfg.Cooldown); err != nil {
				return err
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Scheduler) wait(ctx context.Context) error {
	if s.cfg.FixedDelay > 0 {
		s.log.Info().Dur("delay", s.cfg.FixedDelay).Msg("using fixed delay")
		return sleepCtx(ctx, s.cfg.FixedDelay)
	}

	now, err := s.clock.ServerTime(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn().Err(err).Msg("exchange time unavailable, using local clock")
		now = s.now()
	}

	boundary := NextBoundary(now, s.cfg.Interval)
	delay := boundary.Sub(now)
	s.log.Info().
		Str("in", delay.Truncate(time.Second).String()).
		Str("at", boundary.Format("2006-01-02 15:04:05")).
		Msg("next check scheduled")
	return sleepCtx(ctx, delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
