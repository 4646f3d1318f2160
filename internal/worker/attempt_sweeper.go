package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweepable drops finished attempts older than retention.
type Sweepable interface {
	Sweep(now time.Time, retention time.Duration) int
}

// AttemptSweeper evicts settled attempts from memory on a cron schedule.
type AttemptSweeper struct {
	attempts  Sweepable
	retention time.Duration
	cron      *cron.Cron
	log       zerolog.Logger
}

// NewAttemptSweeper validates schedule up front so a typo fails at boot.
func NewAttemptSweeper(attempts Sweepable, schedule string, retention time.Duration, log zerolog.Logger) (*AttemptSweeper, error) {
	s := &AttemptSweeper{
		attempts:  attempts,
		retention: retention,
		cron:      cron.New(),
		log:       log.With().Str("component", "attempt_sweeper").Logger(),
	}
	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return nil, fmt.Errorf("attempt sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce performs a single sweep.
func (s *AttemptSweeper) RunOnce() {
	n := s.attempts.Sweep(time.Now(), s.retention)
	if n > 0 {
		s.log.Info().Int("evicted", n).Msg("Swept settled attempts")
	}
}

// Start runs the schedule until ctx is cancelled and waits for a running sweep.
func (s *AttemptSweeper) Start(ctx context.Context) {
	s.log.Info().Dur("retention", s.retention).Msg("AttemptSweeper started")
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}
