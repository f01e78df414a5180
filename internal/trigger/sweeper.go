// Package trigger runs scheduled maintenance jobs over the ticket store.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/kmufti7/intelliflow-supportflow/internal/store"
)

// defaultSweepSchedule runs the close sweep daily at 03:00.
const defaultSweepSchedule = "0 3 * * *"

// Sweeper closes resolved tickets that have sat untouched past the
// retention window.
type Sweeper struct {
	cron         *cron.Cron
	db           *store.DB
	log          zerolog.Logger
	resolvedDays int
}

// NewSweeper builds a sweeper that closes tickets resolved more than
// resolvedDays ago.
func NewSweeper(db *store.DB, resolvedDays int, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		cron:         cron.New(),
		db:           db,
		log:          log.With().Str("component", "sweeper").Logger(),
		resolvedDays: resolvedDays,
	}
}

// Register adds the sweep job. Schedule uses the standard 5-field cron
// format; empty means the default daily run.
func (s *Sweeper) Register(schedule string) error {
	if schedule == "" {
		schedule = defaultSweepSchedule
	}
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.log.Error().Err(err).Msg("close sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("registering sweep schedule %q: %w", schedule, err)
	}
	return nil
}

// Sweep closes resolved tickets older than the retention window and
// returns how many were closed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.resolvedDays)
	closed, err := s.db.CloseResolvedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if closed > 0 {
		s.log.Info().
			Int64("closed", closed).
			Time("cutoff", cutoff).
			Msg("resolved tickets closed")
	}
	return closed, nil
}

// Start begins the schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
