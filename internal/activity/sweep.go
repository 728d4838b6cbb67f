package activity

import (
	"context"

	"github.com/robfig/cron/v3"

	"lchbot/pkg/logger"
)

// Sweeper runs the retention sweep on a cron schedule, so buckets for groups
// nobody queries still get evicted.
type Sweeper struct {
	cron *cron.Cron
	agg  *Aggregator
}

// NewSweeper schedules a sweep of the aggregator per the standard 5-field
// cron spec.
func NewSweeper(agg *Aggregator, spec string) (*Sweeper, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		evicted := agg.Sweep()
		logger.Info().Int("evicted_buckets", evicted).Msg("activity retention sweep")
	})
	if err != nil {
		return nil, err
	}
	return &Sweeper{cron: c, agg: agg}, nil
}

// Start begins running scheduled sweeps.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop stops the schedule; the returned context is done when a sweep in
// flight has finished.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}
