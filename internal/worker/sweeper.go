package worker

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SweepJob is one scheduled maintenance run.
type SweepJob func(ctx context.Context)

// Sweeper runs a job on a cron schedule, so duplicates are handled even
// when nobody polls the HTTP endpoints.
type Sweeper struct {
	schedule string
	job      SweepJob
	logger   *zap.Logger
	cron     *cron.Cron
}

// NewSweeper constructs the sweeper.
func NewSweeper(schedule string, job SweepJob, logger *zap.Logger) *Sweeper {
	return &Sweeper{schedule: schedule, job: job, logger: logger}
}

// Start schedules the sweep. An empty schedule disables it.
func (s *Sweeper) Start() error {
	if s.schedule == "" {
		s.logger.Info("duplicate sweep disabled, no schedule configured")
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, func() { s.job(context.Background()) }); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("duplicate sweep scheduled", zap.String("schedule", s.schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
