// Package scheduler triggers periodic schedule refreshes.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/mskaar/renovasjon/internal/coordinator"
)

// How long a single scheduled refresh may take before it is abandoned.
const refreshTimeout = 2 * time.Minute

// Scheduler fires coordinator refreshes on a fixed interval.
type Scheduler struct {
	ctx      context.Context
	coord    *coordinator.Coordinator
	logger   *logrus.Logger
	interval time.Duration
	cron     *cron.Cron
}

// New returns a scheduler that refreshes every interval once started.
func New(ctx context.Context, coord *coordinator.Coordinator, interval time.Duration, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		ctx:      ctx,
		coord:    coord,
		logger:   logger,
		interval: interval,
		cron:     cron.New(),
	}
}

// Start registers the periodic refresh and starts the cron loop.
func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.refresh); err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}
	s.cron.Start()
	s.logger.WithField("interval", s.interval.String()).Info("Scheduler started")
	return nil
}

// refresh runs one scheduled fetch. Failures are logged by the
// coordinator and retried on the next tick.
func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(s.ctx, refreshTimeout)
	defer cancel()

	if _, err := s.coord.Refresh(ctx); err != nil {
		s.logger.WithError(err).Warn("Scheduled refresh failed, will retry next tick")
	}
}

// Stop halts the cron loop. Running jobs are left to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
