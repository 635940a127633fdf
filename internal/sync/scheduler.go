package sync

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/ticlin/walink/internal/config"
	"go.uber.org/zap"
)

// StaleSweeper abandons creations that never connected. Implemented by
// the instance manager.
type StaleSweeper interface {
	SweepStale(ctx context.Context) (int, error)
}

// Scheduler runs the periodic background jobs: the bulk reconciliation of
// every instance and the stale-creation sweep.
type Scheduler struct {
	c       *cron.Cron
	syncer  *Synchronizer
	sweeper StaleSweeper
	cfg     config.SyncConfig
	logger  *zap.Logger
}

// NewScheduler creates the job scheduler.
func NewScheduler(syncer *Synchronizer, sweeper StaleSweeper, cfg config.SyncConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		c:       cron.New(),
		syncer:  syncer,
		sweeper: sweeper,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start registers and starts the cron jobs.
func (s *Scheduler) Start() error {
	if _, err := s.c.AddFunc(s.cfg.AllSpec, func() {
		if _, err := s.syncer.SyncAll(context.Background(), ""); err != nil {
			s.logger.Error("scheduled sync all failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if s.sweeper != nil {
		if _, err := s.c.AddFunc(s.cfg.SweepSpec, func() {
			removed, err := s.sweeper.SweepStale(context.Background())
			if err != nil {
				s.logger.Error("stale sweep failed", zap.Error(err))
				return
			}
			if removed > 0 {
				s.logger.Info("stale instances swept", zap.Int("removed", removed))
			}
		}); err != nil {
			return err
		}
	}

	s.c.Start()
	s.logger.Info("scheduler started",
		zap.String("sync_all", s.cfg.AllSpec),
		zap.String("sweep", s.cfg.SweepSpec))
	return nil
}

// Stop halts the scheduler. Running jobs finish on their own.
func (s *Scheduler) Stop() {
	s.c.Stop()
}
