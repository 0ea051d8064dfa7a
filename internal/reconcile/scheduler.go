package reconcile

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/agencydesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const sweepTimeout = 5 * time.Minute

// Scheduler runs Sweep on the configured cron schedule. Overlapping runs are
// skipped rather than queued.
type Scheduler struct {
	log     *zap.Logger
	cron    *cron.Cron
	sweeper *Sweeper
}

func NewScheduler(lc fx.Lifecycle, cfg config.Config, sweeper *Sweeper, log *zap.Logger) (*Scheduler, error) {
	log = log.Named("reconcile.scheduler")
	if !cfg.Reconcile.Enabled {
		log.Info("reconcile sweep disabled")
		return nil, nil
	}

	s := &Scheduler{
		log:     log,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sweeper: sweeper,
	}
	if _, err := s.cron.AddFunc(cfg.Reconcile.Schedule, s.run); err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.cron.Start()
			log.Info("reconcile sweep scheduled", zap.String("schedule", cfg.Reconcile.Schedule))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-s.cron.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.log.Error("reconcile sweep failed", zap.Error(err))
	}
}
