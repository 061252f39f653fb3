package ztp

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const scheduleTag = "ztp-tick"

// Scheduler drives Engine.Tick on a gocron job in singleton mode, so a slow
// tick can never overlap with the next one firing (spec §4.4: the tick is
// not atomic across suspensions, but two ticks never run concurrently).
// The poll interval is re-read from the engine's live configuration on
// every reschedule, so a `configure` push that changes poll_interval takes
// effect starting with the next job registration.
type Scheduler struct {
	engine          *Engine
	defaultInterval time.Duration
	logger          *zap.Logger

	cron gocron.Scheduler
}

// NewScheduler wraps engine in a gocron-backed ticker. defaultInterval is
// used until the engine's first configuration arrives.
func NewScheduler(engine *Engine, defaultInterval time.Duration, logger *zap.Logger) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("ztp: gocron.NewScheduler: %w", err)
	}
	return &Scheduler{
		engine:          engine,
		defaultInterval: defaultInterval,
		logger:          logger.Named("ztp-scheduler"),
		cron:            cron,
	}, nil
}

// Run starts the scheduler and blocks until ctx is cancelled, rescheduling
// the tick job whenever the engine's poll interval changes.
func (s *Scheduler) Run(ctx context.Context, reconfigured <-chan struct{}) error {
	if err := s.reschedule(ctx); err != nil {
		return err
	}
	s.cron.Start()
	defer s.cron.Shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reconfigured:
			if err := s.reschedule(ctx); err != nil {
				s.logger.Warn("ztp: reschedule failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) reschedule(ctx context.Context) error {
	s.cron.RemoveByTags(scheduleTag)

	interval := s.engine.PollInterval(s.defaultInterval)
	_, err := s.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := s.engine.Tick(ctx); err != nil {
				s.logger.Warn("ztp: tick returned error", zap.Error(err))
			}
		}),
		gocron.WithTags(scheduleTag),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("ztp: schedule tick job: %w", err)
	}
	s.logger.Info("ztp: tick scheduled", zap.Duration("interval", interval))
	return nil
}
