// Package scheduler triggers the crawl cycles on a fixed period and retries a
// failed invocation after a delay. Each task runs on its own loop, so a slow
// match cycle never delays the user cycle and a task never overlaps itself.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/aram-crawler/internal/telemetry"
)

// Task is one periodically invoked job.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Config controls the period and retry policy shared by all tasks.
type Config struct {
	Interval   time.Duration
	Retries    int
	RetryDelay time.Duration
	// RunOnStart fires every task once before the first tick.
	RunOnStart bool
}

// Sleeper waits between retries.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Scheduler runs tasks until its context ends.
type Scheduler struct {
	cfg     Config
	tasks   []Task
	sleeper Sleeper
	logger  *zap.Logger
}

// New validates cfg and builds a Scheduler.
func New(cfg Config, sleeper Sleeper, logger *zap.Logger, tasks ...Task) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be > 0")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("scheduler retries must be >= 0")
	}
	if sleeper == nil {
		return nil, fmt.Errorf("sleeper is required")
	}
	for _, t := range tasks {
		if t.Name == "" || t.Run == nil {
			return nil, fmt.Errorf("task requires a name and a run function")
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{cfg: cfg, tasks: tasks, sleeper: sleeper, logger: logger}, nil
}

// Run blocks until ctx finishes, then waits for in-flight tasks.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, task := range s.tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			s.loop(ctx, t)
		}(task)
	}
	<-ctx.Done()
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	logger := s.logger.With(zap.String("task", t.Name))
	logger.Info("scheduling task", zap.Duration("interval", s.cfg.Interval))
	if s.cfg.RunOnStart {
		s.invoke(ctx, t, logger)
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.invoke(ctx, t, logger)
		}
	}
}

// invoke runs t with up to Retries extra attempts, pausing RetryDelay between
// attempts. Ticks that arrive meanwhile are dropped by the ticker.
func (s *Scheduler) invoke(ctx context.Context, t Task, logger *zap.Logger) {
	for attempt := 0; ; attempt++ {
		err := t.Run(ctx)
		if err == nil {
			return
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			logger.Debug("task stopped by shutdown", zap.Error(err))
			return
		}
		if attempt >= s.cfg.Retries {
			logger.Error("task failed, giving up until next tick", zap.Int("attempts", attempt+1), zap.Error(err))
			return
		}
		logger.Warn("task failed, retrying", zap.Int("attempt", attempt+1), zap.Duration("delay", s.cfg.RetryDelay), zap.Error(err))
		telemetry.ObserveSchedulerRetry(t.Name)
		if err := s.sleeper.Sleep(ctx, s.cfg.RetryDelay); err != nil {
			return
		}
	}
}
