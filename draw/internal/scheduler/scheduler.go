// Package scheduler runs due draws and result exports on fixed intervals.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lottoworks/drawstack/common/logging"
	"github.com/lottoworks/drawstack/draw/internal/service"
)

// Jobs is the work the scheduler triggers.
type Jobs interface {
	RunDueDraws(ctx context.Context) (*service.BatchResult, error)
	RunExports(ctx context.Context) (*service.BatchResult, error)
}

// Scheduler periodically draws due lotteries and exports drawn results.
type Scheduler struct {
	jobs           Jobs
	drawInterval   time.Duration
	exportInterval time.Duration
	logger         *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	stopped  chan struct{}
}

// NewScheduler creates a new draw scheduler.
func NewScheduler(jobs Jobs, drawInterval, exportInterval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:           jobs,
		drawInterval:   drawInterval,
		exportInterval: exportInterval,
		logger:         logger.With(slog.String(logging.FieldComponent, "scheduler")),
		stop:           make(chan struct{}),
		stopped:        make(chan struct{}),
	}
}

// Start begins the scheduler loop. This should be called in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.stopped)

	s.logger.Info("draw scheduler started",
		slog.Duration("draw_interval", s.drawInterval),
		slog.Duration("export_interval", s.exportInterval))

	drawTicker := time.NewTicker(s.drawInterval)
	defer drawTicker.Stop()
	exportTicker := time.NewTicker(s.exportInterval)
	defer exportTicker.Stop()

	// Run immediately on start
	s.runDraws(ctx)
	s.runExports(ctx)

	for {
		select {
		case <-drawTicker.C:
			s.runDraws(ctx)
		case <-exportTicker.C:
			s.runExports(ctx)
		case <-s.stop:
			s.logger.Info("draw scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("draw scheduler context cancelled")
			return
		}
	}
}

// Stop signals the scheduler to stop and waits for it to finish.
// It must only be called after Start.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.stopped
}

func (s *Scheduler) runDraws(ctx context.Context) {
	s.run(ctx, "draws", s.jobs.RunDueDraws)
}

func (s *Scheduler) runExports(ctx context.Context) {
	s.run(ctx, "exports", s.jobs.RunExports)
}

func (s *Scheduler) run(ctx context.Context, job string, fn func(context.Context) (*service.BatchResult, error)) {
	start := time.Now()
	res, err := fn(ctx)
	if err != nil {
		s.logger.Error("scheduled run failed", slog.String("job", job), logging.Error(err))
		return
	}
	if res.Processed == 0 {
		s.logger.Debug("nothing to do", slog.String("job", job))
		return
	}

	level := slog.LevelInfo
	if len(res.Failed) > 0 {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "scheduled run finished",
		slog.String("job", job),
		slog.Int("processed", res.Processed),
		slog.Int("succeeded", len(res.Succeeded)),
		slog.Int("failed", len(res.Failed)),
		logging.Duration(time.Since(start).Milliseconds()))
}
