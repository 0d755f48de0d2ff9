package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs jobs on seconds-resolution cron schedules. A job that is
// still running when its next tick arrives is skipped for that tick.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	log  *slog.Logger
}

// NewScheduler creates a Scheduler whose jobs receive ctx.
func NewScheduler(ctx context.Context, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "scheduler")
	cl := cronLogger{log}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx: ctx,
		log: log,
	}
}

// Add registers fn under spec, e.g. "0 30 18 * * 1-5".
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		if s.ctx.Err() != nil {
			return
		}
		start := time.Now()
		s.log.Info("job starting", "job", name)
		fn(s.ctx)
		s.log.Info("job finished", "job", name, "elapsed", time.Since(start).Round(time.Millisecond))
	})
	if err != nil {
		return fmt.Errorf("register %s %q: %w", name, spec, err)
	}
	return nil
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits for
// running jobs to return.
func (s *Scheduler) Run() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Info("scheduled", "next", e.Next.Format(time.RFC3339))
	}
	<-s.ctx.Done()
	<-s.cron.Stop().Done()
}

// cronLogger adapts slog to the cron logging interface.
type cronLogger struct{ log *slog.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug(msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error(msg, append(kv, "err", err)...)
}
