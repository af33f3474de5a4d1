package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task is one scheduled job invocation.
type Task func(ctx context.Context) error

// Scheduler runs tasks on cron expressions evaluated in UTC.
// Overlapping runs of the same task are skipped, not queued.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	names  map[cron.EntryID]string
}

// Activation is the next time a registered task fires.
type Activation struct {
	Task string
	At   time.Time
}

// New creates a UTC scheduler.
func New(logger *zap.Logger) *Scheduler {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &Scheduler{cron: c, logger: logger, names: map[cron.EntryID]string{}}
}

// Add registers task under name at the five-field cron expression expr.
func (s *Scheduler) Add(ctx context.Context, name, expr string, task Task) error {
	id, err := s.cron.AddFunc(expr, func() {
		log := s.logger.With(zap.String("task", name))
		log.Info("task started")
		if err := task(ctx); err != nil {
			log.Error("task failed", zap.Error(err))
			return
		}
		log.Info("task finished")
	})
	if err != nil {
		return fmt.Errorf("scheduling %s at %q: %w", name, expr, err)
	}
	s.names[id] = name
	s.logger.Info("task scheduled", zap.String("task", name), zap.String("cron", expr))
	return nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running tasks to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}

// Next returns the next activation of every registered task after now,
// in registration order.
func (s *Scheduler) Next(now time.Time) []Activation {
	entries := s.cron.Entries()
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	out := make([]Activation, 0, len(entries))
	for _, e := range entries {
		out = append(out, Activation{Task: s.names[e.ID], At: e.Schedule.Next(now.UTC())})
	}
	return out
}
