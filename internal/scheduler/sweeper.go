package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs a sweep every minute.
const DefaultSweepSchedule = "* * * * *"

// Sweeper runs periodic callbacks on a cron schedule.
type Sweeper struct {
	cron *cron.Cron
}

// NewSweeper creates a stopped Sweeper. Expressions use the standard 5-field
// syntax (min, hour, dom, month, dow) or descriptors such as "@every 30s".
func NewSweeper() *Sweeper {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Sweeper{cron: c}
}

// AddJob schedules task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Sweeper) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	if err == nil {
		slog.Debug("Sweeper.AddJob", "schedule", expr)
	}
	return err
}

// Run starts the cron loop and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (s *Sweeper) Run(ctx context.Context) error {
	s.cron.Start()
	slog.Info("Sweeper.Run: started", "entries", len(s.cron.Entries()))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	slog.Info("Sweeper.Run: stopped")
	return nil
}
