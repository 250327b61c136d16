package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// JobHandler executes one job. It receives the job's payload JSON.
type JobHandler func(ctx context.Context, payload string) error

// Runner defaults.
const (
	DefaultStaleThreshold = 5 * time.Minute
	DefaultClaimLimit     = 25
	DefaultBaseBackoff    = 30 * time.Second
	DefaultMaxBackoff     = 30 * time.Minute
)

// RunnerOpts configures a JobRunner.
type RunnerOpts struct {
	StaleThreshold time.Duration
	ClaimLimit     int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	Now            func() time.Time
}

// RunnerOption mutates RunnerOpts.
type RunnerOption func(*RunnerOpts)

// WithStaleThreshold sets how long a job may stay running before
// RecoverStaleJobs requeues it.
func WithStaleThreshold(d time.Duration) RunnerOption {
	return func(o *RunnerOpts) { o.StaleThreshold = d }
}

// WithClaimLimit caps the jobs claimed per poll.
func WithClaimLimit(n int) RunnerOption {
	return func(o *RunnerOpts) { o.ClaimLimit = n }
}

// WithBackoff sets the retry delay after the first failure and its ceiling.
// The delay doubles per attempt.
func WithBackoff(base, max time.Duration) RunnerOption {
	return func(o *RunnerOpts) { o.BaseBackoff, o.MaxBackoff = base, max }
}

// WithRunnerClock replaces time.Now.
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(o *RunnerOpts) { o.Now = now }
}

// JobRunner claims due jobs from a JobRepo and dispatches them by kind.
type JobRunner struct {
	repo         JobRepo
	pollInterval time.Duration
	opts         RunnerOpts
	wake         chan struct{}

	mu       sync.RWMutex
	handlers map[string]JobHandler
}

// NewJobRunner creates a JobRunner that polls every pollInterval.
func NewJobRunner(repo JobRepo, pollInterval time.Duration, opts ...RunnerOption) *JobRunner {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	cfg := RunnerOpts{
		StaleThreshold: DefaultStaleThreshold,
		ClaimLimit:     DefaultClaimLimit,
		BaseBackoff:    DefaultBaseBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		Now:            time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &JobRunner{
		repo:         repo,
		pollInterval: pollInterval,
		opts:         cfg,
		wake:         make(chan struct{}, 1),
		handlers:     make(map[string]JobHandler),
	}
}

// RegisterHandler routes jobs of kind to handler.
func (r *JobRunner) RegisterHandler(kind string, handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
	slog.Debug("JobRunner.RegisterHandler", "kind", kind)
}

// RecoverStaleJobs requeues jobs left running by a crashed process. Call it
// once before Run.
func (r *JobRunner) RecoverStaleJobs(ctx context.Context) error {
	n, err := r.repo.RequeueStaleRunningJobs(ctx, r.opts.Now().Add(-r.opts.StaleThreshold))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("JobRunner.RecoverStaleJobs: requeued stale jobs", "count", n)
	}
	return nil
}

// Wake makes Run poll now instead of waiting for the next tick. It never blocks.
func (r *JobRunner) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. Jobs already due run on the first poll.
func (r *JobRunner) Run(ctx context.Context) {
	slog.Info("JobRunner.Run: started", "pollInterval", r.pollInterval)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		r.poll(ctx)
		select {
		case <-ctx.Done():
			slog.Info("JobRunner.Run: stopped")
			return
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

func (r *JobRunner) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	jobs, err := r.repo.ClaimDueJobs(ctx, r.opts.Now(), r.opts.ClaimLimit)
	if err != nil {
		slog.Error("JobRunner.poll: claim failed", "error", err)
		return
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		r.execute(ctx, job)
	}
}

func (r *JobRunner) execute(ctx context.Context, job Job) {
	r.mu.RLock()
	handler, ok := r.handlers[job.Kind]
	r.mu.RUnlock()

	if !ok {
		slog.Warn("JobRunner.execute: no handler for kind", "kind", job.Kind, "id", job.ID)
		r.fail(ctx, job, "no handler registered for kind: "+job.Kind)
		return
	}
	slog.Debug("JobRunner.execute", "id", job.ID, "kind", job.Kind, "attempt", job.Attempt)
	if err := handler(ctx, job.PayloadJSON); err != nil {
		slog.Error("JobRunner.execute: handler failed", "id", job.ID, "kind", job.Kind, "error", err)
		r.fail(ctx, job, err.Error())
		return
	}
	if err := r.repo.CompleteJob(ctx, job.ID); err != nil {
		slog.Error("JobRunner.execute: complete failed", "id", job.ID, "error", err)
	}
}

func (r *JobRunner) fail(ctx context.Context, job Job, reason string) {
	next := r.opts.Now().Add(r.backoff(job.Attempt))
	if err := r.repo.FailJob(ctx, job.ID, reason, next); err != nil {
		slog.Error("JobRunner.fail: could not record failure", "id", job.ID, "error", err)
	}
}

// backoff doubles BaseBackoff per previous attempt, capped at MaxBackoff.
func (r *JobRunner) backoff(attempt int) time.Duration {
	d := r.opts.BaseBackoff
	for i := 0; i < attempt && d < r.opts.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, r.opts.MaxBackoff)
}
