package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/store"
)

// JobKindTask is the job kind under which scheduler tasks are persisted.
const JobKindTask = "scheduler.task"

// JobScheduler persists tasks as durable jobs. The task id is the job dedupe
// key, so cancellation and replacement work across restarts.
type JobScheduler struct {
	repo   store.JobRepo
	runner *store.JobRunner

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Compile-time check that JobScheduler implements Scheduler.
var _ Scheduler = (*JobScheduler)(nil)

// NewJobScheduler creates a JobScheduler that polls repo every pollInterval.
func NewJobScheduler(repo store.JobRepo, pollInterval time.Duration) *JobScheduler {
	return &JobScheduler{
		repo:   repo,
		runner: store.NewJobRunner(repo, pollInterval),
	}
}

// Start recovers jobs orphaned by a crash and starts the polling loop.
func (s *JobScheduler) Start(ctx context.Context, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("job scheduler already started")
	}

	s.runner.RegisterHandler(JobKindTask, func(ctx context.Context, payload string) error {
		var task Task
		if err := json.Unmarshal([]byte(payload), &task); err != nil {
			return fmt.Errorf("failed to decode task payload: %w", err)
		}
		return handler(ctx, task)
	})
	if err := s.runner.RecoverStaleJobs(ctx); err != nil {
		return fmt.Errorf("failed to recover stale jobs: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		s.runner.Run(runCtx)
	}(s.done)
	return nil
}

func (s *JobScheduler) Schedule(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	if _, err := s.repo.CancelJobsByDedupeKey(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to replace task %s: %w", task.ID, err)
	}
	jobID, err := s.repo.EnqueueJob(ctx, JobKindTask, task.RunAt, string(payload), task.ID)
	if err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", task.ID, err)
	}
	slog.Debug("JobScheduler.Schedule", "id", task.ID, "jobID", jobID, "runAt", task.RunAt)
	if !task.RunAt.After(time.Now()) {
		s.runner.Wake()
	}
	return nil
}

func (s *JobScheduler) Cancel(ctx context.Context, id string) error {
	n, err := s.repo.CancelJobsByDedupeKey(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to cancel task %s: %w", id, err)
	}
	if n > 0 {
		slog.Debug("JobScheduler.Cancel", "id", id, "jobs", n)
	}
	return nil
}

func (s *JobScheduler) Pending() []Task {
	jobs, err := s.repo.ListQueuedJobs(context.Background())
	if err != nil {
		slog.Error("JobScheduler.Pending: list failed", "error", err)
		return nil
	}
	out := make([]Task, 0, len(jobs))
	for _, job := range jobs {
		if job.Kind != JobKindTask {
			continue
		}
		var task Task
		if err := json.Unmarshal([]byte(job.PayloadJSON), &task); err != nil {
			slog.Warn("JobScheduler.Pending: undecodable payload", "jobID", job.ID, "error", err)
			continue
		}
		out = append(out, task)
	}
	sortTasks(out)
	return out
}

// Stop halts the polling loop. Queued jobs stay in the repo for the next start.
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
