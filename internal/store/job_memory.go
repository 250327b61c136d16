package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/util"
)

// memJobRepo is the JobRepo of the in-memory store.
type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

var _ JobRepo = (*memJobRepo)(nil)

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*Job)}
}

func (r *memJobRepo) EnqueueJob(ctx context.Context, kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dedupeKey != "" {
		for _, j := range r.jobs {
			if j.DedupeKey == dedupeKey && j.Status != JobStatusDone && j.Status != JobStatusCanceled {
				slog.Debug("memJobRepo.EnqueueJob: dedupe hit", "dedupeKey", dedupeKey, "existingID", j.ID)
				return j.ID, nil
			}
		}
	}

	now := time.Now()
	id := util.GenerateJobID()
	r.jobs[id] = &Job{
		ID:          id,
		Kind:        kind,
		RunAt:       runAt,
		PayloadJSON: payloadJSON,
		Status:      JobStatusQueued,
		MaxAttempts: DefaultMaxAttempts,
		DedupeKey:   dedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return id, nil
}

func (r *memJobRepo) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := r.queued(func(j *Job) bool { return !j.RunAt.After(now) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]Job, 0, len(due))
	for _, j := range due {
		locked := now
		j.Status = JobStatusRunning
		j.LockedAt = &locked
		j.UpdatedAt = now
		out = append(out, *j)
	}
	return out, nil
}

func (r *memJobRepo) CompleteJob(ctx context.Context, id string) error {
	return r.update(id, func(j *Job) {
		j.Status = JobStatusDone
	})
}

func (r *memJobRepo) FailJob(ctx context.Context, id string, errMsg string, nextRunAt time.Time) error {
	return r.update(id, func(j *Job) {
		j.Attempt++
		j.LastError = errMsg
		j.LockedAt = nil
		if j.Attempt >= j.MaxAttempts {
			j.Status = JobStatusFailed
			return
		}
		j.Status = JobStatusQueued
		j.RunAt = nextRunAt
	})
}

func (r *memJobRepo) CancelJob(ctx context.Context, id string) error {
	return r.update(id, func(j *Job) {
		j.Status = JobStatusCanceled
		j.LockedAt = nil
	})
}

func (r *memJobRepo) CancelJobsByDedupeKey(ctx context.Context, dedupeKey string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, j := range r.jobs {
		if j.DedupeKey == dedupeKey && (j.Status == JobStatusQueued || j.Status == JobStatusRunning) {
			j.Status = JobStatusCanceled
			j.LockedAt = nil
			j.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (r *memJobRepo) RequeueStaleRunningJobs(ctx context.Context, staleBefore time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, j := range r.jobs {
		if j.Status == JobStatusRunning && j.LockedAt != nil && j.LockedAt.Before(staleBefore) {
			j.Status = JobStatusQueued
			j.LockedAt = nil
			n++
		}
	}
	return n, nil
}

func (r *memJobRepo) GetJob(ctx context.Context, id string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) ListQueuedJobs(ctx context.Context) ([]Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	queued := r.queued(func(*Job) bool { return true })
	out := make([]Job, 0, len(queued))
	for _, j := range queued {
		out = append(out, *j)
	}
	return out, nil
}

// queued returns queued jobs accepted by keep, ordered by run_at. Callers hold mu.
func (r *memJobRepo) queued(keep func(*Job) bool) []*Job {
	var out []*Job
	for _, j := range r.jobs {
		if j.Status == JobStatusQueued && keep(j) {
			out = append(out, j)
		}
	}
	slices.SortFunc(out, func(a, b *Job) int { return a.RunAt.Compare(b.RunAt) })
	return out
}

func (r *memJobRepo) update(id string, fn func(*Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("job %q: %w", id, ErrNotFound)
	}
	fn(j)
	j.UpdatedAt = time.Now()
	return nil
}
