package scheduler

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// timerEntry tracks a scheduled task and its timer.
type timerEntry struct {
	task  Task
	timer *time.Timer
}

// TimerScheduler implements Scheduler with one time.AfterFunc timer per task.
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[string]*timerEntry
	handler Handler
	ctx     context.Context
	stopped bool
	running sync.WaitGroup
}

// Compile-time check that TimerScheduler implements Scheduler.
var _ Scheduler = (*TimerScheduler)(nil)

// NewTimerScheduler creates a new TimerScheduler.
func NewTimerScheduler() *TimerScheduler {
	slog.Debug("Creating TimerScheduler")
	return &TimerScheduler{
		timers: make(map[string]*timerEntry),
	}
}

func (s *TimerScheduler) Start(ctx context.Context, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	s.handler = handler
	s.stopped = false
	slog.Debug("TimerScheduler.Start: handler installed")
	return nil
}

// Schedule arms a timer for the task. A RunAt in the past fires immediately.
func (s *TimerScheduler) Schedule(ctx context.Context, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handler == nil || s.stopped {
		return ErrNotStarted
	}
	if old, exists := s.timers[task.ID]; exists {
		old.timer.Stop()
		slog.Debug("TimerScheduler.Schedule: replacing pending task", "id", task.ID)
	}

	delay := time.Until(task.RunAt)
	if delay < 0 {
		delay = 0
	}
	entry := &timerEntry{task: task}
	entry.timer = time.AfterFunc(delay, func() { s.fire(entry) })
	s.timers[task.ID] = entry

	slog.Debug("TimerScheduler.Schedule succeeded", "id", task.ID, "kind", task.Kind, "delay", delay)
	return nil
}

// fire runs the handler unless the entry was cancelled or replaced after its
// timer had already expired.
func (s *TimerScheduler) fire(entry *timerEntry) {
	s.mu.Lock()
	if s.stopped || s.timers[entry.task.ID] != entry {
		s.mu.Unlock()
		slog.Debug("TimerScheduler.fire: task no longer pending", "id", entry.task.ID)
		return
	}
	delete(s.timers, entry.task.ID)
	handler, ctx := s.handler, s.ctx
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	slog.Debug("TimerScheduler executing task", "id", entry.task.ID, "kind", entry.task.Kind)
	if err := handler(ctx, entry.task); err != nil {
		slog.Error("TimerScheduler.fire: handler failed", "id", entry.task.ID, "error", err)
	}
}

func (s *TimerScheduler) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, exists := s.timers[id]; exists {
		entry.timer.Stop()
		delete(s.timers, id)
		slog.Debug("TimerScheduler.Cancel succeeded", "id", id)
		return nil
	}
	slog.Debug("TimerScheduler.Cancel: task not found", "id", id)
	return nil
}

func (s *TimerScheduler) Pending() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, 0, len(s.timers))
	for _, entry := range s.timers {
		out = append(out, entry.task)
	}
	sortTasks(out)
	return out
}

// Stop cancels all timers and waits for handlers that are already running.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	slog.Debug("TimerScheduler stopping all timers", "count", len(s.timers))
	for _, entry := range s.timers {
		entry.timer.Stop()
	}
	s.timers = make(map[string]*timerEntry)
	s.mu.Unlock()

	s.running.Wait()
	slog.Info("TimerScheduler stopped all timers")
}

func sortTasks(tasks []Task) {
	slices.SortStableFunc(tasks, func(a, b Task) int {
		if c := a.RunAt.Compare(b.RunAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
