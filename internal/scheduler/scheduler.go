// Package scheduler runs deferred tasks keyed by id.
//
// Message transitions (send, deliver) are scheduled here instead of as bare
// timers so that they can be cancelled by id when the lead or agent they
// reference goes away. Three implementations share the Scheduler interface:
// TimerScheduler for wall-clock timers, Manual for simulated time, and
// JobScheduler for durable jobs that survive a restart.
package scheduler

import (
	"context"
	"errors"
	"time"
)

// ErrNotStarted is returned by Schedule before Start has installed a handler.
var ErrNotStarted = errors.New("scheduler not started")

// Task is a unit of deferred work. ID is unique among pending tasks; scheduling
// an ID that is already pending replaces the earlier task.
type Task struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	MessageID string    `json:"messageId,omitempty"`
	RunAt     time.Time `json:"runAt"`
}

// Handler executes a due task.
type Handler func(ctx context.Context, task Task) error

// Scheduler defines the deferred-task operations used by the automation layer.
type Scheduler interface {
	// Start installs the handler. Tasks fire only after Start.
	Start(ctx context.Context, handler Handler) error
	// Schedule arranges for task to fire at task.RunAt, replacing any pending task with the same ID.
	Schedule(ctx context.Context, task Task) error
	// Cancel removes a pending task. Unknown ids are ignored.
	Cancel(ctx context.Context, id string) error
	// Pending returns the tasks that have not fired yet, ordered by RunAt.
	Pending() []Task
	// Stop cancels all timers and waits for running handlers to return.
	Stop()
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
