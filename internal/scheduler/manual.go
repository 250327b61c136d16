package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

type manualItem struct {
	task  Task
	seq   uint64
	index int
}

// taskHeap orders items by fire time, then by insertion sequence.
type taskHeap []*manualItem

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if !h[i].task.RunAt.Equal(h[j].task.RunAt) {
		return h[i].task.RunAt.Before(h[j].task.RunAt)
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	item := x.(*manualItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Manual is a Scheduler driven by a virtual clock. Nothing fires until
// Advance moves the clock past a task's RunAt. It is also a Clock, so the
// components that stamp timestamps can share its notion of now.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	queue   taskHeap
	index   map[string]*manualItem
	handler Handler
	ctx     context.Context
}

var (
	_ Scheduler = (*Manual)(nil)
	_ Clock     = (*Manual)(nil)
)

// NewManual creates a Manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{
		now:   start,
		index: make(map[string]*manualItem),
	}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Start(ctx context.Context, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx = ctx
	m.handler = handler
	return nil
}

func (m *Manual) Schedule(ctx context.Context, task Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handler == nil {
		return ErrNotStarted
	}
	if old, exists := m.index[task.ID]; exists {
		heap.Remove(&m.queue, old.index)
	}
	m.seq++
	item := &manualItem{task: task, seq: m.seq}
	heap.Push(&m.queue, item)
	m.index[task.ID] = item
	slog.Debug("Manual.Schedule", "id", task.ID, "runAt", task.RunAt)
	return nil
}

func (m *Manual) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item, exists := m.index[id]; exists {
		heap.Remove(&m.queue, item.index)
		delete(m.index, id)
		slog.Debug("Manual.Cancel", "id", id)
	}
	return nil
}

func (m *Manual) Pending() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Task, 0, len(m.queue))
	for _, item := range m.queue {
		out = append(out, item.task)
	}
	sortTasks(out)
	return out
}

// Advance moves the clock forward by d and runs every task that becomes due,
// in fire-time order. The clock reads each task's RunAt while its handler
// runs. Tasks scheduled by handlers fire in the same call when they fall
// inside the window. It returns the number of tasks run.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	fired := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 || m.queue[0].task.RunAt.After(target) {
			m.now = target
			m.mu.Unlock()
			return fired
		}
		item := heap.Pop(&m.queue).(*manualItem)
		delete(m.index, item.task.ID)
		if item.task.RunAt.After(m.now) {
			m.now = item.task.RunAt
		}
		handler, ctx := m.handler, m.ctx
		m.mu.Unlock()

		fired++
		if err := handler(ctx, item.task); err != nil {
			slog.Error("Manual.Advance: handler failed", "id", item.task.ID, "error", err)
		}
	}
}

// Stop drops every pending task.
func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = nil
	m.index = make(map[string]*manualItem)
}
