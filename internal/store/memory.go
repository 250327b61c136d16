package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// snapshot is an immutable published view of a collection.
type snapshot[T any] struct {
	order []string
	items map[string]T
}

// memCollection publishes a new snapshot on every write. Readers load the
// current snapshot without locking and never observe a partial update.
type memCollection[T Entity[T]] struct {
	kind string
	mu   sync.Mutex // serializes writers
	cur  atomic.Pointer[snapshot[T]]
}

func newMemCollection[T Entity[T]](kind string) *memCollection[T] {
	c := &memCollection[T]{kind: kind}
	c.cur.Store(&snapshot[T]{items: map[string]T{}})
	return c
}

func (c *memCollection[T]) Get(ctx context.Context, id string) (T, error) {
	v, ok := c.cur.Load().items[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %q: %w", c.kind, id, ErrNotFound)
	}
	return v.Clone(), nil
}

func (c *memCollection[T]) List(ctx context.Context) ([]T, error) {
	snap := c.cur.Load()
	out := make([]T, 0, len(snap.order))
	for _, id := range snap.order {
		out = append(out, snap.items[id].Clone())
	}
	return out, nil
}

func (c *memCollection[T]) Upsert(ctx context.Context, v T) error {
	id := v.EntityID()
	if id == "" {
		return fmt.Errorf("%s: empty id", c.kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.cur.Load()
	next := &snapshot[T]{order: old.order, items: maps.Clone(old.items)}
	if _, exists := old.items[id]; !exists {
		next.order = append(slices.Clip(old.order), id)
	}
	next.items[id] = v.Clone()
	c.cur.Store(next)
	return nil
}

func (c *memCollection[T]) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.cur.Load()
	if _, exists := old.items[id]; !exists {
		return fmt.Errorf("%s %q: %w", c.kind, id, ErrNotFound)
	}
	next := &snapshot[T]{
		order: slices.DeleteFunc(slices.Clone(old.order), func(s string) bool { return s == id }),
		items: maps.Clone(old.items),
	}
	delete(next.items, id)
	c.cur.Store(next)
	return nil
}

// InMemoryStore keeps every collection in process memory. Nothing survives a restart.
type InMemoryStore struct {
	leads        *memCollection[models.Lead]
	pipelines    *memCollection[models.Pipeline]
	customFields *memCollection[models.CustomField]
	agents       *memCollection[models.AIAgent]
	messages     *memCollection[models.Message]
	leadContexts *memCollection[models.LeadContext]
	*memJobRepo
	*memDedupRepo
}

// Compile-time check that InMemoryStore implements Backend.
var _ Backend = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		leads:        newMemCollection[models.Lead](KindLead),
		pipelines:    newMemCollection[models.Pipeline](KindPipeline),
		customFields: newMemCollection[models.CustomField](KindCustomField),
		agents:       newMemCollection[models.AIAgent](KindAgent),
		messages:     newMemCollection[models.Message](KindMessage),
		leadContexts: newMemCollection[models.LeadContext](KindLeadContext),
		memJobRepo:   newMemJobRepo(),
		memDedupRepo: newMemDedupRepo(),
	}
}

func (s *InMemoryStore) Leads() Collection[models.Lead]               { return s.leads }
func (s *InMemoryStore) Pipelines() Collection[models.Pipeline]       { return s.pipelines }
func (s *InMemoryStore) CustomFields() Collection[models.CustomField] { return s.customFields }
func (s *InMemoryStore) Agents() Collection[models.AIAgent]           { return s.agents }
func (s *InMemoryStore) Messages() Collection[models.Message]         { return s.messages }
func (s *InMemoryStore) LeadContexts() Collection[models.LeadContext] { return s.leadContexts }

func (s *InMemoryStore) Close() error { return nil }
