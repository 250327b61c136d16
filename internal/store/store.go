// Package store provides storage backends for LeadPipe.
//
// Every entity type is exposed as a typed Collection with get/list/upsert/delete.
// Backends: an in-memory copy-on-write store, SQLite and PostgreSQL. Callers
// only see the Store interface, so the automation layer does not depend on
// which backend is in use.
package store

import (
	"context"
	"errors"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// ErrNotFound is returned when an entity id does not exist in a collection.
var ErrNotFound = errors.New("not found")

// Entity is implemented by every stored model.
type Entity[T any] interface {
	EntityID() string
	Clone() T
}

// Collection is a keyed set of entities that keeps first-insertion order.
// Values handed in and out are copies; mutating them never affects stored state.
type Collection[T Entity[T]] interface {
	// Get returns the entity with id, or ErrNotFound.
	Get(ctx context.Context, id string) (T, error)
	// List returns all entities in first-insertion order.
	List(ctx context.Context) ([]T, error)
	// Upsert inserts or replaces the entity as a whole value.
	Upsert(ctx context.Context, v T) error
	// Delete removes the entity, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// Store groups the collections LeadPipe persists.
type Store interface {
	Leads() Collection[models.Lead]
	Pipelines() Collection[models.Pipeline]
	CustomFields() Collection[models.CustomField]
	Agents() Collection[models.AIAgent]
	Messages() Collection[models.Message]
	LeadContexts() Collection[models.LeadContext]
	Close() error
}

// Backend is a Store that also holds durable scheduler jobs and inbound
// message dedup records.
type Backend interface {
	Store
	JobRepo
	DedupRepo
}

// Document kinds used as the discriminator column of the SQL backends.
const (
	KindLead        = "lead"
	KindPipeline    = "pipeline"
	KindCustomField = "custom_field"
	KindAgent       = "agent"
	KindMessage     = "message"
	KindLeadContext = "lead_context"
)

// Filter returns the entities of c for which keep returns true.
func Filter[T Entity[T]](ctx context.Context, c Collection[T], keep func(T) bool) ([]T, error) {
	all, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, v := range all {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out, nil
}
