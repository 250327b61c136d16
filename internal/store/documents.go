package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// sqlCollection stores entities as JSON documents in the documents table.
// The seq column keeps first-insertion order across upserts.
type sqlCollection[T Entity[T]] struct {
	db      *sql.DB
	dialect dialect
	kind    string
}

func (c *sqlCollection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	var body []byte
	err := c.db.QueryRowContext(ctx, c.dialect.bind(
		`SELECT body FROM documents WHERE kind = ? AND id = ?`), c.kind, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, fmt.Errorf("%s %q: %w", c.kind, id, ErrNotFound)
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load %s %q: %w", c.kind, id, err)
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return zero, fmt.Errorf("failed to decode %s %q: %w", c.kind, id, err)
	}
	return v, nil
}

func (c *sqlCollection[T]) List(ctx context.Context) ([]T, error) {
	rows, err := c.db.QueryContext(ctx, c.dialect.bind(
		`SELECT id, body FROM documents WHERE kind = ? ORDER BY seq ASC`), c.kind,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s documents: %w", c.kind, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan %s document: %w", c.kind, err)
		}
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			slog.Error("sqlCollection.List: skipping undecodable document", "kind", c.kind, "id", id, "error", err)
			continue
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s documents: %w", c.kind, err)
	}
	return out, nil
}

func (c *sqlCollection[T]) Upsert(ctx context.Context, v T) error {
	id := v.EntityID()
	if id == "" {
		return fmt.Errorf("%s: empty id", c.kind)
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s %q: %w", c.kind, id, err)
	}
	_, err = c.db.ExecContext(ctx, c.dialect.bind(
		`INSERT INTO documents (kind, id, body, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (kind, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`),
		c.kind, id, string(body), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %s %q: %w", c.kind, id, err)
	}
	return nil
}

func (c *sqlCollection[T]) Delete(ctx context.Context, id string) error {
	result, err := c.db.ExecContext(ctx, c.dialect.bind(
		`DELETE FROM documents WHERE kind = ? AND id = ?`), c.kind, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s %q: %w", c.kind, id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %q: %w", c.kind, id, ErrNotFound)
	}
	return nil
}

// documentSet wires one sqlCollection per entity kind onto a database handle.
type documentSet struct {
	leads        *sqlCollection[models.Lead]
	pipelines    *sqlCollection[models.Pipeline]
	customFields *sqlCollection[models.CustomField]
	agents       *sqlCollection[models.AIAgent]
	messages     *sqlCollection[models.Message]
	leadContexts *sqlCollection[models.LeadContext]
}

func newDocumentSet(db *sql.DB, d dialect) documentSet {
	return documentSet{
		leads:        &sqlCollection[models.Lead]{db: db, dialect: d, kind: KindLead},
		pipelines:    &sqlCollection[models.Pipeline]{db: db, dialect: d, kind: KindPipeline},
		customFields: &sqlCollection[models.CustomField]{db: db, dialect: d, kind: KindCustomField},
		agents:       &sqlCollection[models.AIAgent]{db: db, dialect: d, kind: KindAgent},
		messages:     &sqlCollection[models.Message]{db: db, dialect: d, kind: KindMessage},
		leadContexts: &sqlCollection[models.LeadContext]{db: db, dialect: d, kind: KindLeadContext},
	}
}

func (s documentSet) Leads() Collection[models.Lead]               { return s.leads }
func (s documentSet) Pipelines() Collection[models.Pipeline]       { return s.pipelines }
func (s documentSet) CustomFields() Collection[models.CustomField] { return s.customFields }
func (s documentSet) Agents() Collection[models.AIAgent]           { return s.agents }
func (s documentSet) Messages() Collection[models.Message]         { return s.messages }
func (s documentSet) LeadContexts() Collection[models.LeadContext] { return s.leadContexts }
