package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type sqlDedupRepo struct {
	db      *sql.DB
	dialect dialect
}

var _ DedupRepo = (*sqlDedupRepo)(nil)

func (r *sqlDedupRepo) RecordInbound(ctx context.Context, messageID, sender string) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.dialect.bind(
		`INSERT INTO inbound_dedup (message_id, sender, received_at) VALUES (?, ?, ?)
		 ON CONFLICT (message_id) DO NOTHING`),
		messageID, sender, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record inbound rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *sqlDedupRepo) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := r.db.ExecContext(ctx, r.dialect.bind(
		`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`),
		time.Now().UTC(), messageID,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}
