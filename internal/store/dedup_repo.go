package store

import (
	"context"
	"time"
)

// DedupRecord represents an inbound message deduplication record.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	Sender      string     `json:"sender"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo records provider message ids of inbound replies so webhook
// redeliveries are handled once.
type DedupRepo interface {
	// RecordInbound inserts a record for messageID. It returns false if the id
	// was already recorded.
	RecordInbound(ctx context.Context, messageID, sender string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a message.
	MarkProcessed(ctx context.Context, messageID string) error
}
