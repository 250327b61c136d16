package store

import (
	"context"
	"sync"
	"time"
)

type memDedupRepo struct {
	mu      sync.Mutex
	records map[string]*DedupRecord
}

var _ DedupRepo = (*memDedupRepo)(nil)

func newMemDedupRepo() *memDedupRepo {
	return &memDedupRepo{records: make(map[string]*DedupRecord)}
}

func (r *memDedupRepo) RecordInbound(ctx context.Context, messageID, sender string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[messageID]; ok {
		return false, nil
	}
	r.records[messageID] = &DedupRecord{MessageID: messageID, Sender: sender, ReceivedAt: time.Now()}
	return true, nil
}

func (r *memDedupRepo) MarkProcessed(ctx context.Context, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[messageID]; ok {
		now := time.Now()
		rec.ProcessedAt = &now
	}
	return nil
}
