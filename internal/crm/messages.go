package crm

import (
	"context"
	"fmt"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

// MessageFilter narrows ListMessages. Empty fields match everything.
type MessageFilter struct {
	LeadID  string
	AgentID string
	Status  models.MessageStatus
}

// ListMessages returns the messages matching filter in creation order.
func (s *Service) ListMessages(ctx context.Context, filter MessageFilter) ([]models.Message, error) {
	if filter.Status != "" && !models.IsValidMessageStatus(filter.Status) {
		return nil, &models.ValidationError{Entity: "message", Field: "status", Err: fmt.Errorf("%w: %q", models.ErrInvalidStatus, filter.Status)}
	}
	return store.Filter(ctx, s.store.Messages(), func(m models.Message) bool {
		return (filter.LeadID == "" || m.LeadID == filter.LeadID) &&
			(filter.AgentID == "" || m.AgentID == filter.AgentID) &&
			(filter.Status == "" || m.Status == filter.Status)
	})
}

// GetMessage returns a message by id.
func (s *Service) GetMessage(ctx context.Context, id string) (models.Message, error) {
	return s.store.Messages().Get(ctx, id)
}

// AnnotateSentiment stores a sentiment annotation on a message.
func (s *Service) AnnotateSentiment(ctx context.Context, id string, sentiment models.Sentiment) (models.Message, error) {
	if err := sentiment.Validate(); err != nil {
		return models.Message{}, err
	}
	annotate := func(m *models.Message) error {
		m.Sentiment = &sentiment
		return nil
	}
	if s.sim != nil {
		return s.sim.Update(ctx, id, annotate)
	}
	// Without a simulator nothing else writes messages.
	msg, err := s.store.Messages().Get(ctx, id)
	if err != nil {
		return models.Message{}, err
	}
	annotate(&msg)
	if err := s.store.Messages().Upsert(ctx, msg); err != nil {
		return models.Message{}, fmt.Errorf("failed to store message: %w", err)
	}
	return msg, nil
}

// MessageStats counts messages by status.
type MessageStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Canceled  int `json:"canceled"`
}

// MessageStats counts every stored message by status. Canceled counts
// messages whose transitions were dropped, whatever their status.
func (s *Service) MessageStats(ctx context.Context) (MessageStats, error) {
	msgs, err := s.store.Messages().List(ctx)
	if err != nil {
		return MessageStats{}, err
	}
	var st MessageStats
	for _, m := range msgs {
		st.Total++
		switch m.Status {
		case models.MessageStatusPending:
			st.Pending++
		case models.MessageStatusSent:
			st.Sent++
		case models.MessageStatusDelivered:
			st.Delivered++
		case models.MessageStatusFailed:
			st.Failed++
		}
		if m.CanceledAt != nil {
			st.Canceled++
		}
	}
	return st, nil
}
