package models

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// MessageStatus is the delivery lifecycle state of a message.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusFailed    MessageStatus = "failed"
)

// IsValidMessageStatus checks if the given status is known.
func IsValidMessageStatus(s MessageStatus) bool {
	switch s {
	case MessageStatusPending, MessageStatusSent, MessageStatusDelivered, MessageStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next is a legal forward step from s.
// delivered and failed are terminal.
func (s MessageStatus) CanTransitionTo(next MessageStatus) bool {
	switch s {
	case MessageStatusPending:
		return next == MessageStatusSent || next == MessageStatusFailed
	case MessageStatusSent:
		return next == MessageStatusDelivered || next == MessageStatusFailed
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s MessageStatus) IsTerminal() bool {
	return s == MessageStatusDelivered || s == MessageStatusFailed
}

// SentimentLabel classifies a reply's tone.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// Sentiment is a post-hoc annotation on a message.
type Sentiment struct {
	Label SentimentLabel `json:"label"`
	Score float64        `json:"score"`
}

// Validate checks the label and that the score is within [0, 1].
func (s Sentiment) Validate() error {
	switch s.Label {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
	default:
		return invalid("sentiment", "label", fmt.Errorf("%w: label %q", ErrInvalidSentiment, s.Label))
	}
	if s.Score < 0 || s.Score > 1 {
		return invalid("sentiment", "score", fmt.Errorf("%w: score %v", ErrInvalidSentiment, s.Score))
	}
	return nil
}

// Message is one outbound communication and its lifecycle.
type Message struct {
	ID         string        `json:"id"`
	LeadID     string        `json:"leadId"`
	AgentID    string        `json:"agentId"`
	TemplateID string        `json:"templateId,omitempty"`
	TriggerID  string        `json:"triggerId,omitempty"`
	Type       ChannelType   `json:"type"`
	Recipient  string        `json:"recipient,omitempty"`
	Subject    string        `json:"subject,omitempty"`
	Content    string        `json:"content"`
	Status     MessageStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	// SendAt is when the pending -> sent transition is due.
	SendAt        time.Time  `json:"sendAt"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
	DeliveredAt   *time.Time `json:"deliveredAt,omitempty"`
	FailedAt      *time.Time `json:"failedAt,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`
	// CanceledAt is set when a scheduled transition was dropped because the
	// lead or agent no longer exists. The status is left as it was.
	CanceledAt *time.Time `json:"canceledAt,omitempty"`
	Sentiment  *Sentiment `json:"sentiment,omitempty"`
}

// InFlight reports whether the message still has a transition ahead of it.
func (m Message) InFlight() bool {
	return !m.Status.IsTerminal() && m.CanceledAt == nil
}

func (m Message) EntityID() string { return m.ID }

func (m Message) Clone() Message {
	if m.Sentiment != nil {
		s := *m.Sentiment
		m.Sentiment = &s
	}
	return m
}

// LeadContext is the per-lead automation state accumulated across agents.
type LeadContext struct {
	LeadID       string `json:"leadId"`
	CurrentAgent string `json:"currentAgent,omitempty"`
	// CompletedAgents is append-only and never holds duplicates.
	CompletedAgents        []string       `json:"completedAgents"`
	ContextData            map[string]any `json:"contextData"`
	LastInteraction        *time.Time     `json:"lastInteraction,omitempty"`
	IsQualified            bool           `json:"isQualified"`
	IsInterested           bool           `json:"isInterested"`
	NeedsHumanIntervention bool           `json:"needsHumanIntervention"`
	// FiredTriggers holds keys of time based triggers already fired for the
	// lead's current stage entry.
	FiredTriggers []string `json:"firedTriggers,omitempty"`
}

// NewLeadContext returns an empty context for a lead.
func NewLeadContext(leadID string) LeadContext {
	return LeadContext{
		LeadID:          leadID,
		CompletedAgents: []string{},
		ContextData:     map[string]any{},
	}
}

// MarkCompleted appends agentID unless already present. It reports whether it was added.
func (c *LeadContext) MarkCompleted(agentID string) bool {
	if slices.Contains(c.CompletedAgents, agentID) {
		return false
	}
	c.CompletedAgents = append(c.CompletedAgents, agentID)
	return true
}

// HasFired reports whether the trigger key was already recorded.
func (c LeadContext) HasFired(key string) bool {
	return slices.Contains(c.FiredTriggers, key)
}

// MarkFired records a fired trigger key.
func (c *LeadContext) MarkFired(key string) {
	if !c.HasFired(key) {
		c.FiredTriggers = append(c.FiredTriggers, key)
	}
}

// Lookup returns a value from the context, including the boolean flags by name.
func (c LeadContext) Lookup(key string) (any, bool) {
	switch key {
	case "isQualified":
		return c.IsQualified, true
	case "isInterested":
		return c.IsInterested, true
	case "needsHumanIntervention":
		return c.NeedsHumanIntervention, true
	case "currentAgent":
		return c.CurrentAgent, c.CurrentAgent != ""
	}
	v, ok := c.ContextData[key]
	return v, ok
}

func (c LeadContext) EntityID() string { return c.LeadID }

func (c LeadContext) Clone() LeadContext {
	c.CompletedAgents = slices.Clone(c.CompletedAgents)
	c.ContextData = maps.Clone(c.ContextData)
	c.FiredTriggers = slices.Clone(c.FiredTriggers)
	return c
}
