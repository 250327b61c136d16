package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// AgentType classifies an agent's role in the sales conversation.
type AgentType string

const (
	AgentWelcome          AgentType = "welcome"
	AgentExplanation      AgentType = "explanation"
	AgentTechnicalSupport AgentType = "technical_support"
	AgentClosing          AgentType = "closing"
	AgentFollowup         AgentType = "followup"
	AgentGeneral          AgentType = "general"
)

// NormalizeAgentType maps unknown or empty types to AgentGeneral.
func NormalizeAgentType(t AgentType) AgentType {
	switch t {
	case AgentWelcome, AgentExplanation, AgentTechnicalSupport, AgentClosing, AgentFollowup, AgentGeneral:
		return t
	default:
		return AgentGeneral
	}
}

// ChannelType is the outbound channel of a template or message.
type ChannelType string

const (
	ChannelEmail    ChannelType = "email"
	ChannelWhatsApp ChannelType = "whatsapp"
	ChannelSMS      ChannelType = "sms"
)

// IsValidChannel checks if the given channel is supported.
func IsValidChannel(c ChannelType) bool {
	switch c {
	case ChannelEmail, ChannelWhatsApp, ChannelSMS:
		return true
	default:
		return false
	}
}

// MessageTemplate is a message body with {{variable}} placeholders.
// Variables is informational and is not checked against the content.
type MessageTemplate struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Type      ChannelType `json:"type"`
	Subject   string      `json:"subject,omitempty"`
	Content   string      `json:"content"`
	Variables []string    `json:"variables,omitempty"`
}

// Validate checks the channel and content of the template.
func (m *MessageTemplate) Validate() error {
	if !IsValidChannel(m.Type) {
		return invalid("template", "type", fmt.Errorf("%w: %q", ErrInvalidChannel, m.Type))
	}
	if strings.TrimSpace(m.Content) == "" {
		return invalid("template", "content", ErrEmptyContent)
	}
	return nil
}

// AISettings is model configuration metadata. Nothing in LeadPipe calls a model.
type AISettings struct {
	Model        string  `json:"model,omitempty"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"maxTokens"`
	SystemPrompt string  `json:"systemPrompt,omitempty"`
}

// AIAgent is an automation unit that reacts to triggers by sending templates.
type AIAgent struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	Type             AgentType         `json:"type"`
	IsActive         bool              `json:"isActive"`
	Triggers         []AITrigger       `json:"triggers"`
	MessageTemplates []MessageTemplate `json:"messageTemplates"`
	Settings         AISettings        `json:"settings"`
	NextAgents       []string          `json:"nextAgents,omitempty"`
	ContextFields    []string          `json:"contextFields,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Validate checks the agent and each of its triggers and templates.
func (a *AIAgent) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return invalid("agent", "name", ErrEmptyName)
	}
	for i := range a.Triggers {
		if err := a.Triggers[i].Validate(); err != nil {
			return err
		}
	}
	for i := range a.MessageTemplates {
		if err := a.MessageTemplates[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Template looks up one of the agent's templates by id.
func (a AIAgent) Template(id string) (MessageTemplate, bool) {
	for _, t := range a.MessageTemplates {
		if t.ID == id {
			return t, true
		}
	}
	return MessageTemplate{}, false
}

func (a AIAgent) EntityID() string { return a.ID }

func (a AIAgent) Clone() AIAgent {
	triggers := make([]AITrigger, len(a.Triggers))
	for i, t := range a.Triggers {
		triggers[i] = t.clone()
	}
	a.Triggers = triggers
	templates := make([]MessageTemplate, len(a.MessageTemplates))
	for i, t := range a.MessageTemplates {
		t.Variables = slices.Clone(t.Variables)
		templates[i] = t
	}
	a.MessageTemplates = templates
	a.NextAgents = slices.Clone(a.NextAgents)
	a.ContextFields = slices.Clone(a.ContextFields)
	return a
}
