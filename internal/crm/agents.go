package crm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/util"
)

// ListAgents returns every agent in insertion order, which is also the order
// triggers are evaluated in.
func (s *Service) ListAgents(ctx context.Context) ([]models.AIAgent, error) {
	return s.store.Agents().List(ctx)
}

// GetAgent returns an agent by id.
func (s *Service) GetAgent(ctx context.Context, id string) (models.AIAgent, error) {
	return s.store.Agents().Get(ctx, id)
}

// SaveAgent creates or replaces an agent. Unknown agent types become general
// and missing trigger and template ids are minted.
func (s *Service) SaveAgent(ctx context.Context, a models.AIAgent) (models.AIAgent, error) {
	a.Name = strings.TrimSpace(a.Name)
	a.Type = models.NormalizeAgentType(a.Type)
	for i := range a.Triggers {
		if a.Triggers[i].ID == "" {
			a.Triggers[i].ID = util.NewEntityID()
		}
	}
	for i := range a.MessageTemplates {
		if a.MessageTemplates[i].ID == "" {
			a.MessageTemplates[i].ID = util.NewEntityID()
		}
	}
	if err := a.Validate(); err != nil {
		return models.AIAgent{}, err
	}

	now := s.clock.Now()
	a.CreatedAt = now
	if a.ID == "" {
		a.ID = util.NewEntityID()
	} else if old, err := s.store.Agents().Get(ctx, a.ID); err == nil {
		a.CreatedAt = old.CreatedAt
	}
	a.UpdatedAt = now

	if err := s.store.Agents().Upsert(ctx, a); err != nil {
		return models.AIAgent{}, fmt.Errorf("failed to store agent: %w", err)
	}
	slog.Info("crm.SaveAgent: agent saved", "agentID", a.ID, "type", a.Type, "active", a.IsActive, "triggers", len(a.Triggers))
	return a, nil
}

// SetAgentActive turns an agent on or off.
func (s *Service) SetAgentActive(ctx context.Context, id string, active bool) (models.AIAgent, error) {
	a, err := s.store.Agents().Get(ctx, id)
	if err != nil {
		return models.AIAgent{}, err
	}
	a.IsActive = active
	a.UpdatedAt = s.clock.Now()
	if err := s.store.Agents().Upsert(ctx, a); err != nil {
		return models.AIAgent{}, fmt.Errorf("failed to store agent: %w", err)
	}
	slog.Info("crm.SetAgentActive", "agentID", id, "active", active)
	return a, nil
}

// DeleteAgent cancels the agent's in-flight messages and removes it.
func (s *Service) DeleteAgent(ctx context.Context, id string) error {
	if _, err := s.store.Agents().Get(ctx, id); err != nil {
		return err
	}
	if s.sim != nil {
		n, err := s.sim.CancelForAgent(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to cancel messages: %w", err)
		}
		if n > 0 {
			slog.Info("crm.DeleteAgent: canceled in-flight messages", "agentID", id, "count", n)
		}
	}
	if err := s.store.Agents().Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("crm.DeleteAgent: agent deleted", "agentID", id)
	return nil
}

// FlowNode places one agent on a pipeline stage.
type FlowNode struct {
	AgentID string `json:"agentId"`
	StageID string `json:"stageId"`
	// DelayMinutes is the time the agent waits after the lead enters the stage.
	DelayMinutes float64 `json:"delay,omitempty"`
}

// AgentFlow chains agents along the stages of a pipeline.
type AgentFlow struct {
	PipelineID string     `json:"pipelineId"`
	Nodes      []FlowNode `json:"nodes"`
}

// ApplyAgentFlow rewrites the agents of a flow: each gets one stage_change
// trigger for its node's stage, nextAgents pointing at the following node's
// agent, and context fields and a system prompt derived from the stage name.
// Nodes whose agent or stage is unknown are rejected before anything changes.
func (s *Service) ApplyAgentFlow(ctx context.Context, flow AgentFlow) ([]models.AIAgent, error) {
	p, err := s.store.Pipelines().Get(ctx, flow.PipelineID)
	if err != nil {
		return nil, &models.ValidationError{Entity: "flow", Field: "pipelineId", Err: fmt.Errorf("%w: %s", ErrUnknownPipeline, flow.PipelineID)}
	}

	agents := make([]models.AIAgent, len(flow.Nodes))
	stages := make([]models.Stage, len(flow.Nodes))
	for i, node := range flow.Nodes {
		a, err := s.store.Agents().Get(ctx, node.AgentID)
		if err != nil {
			return nil, &models.ValidationError{Entity: "flow", Field: fmt.Sprintf("nodes[%d].agentId", i), Err: fmt.Errorf("%w: %s", ErrUnknownAgent, node.AgentID)}
		}
		st, ok := p.Stage(node.StageID)
		if !ok {
			return nil, &models.ValidationError{Entity: "flow", Field: fmt.Sprintf("nodes[%d].stageId", i), Err: fmt.Errorf("%w: %s", ErrUnknownStage, node.StageID)}
		}
		if node.DelayMinutes < 0 {
			return nil, &models.ValidationError{Entity: "flow", Field: fmt.Sprintf("nodes[%d].delay", i), Err: models.ErrNegativeDelay}
		}
		agents[i], stages[i] = a, st
	}

	now := s.clock.Now()
	for i, node := range flow.Nodes {
		a := &agents[i]
		a.Triggers = []models.AITrigger{{
			ID:           util.NewEntityID(),
			Type:         models.TriggerStageChange,
			Conditions:   models.StageChangeConditions{PipelineID: p.ID, ToStageID: node.StageID},
			DelayMinutes: node.DelayMinutes,
		}}
		a.NextAgents = nil
		if i+1 < len(flow.Nodes) {
			a.NextAgents = []string{flow.Nodes[i+1].AgentID}
		}
		a.ContextFields = contextFieldsForStage(stages[i].Name)
		a.Settings.SystemPrompt = fmt.Sprintf("Você é um assistente especializado na fase %q do pipeline de vendas.", stages[i].Name)
		a.UpdatedAt = now
		if err := s.store.Agents().Upsert(ctx, *a); err != nil {
			return nil, fmt.Errorf("failed to store agent %s: %w", a.ID, err)
		}
	}
	slog.Info("crm.ApplyAgentFlow: flow applied", "pipelineID", p.ID, "nodes", len(flow.Nodes))
	return agents, nil
}

// contextFieldsForStage picks the lead fields an agent should collect at a
// stage, keyed off the Portuguese stage names used by the default pipeline.
func contextFieldsForStage(stageName string) []string {
	base := []string{"name", "email", "phone"}
	lower := strings.ToLower(stageName)
	switch {
	case strings.Contains(lower, "novo") || strings.Contains(lower, "lead"):
		return append(base, "source", "interest")
	case strings.Contains(lower, "qualific"):
		return append(base, "company", "budget", "timeline")
	case strings.Contains(lower, "proposta"):
		return append(base, "company", "budget", "decision_maker")
	}
	return base
}
