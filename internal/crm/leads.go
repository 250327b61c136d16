package crm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/trigger"
	"github.com/BTreeMap/LeadPipe/internal/util"
)

// LeadFilter narrows ListLeads. Empty fields match everything. Query is a
// case-insensitive substring of name, email, phone or company.
type LeadFilter struct {
	PipelineID string
	StageID    string
	Query      string
}

func (f LeadFilter) match(l models.Lead) bool {
	if f.PipelineID != "" && l.PipelineID != f.PipelineID {
		return false
	}
	if f.StageID != "" && l.StageID != f.StageID {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		for _, s := range []string{l.Name, l.Email, l.Phone, l.Company} {
			if strings.Contains(strings.ToLower(s), q) {
				return true
			}
		}
		return false
	}
	return true
}

// ListLeads returns the leads matching filter in insertion order.
func (s *Service) ListLeads(ctx context.Context, filter LeadFilter) ([]models.Lead, error) {
	return store.Filter(ctx, s.store.Leads(), filter.match)
}

// GetLead returns a lead by id.
func (s *Service) GetLead(ctx context.Context, id string) (models.Lead, error) {
	return s.store.Leads().Get(ctx, id)
}

// CreateLead validates and stores a new lead, then raises lead_created. A
// lead without a pipeline goes to the default pipeline; a lead without a
// stage goes to the first stage of its pipeline.
func (s *Service) CreateLead(ctx context.Context, lead models.Lead) (models.Lead, error) {
	if err := s.placeLead(ctx, &lead); err != nil {
		return models.Lead{}, err
	}
	if err := s.checkLead(ctx, &lead); err != nil {
		return models.Lead{}, err
	}
	now := s.clock.Now()
	if lead.ID == "" {
		lead.ID = util.NewEntityID()
	}
	lead.CreatedAt = now
	lead.UpdatedAt = now
	lead.StageChangedAt = now
	if err := s.store.Leads().Upsert(ctx, lead); err != nil {
		return models.Lead{}, fmt.Errorf("failed to store lead: %w", err)
	}
	slog.Info("crm.CreateLead: lead created", "leadID", lead.ID, "pipelineID", lead.PipelineID, "stageID", lead.StageID)

	s.emit(ctx, trigger.Event{
		Kind:       trigger.EventLeadCreated,
		LeadID:     lead.ID,
		PipelineID: lead.PipelineID,
		ToStageID:  lead.StageID,
	})
	return lead, nil
}

// UpdateLead replaces a stored lead. When the stage or pipeline changes the
// stage clock restarts and stage_changed is raised.
func (s *Service) UpdateLead(ctx context.Context, lead models.Lead) (models.Lead, error) {
	old, err := s.store.Leads().Get(ctx, lead.ID)
	if err != nil {
		return models.Lead{}, err
	}
	if lead.PipelineID == "" {
		lead.PipelineID = old.PipelineID
	}
	if lead.StageID == "" && lead.PipelineID == old.PipelineID {
		lead.StageID = old.StageID
	}
	if err := s.placeLead(ctx, &lead); err != nil {
		return models.Lead{}, err
	}
	if err := s.checkLead(ctx, &lead); err != nil {
		return models.Lead{}, err
	}

	now := s.clock.Now()
	lead.CreatedAt = old.CreatedAt
	lead.UpdatedAt = now
	moved := lead.StageID != old.StageID || lead.PipelineID != old.PipelineID
	if moved {
		lead.StageChangedAt = now
	} else {
		lead.StageChangedAt = old.StageChangedAt
	}
	if err := s.store.Leads().Upsert(ctx, lead); err != nil {
		return models.Lead{}, fmt.Errorf("failed to store lead: %w", err)
	}

	if moved {
		slog.Info("crm.UpdateLead: lead changed stage", "leadID", lead.ID, "from", old.StageID, "to", lead.StageID)
		s.emit(ctx, trigger.Event{
			Kind:        trigger.EventStageChanged,
			LeadID:      lead.ID,
			PipelineID:  lead.PipelineID,
			FromStageID: old.StageID,
			ToStageID:   lead.StageID,
		})
	}
	return lead, nil
}

// MoveLead moves a lead to another stage of its pipeline.
func (s *Service) MoveLead(ctx context.Context, leadID, stageID string) (models.Lead, error) {
	lead, err := s.store.Leads().Get(ctx, leadID)
	if err != nil {
		return models.Lead{}, err
	}
	if stageID == "" {
		return models.Lead{}, &models.ValidationError{Entity: "lead", Field: "stageId", Err: models.ErrMissingStage}
	}
	lead.StageID = stageID
	return s.UpdateLead(ctx, lead)
}

// DeleteLead cancels the lead's in-flight messages, then removes the lead and its context.
func (s *Service) DeleteLead(ctx context.Context, id string) error {
	if _, err := s.store.Leads().Get(ctx, id); err != nil {
		return err
	}
	if s.sim != nil {
		n, err := s.sim.CancelForLead(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to cancel messages: %w", err)
		}
		if n > 0 {
			slog.Info("crm.DeleteLead: canceled in-flight messages", "leadID", id, "count", n)
		}
	}
	if err := s.store.Leads().Delete(ctx, id); err != nil {
		return err
	}
	if err := s.store.LeadContexts().Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// LeadContext returns the automation context of a lead.
func (s *Service) LeadContext(ctx context.Context, leadID string) (models.LeadContext, error) {
	if _, err := s.store.Leads().Get(ctx, leadID); err != nil {
		return models.LeadContext{}, err
	}
	lc, err := s.store.LeadContexts().Get(ctx, leadID)
	if errors.Is(err, store.ErrNotFound) {
		return models.NewLeadContext(leadID), nil
	}
	return lc, err
}

// LeadFlags are the qualification flags an operator sets on a lead's
// automation context. Nil fields are left unchanged.
type LeadFlags struct {
	IsQualified            *bool `json:"isQualified,omitempty"`
	IsInterested           *bool `json:"isInterested,omitempty"`
	NeedsHumanIntervention *bool `json:"needsHumanIntervention,omitempty"`
}

// UpdateLeadFlags sets the given flags on the lead's context. Time-based and
// custom triggers read them on the next sweep or custom event.
func (s *Service) UpdateLeadFlags(ctx context.Context, leadID string, flags LeadFlags) (models.LeadContext, error) {
	if _, err := s.store.Leads().Get(ctx, leadID); err != nil {
		return models.LeadContext{}, err
	}
	apply := func(lc *models.LeadContext) {
		if flags.IsQualified != nil {
			lc.IsQualified = *flags.IsQualified
		}
		if flags.IsInterested != nil {
			lc.IsInterested = *flags.IsInterested
		}
		if flags.NeedsHumanIntervention != nil {
			lc.NeedsHumanIntervention = *flags.NeedsHumanIntervention
		}
	}

	var (
		lc  models.LeadContext
		err error
	)
	if s.sim != nil {
		lc, err = s.sim.UpdateLeadContext(ctx, leadID, apply)
	} else {
		lc, err = s.LeadContext(ctx, leadID)
		if err == nil {
			apply(&lc)
			err = s.store.LeadContexts().Upsert(ctx, lc)
		}
	}
	if err != nil {
		return models.LeadContext{}, fmt.Errorf("failed to update lead context: %w", err)
	}
	slog.Info("crm.UpdateLeadFlags: lead context updated", "leadID", leadID,
		"isQualified", lc.IsQualified, "isInterested", lc.IsInterested, "needsHumanIntervention", lc.NeedsHumanIntervention)
	return lc, nil
}

// placeLead fills in the default pipeline and first stage and checks the
// stage belongs to the pipeline.
func (s *Service) placeLead(ctx context.Context, lead *models.Lead) error {
	var (
		p   models.Pipeline
		err error
	)
	if lead.PipelineID == "" {
		p, err = s.DefaultPipeline(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return &models.ValidationError{Entity: "lead", Field: "pipelineId", Err: models.ErrMissingPipeline}
		}
	} else {
		p, err = s.store.Pipelines().Get(ctx, lead.PipelineID)
		if errors.Is(err, store.ErrNotFound) {
			return &models.ValidationError{Entity: "lead", Field: "pipelineId", Err: fmt.Errorf("%w: %s", ErrUnknownPipeline, lead.PipelineID)}
		}
	}
	if err != nil {
		return err
	}
	lead.PipelineID = p.ID

	if lead.StageID == "" {
		first, ok := p.FirstStage()
		if !ok {
			return &models.ValidationError{Entity: "lead", Field: "stageId", Err: models.ErrMissingStage}
		}
		lead.StageID = first.ID
		return nil
	}
	if _, ok := p.Stage(lead.StageID); !ok {
		return &models.ValidationError{Entity: "lead", Field: "stageId", Err: fmt.Errorf("%w: %s", ErrUnknownStage, lead.StageID)}
	}
	return nil
}

func (s *Service) checkLead(ctx context.Context, lead *models.Lead) error {
	lead.Name = strings.TrimSpace(lead.Name)
	if err := lead.Validate(); err != nil {
		return err
	}
	return s.ValidateLeadCustomFields(ctx, *lead)
}

// ValidateLeadCustomFields enforces required fields and select options.
// Values are keyed by field id.
func (s *Service) ValidateLeadCustomFields(ctx context.Context, lead models.Lead) error {
	fields, err := s.store.CustomFields().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list custom fields: %w", err)
	}
	for _, f := range fields {
		v, ok := lead.CustomFields[f.ID]
		if err := f.CheckValue(v, ok); err != nil {
			return err
		}
	}
	return nil
}
