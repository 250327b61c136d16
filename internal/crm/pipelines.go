package crm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/util"
)

// ListPipelines returns every pipeline in insertion order.
func (s *Service) ListPipelines(ctx context.Context) ([]models.Pipeline, error) {
	return s.store.Pipelines().List(ctx)
}

// GetPipeline returns a pipeline by id.
func (s *Service) GetPipeline(ctx context.Context, id string) (models.Pipeline, error) {
	return s.store.Pipelines().Get(ctx, id)
}

// DefaultPipeline returns the default pipeline, or the first one when none is
// flagged. It returns store.ErrNotFound when there are no pipelines.
func (s *Service) DefaultPipeline(ctx context.Context) (models.Pipeline, error) {
	all, err := s.store.Pipelines().List(ctx)
	if err != nil {
		return models.Pipeline{}, err
	}
	if len(all) == 0 {
		return models.Pipeline{}, fmt.Errorf("default pipeline: %w", store.ErrNotFound)
	}
	for _, p := range all {
		if p.IsDefault {
			return p, nil
		}
	}
	return all[0], nil
}

// SavePipeline creates or replaces a pipeline. Stages are renumbered 1..n in
// list order, new stages get ids, and the first pipeline ever saved becomes
// the default. Removing a stage that still holds leads is refused.
func (s *Service) SavePipeline(ctx context.Context, p models.Pipeline) (models.Pipeline, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.ID == "" {
		p.ID = util.NewEntityID()
	}
	for i := range p.Stages {
		st := &p.Stages[i]
		if st.ID == "" {
			st.ID = util.NewEntityID()
		}
		st.Name = strings.TrimSpace(st.Name)
		st.Order = i + 1
		st.PipelineID = p.ID
	}
	if err := p.Validate(); err != nil {
		return models.Pipeline{}, err
	}

	all, err := s.store.Pipelines().List(ctx)
	if err != nil {
		return models.Pipeline{}, err
	}
	now := s.clock.Now()
	p.CreatedAt = now
	existing := false
	for _, other := range all {
		if other.ID != p.ID {
			continue
		}
		existing = true
		p.CreatedAt = other.CreatedAt
		p.IsDefault = p.IsDefault || other.IsDefault
		if err := s.checkRemovedStages(ctx, other, p); err != nil {
			return models.Pipeline{}, err
		}
	}
	if len(all) == 0 || (len(all) == 1 && existing) {
		p.IsDefault = true
	}
	p.UpdatedAt = now

	if err := s.store.Pipelines().Upsert(ctx, p); err != nil {
		return models.Pipeline{}, fmt.Errorf("failed to store pipeline: %w", err)
	}
	slog.Info("crm.SavePipeline: pipeline saved", "pipelineID", p.ID, "stages", len(p.Stages), "isDefault", p.IsDefault)

	if p.IsDefault {
		if err := s.SetDefaultPipeline(ctx, p.ID); err != nil {
			return models.Pipeline{}, err
		}
	}
	return p, nil
}

func (s *Service) checkRemovedStages(ctx context.Context, old, next models.Pipeline) error {
	for _, st := range old.Stages {
		if _, kept := next.Stage(st.ID); kept {
			continue
		}
		leads, err := store.Filter(ctx, s.store.Leads(), func(l models.Lead) bool {
			return l.PipelineID == old.ID && l.StageID == st.ID
		})
		if err != nil {
			return err
		}
		if len(leads) > 0 {
			return fmt.Errorf("%w: %s has %d leads", ErrStageHasLeads, st.Name, len(leads))
		}
	}
	return nil
}

// SetDefaultPipeline flags id as the default and clears the flag everywhere
// else, so exactly one pipeline is the default afterwards.
func (s *Service) SetDefaultPipeline(ctx context.Context, id string) error {
	if _, err := s.store.Pipelines().Get(ctx, id); err != nil {
		return err
	}
	all, err := s.store.Pipelines().List(ctx)
	if err != nil {
		return err
	}
	for _, p := range all {
		want := p.ID == id
		if p.IsDefault == want {
			continue
		}
		p.IsDefault = want
		if err := s.store.Pipelines().Upsert(ctx, p); err != nil {
			return fmt.Errorf("failed to update pipeline %s: %w", p.ID, err)
		}
	}
	slog.Info("crm.SetDefaultPipeline: default pipeline set", "pipelineID", id)
	return nil
}

// DeletePipeline removes a pipeline. The default pipeline and pipelines that
// still hold leads cannot be deleted.
func (s *Service) DeletePipeline(ctx context.Context, id string) error {
	p, err := s.store.Pipelines().Get(ctx, id)
	if err != nil {
		return err
	}
	if p.IsDefault {
		return ErrDefaultPipelineDelete
	}
	leads, err := s.ListLeads(ctx, LeadFilter{PipelineID: id})
	if err != nil {
		return err
	}
	if len(leads) > 0 {
		return fmt.Errorf("%w: %d leads", ErrPipelineHasLeads, len(leads))
	}
	if err := s.store.Pipelines().Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	slog.Info("crm.DeletePipeline: pipeline deleted", "pipelineID", id)
	return nil
}
