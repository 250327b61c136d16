package crm

import (
	"context"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// StageStats is the lead count and value of one stage.
type StageStats struct {
	StageID string  `json:"stageId"`
	Name    string  `json:"name"`
	Color   string  `json:"color,omitempty"`
	Leads   int     `json:"leads"`
	Value   float64 `json:"value"`
	// Share is the stage's fraction of the pipeline value, in percent.
	Share float64 `json:"share"`
}

// PipelineStats summarizes a pipeline for the dashboard. Leads in the last
// stage count as won.
type PipelineStats struct {
	PipelineID     string       `json:"pipelineId"`
	TotalLeads     int          `json:"totalLeads"`
	TotalValue     float64      `json:"totalValue"`
	WonLeads       int          `json:"wonLeads"`
	WonValue       float64      `json:"wonValue"`
	ConversionRate float64      `json:"conversionRate"`
	AvgDealSize    float64      `json:"avgDealSize"`
	Stages         []StageStats `json:"stages"`
}

// PipelineStats computes the dashboard figures of a pipeline.
func (s *Service) PipelineStats(ctx context.Context, pipelineID string) (PipelineStats, error) {
	p, err := s.store.Pipelines().Get(ctx, pipelineID)
	if err != nil {
		return PipelineStats{}, err
	}
	leads, err := s.ListLeads(ctx, LeadFilter{PipelineID: pipelineID})
	if err != nil {
		return PipelineStats{}, err
	}
	return computeStats(p, leads), nil
}

func computeStats(p models.Pipeline, leads []models.Lead) PipelineStats {
	st := PipelineStats{PipelineID: p.ID, Stages: make([]StageStats, len(p.Stages))}
	pos := make(map[string]int, len(p.Stages))
	for i, stage := range p.Stages {
		st.Stages[i] = StageStats{StageID: stage.ID, Name: stage.Name, Color: stage.Color}
		pos[stage.ID] = i
	}
	won, _ := p.LastStage()

	for _, l := range leads {
		st.TotalLeads++
		st.TotalValue += l.Value
		if i, ok := pos[l.StageID]; ok {
			st.Stages[i].Leads++
			st.Stages[i].Value += l.Value
		}
		if l.StageID == won.ID {
			st.WonLeads++
			st.WonValue += l.Value
		}
	}
	if st.TotalLeads > 0 {
		st.ConversionRate = float64(st.WonLeads) / float64(st.TotalLeads) * 100
		st.AvgDealSize = st.TotalValue / float64(st.TotalLeads)
	}
	if st.TotalValue > 0 {
		for i := range st.Stages {
			st.Stages[i].Share = st.Stages[i].Value / st.TotalValue * 100
		}
	}
	return st
}
