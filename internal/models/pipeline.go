package models

import (
	"slices"
	"strings"
	"time"
)

// Stage is one step of a pipeline. Order is 1-based and contiguous.
type Stage struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Color      string `json:"color,omitempty"`
	Order      int    `json:"order"`
	PipelineID string `json:"pipelineId"`
}

// Pipeline is a named ordered sequence of stages.
type Pipeline struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsDefault   bool      `json:"isDefault"`
	Stages      []Stage   `json:"stages"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks the pipeline has a name and at least one named stage, and
// that no two stages share an id. Empty ids are left for the caller to mint.
func (p *Pipeline) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("pipeline", "name", ErrEmptyName)
	}
	if len(p.Stages) == 0 {
		return invalid("pipeline", "stages", ErrNoStages)
	}
	seen := make(map[string]bool, len(p.Stages))
	for _, st := range p.Stages {
		if strings.TrimSpace(st.Name) == "" {
			return invalid("pipeline", "stages", ErrEmptyStageName)
		}
		if st.ID == "" {
			continue
		}
		if seen[st.ID] {
			return invalid("pipeline", "stages", ErrDuplicateStage)
		}
		seen[st.ID] = true
	}
	return nil
}

// Stage looks up a stage of this pipeline by id.
func (p Pipeline) Stage(id string) (Stage, bool) {
	for _, st := range p.Stages {
		if st.ID == id {
			return st, true
		}
	}
	return Stage{}, false
}

// FirstStage returns the stage with the lowest order.
func (p Pipeline) FirstStage() (Stage, bool) {
	if len(p.Stages) == 0 {
		return Stage{}, false
	}
	return slices.MinFunc(p.Stages, func(a, b Stage) int { return a.Order - b.Order }), true
}

// LastStage returns the stage with the highest order. Leads there count as won.
func (p Pipeline) LastStage() (Stage, bool) {
	if len(p.Stages) == 0 {
		return Stage{}, false
	}
	return slices.MaxFunc(p.Stages, func(a, b Stage) int { return a.Order - b.Order }), true
}

func (p Pipeline) EntityID() string { return p.ID }

func (p Pipeline) Clone() Pipeline {
	p.Stages = slices.Clone(p.Stages)
	return p
}
