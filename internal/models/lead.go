package models

import (
	"maps"
	"strings"
	"time"
)

// Lead is a sales prospect tracked through a pipeline.
type Lead struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Company      string         `json:"company,omitempty"`
	Value        float64        `json:"value"`
	StageID      string         `json:"stageId"`
	PipelineID   string         `json:"pipelineId"`
	AssignedTo   string         `json:"assignedTo,omitempty"`
	Source       string         `json:"source,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	CustomFields map[string]any `json:"customFields,omitempty"`
	// StageChangedAt is when the lead entered its current stage.
	StageChangedAt time.Time `json:"stageChangedAt"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Validate checks the fields every stored lead must carry.
func (l *Lead) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return invalid("lead", "name", ErrEmptyName)
	}
	if l.Value < 0 {
		return invalid("lead", "value", ErrNegativeValue)
	}
	if l.PipelineID == "" {
		return invalid("lead", "pipelineId", ErrMissingPipeline)
	}
	if l.StageID == "" {
		return invalid("lead", "stageId", ErrMissingStage)
	}
	return nil
}

func (l Lead) EntityID() string { return l.ID }

func (l Lead) Clone() Lead {
	l.CustomFields = maps.Clone(l.CustomFields)
	return l
}
