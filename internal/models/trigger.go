package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// TriggerType identifies which lifecycle event activates a trigger.
type TriggerType string

const (
	TriggerNewLead     TriggerType = "new_lead"
	TriggerStageChange TriggerType = "stage_change"
	TriggerTimeBased   TriggerType = "time_based"
	TriggerCustom      TriggerType = "custom"
)

// IsValidTriggerType checks if the given trigger type is supported.
func IsValidTriggerType(tt TriggerType) bool {
	switch tt {
	case TriggerNewLead, TriggerStageChange, TriggerTimeBased, TriggerCustom:
		return true
	default:
		return false
	}
}

// TriggerConditions is the per-type condition payload of a trigger.
// Exactly one concrete type exists for each TriggerType.
type TriggerConditions interface {
	TriggerType() TriggerType
}

// NewLeadConditions has no fields; new_lead triggers fire unconditionally.
type NewLeadConditions struct{}

func (NewLeadConditions) TriggerType() TriggerType { return TriggerNewLead }

// StageChangeConditions restricts a stage_change trigger. Empty fields match any value.
type StageChangeConditions struct {
	PipelineID  string `json:"pipelineId,omitempty"`
	FromStageID string `json:"fromStageId,omitempty"`
	ToStageID   string `json:"toStageId,omitempty"`
}

func (StageChangeConditions) TriggerType() TriggerType { return TriggerStageChange }

// TimeBasedConditions fires once a lead has spent Days in its stage.
// Nil flags are not checked.
type TimeBasedConditions struct {
	Days                   float64 `json:"days"`
	NoResponse             *bool   `json:"noResponse,omitempty"`
	IsQualified            *bool   `json:"isQualified,omitempty"`
	IsInterested           *bool   `json:"isInterested,omitempty"`
	NeedsHumanIntervention *bool   `json:"needsHumanIntervention,omitempty"`
}

func (TimeBasedConditions) TriggerType() TriggerType { return TriggerTimeBased }

// Threshold is the elapsed time after which the trigger is due, at minute granularity.
func (c TimeBasedConditions) Threshold() time.Duration {
	return time.Duration(c.Days*24*60) * time.Minute
}

// CustomConditions is an equality predicate over arbitrary keys.
type CustomConditions map[string]any

func (CustomConditions) TriggerType() TriggerType { return TriggerCustom }

// AITrigger pairs a lifecycle event type with its conditions and an optional delay.
type AITrigger struct {
	ID           string
	Type         TriggerType
	Conditions   TriggerConditions
	DelayMinutes float64
}

// Delay returns how long the agent waits before sending.
func (t AITrigger) Delay() time.Duration {
	if t.DelayMinutes <= 0 {
		return 0
	}
	return time.Duration(t.DelayMinutes * float64(time.Minute))
}

// Validate checks the trigger type and that its conditions belong to it.
func (t *AITrigger) Validate() error {
	if !IsValidTriggerType(t.Type) {
		return invalid("trigger", "type", fmt.Errorf("%w: %q", ErrInvalidTriggerType, t.Type))
	}
	if t.Conditions == nil {
		t.Conditions = emptyConditions(t.Type)
	}
	if t.Conditions.TriggerType() != t.Type {
		return invalid("trigger", "conditions", ErrConditionsMismatch)
	}
	if t.DelayMinutes < 0 {
		return invalid("trigger", "delay", ErrNegativeDelay)
	}
	if tb, ok := t.Conditions.(TimeBasedConditions); ok && tb.Days < 0 {
		return invalid("trigger", "conditions.days", ErrNegativeDays)
	}
	return nil
}

func emptyConditions(tt TriggerType) TriggerConditions {
	switch tt {
	case TriggerNewLead:
		return NewLeadConditions{}
	case TriggerStageChange:
		return StageChangeConditions{}
	case TriggerTimeBased:
		return TimeBasedConditions{}
	case TriggerCustom:
		return CustomConditions{}
	default:
		return nil
	}
}

type triggerWire struct {
	ID         string          `json:"id"`
	Type       TriggerType     `json:"type"`
	Conditions json.RawMessage `json:"conditions,omitempty"`
	Delay      float64         `json:"delay,omitempty"`
}

// MarshalJSON writes the trigger as {"id","type","conditions","delay"}.
func (t AITrigger) MarshalJSON() ([]byte, error) {
	cond := t.Conditions
	if cond == nil {
		cond = emptyConditions(t.Type)
	}
	raw, err := json.Marshal(cond)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s conditions: %w", t.Type, err)
	}
	return json.Marshal(triggerWire{ID: t.ID, Type: t.Type, Conditions: raw, Delay: t.DelayMinutes})
}

// UnmarshalJSON decodes conditions into the variant selected by "type".
func (t *AITrigger) UnmarshalJSON(data []byte) error {
	var w triggerWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !IsValidTriggerType(w.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidTriggerType, w.Type)
	}
	raw := w.Conditions
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = []byte("{}")
	}

	var cond TriggerConditions
	switch w.Type {
	case TriggerNewLead:
		cond = NewLeadConditions{}
	case TriggerStageChange:
		var c StageChangeConditions
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("invalid stage_change conditions: %w", err)
		}
		cond = c
	case TriggerTimeBased:
		var c TimeBasedConditions
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("invalid time_based conditions: %w", err)
		}
		cond = c
	case TriggerCustom:
		c := CustomConditions{}
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("invalid custom conditions: %w", err)
		}
		cond = c
	}

	*t = AITrigger{ID: w.ID, Type: w.Type, Conditions: cond, DelayMinutes: w.Delay}
	return nil
}

func (t AITrigger) clone() AITrigger {
	switch c := t.Conditions.(type) {
	case CustomConditions:
		t.Conditions = CustomConditions(maps.Clone(map[string]any(c)))
	case TimeBasedConditions:
		c.NoResponse = cloneBool(c.NoResponse)
		c.IsQualified = cloneBool(c.IsQualified)
		c.IsInterested = cloneBool(c.IsInterested)
		c.NeedsHumanIntervention = cloneBool(c.NeedsHumanIntervention)
		t.Conditions = c
	}
	return t
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

// Bool returns a pointer to b, for optional trigger flags.
func Bool(b bool) *bool { return &b }
