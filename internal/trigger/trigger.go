// Package trigger decides which agents react to a lead lifecycle event.
//
// Matching is a pure query over the agent list and the lead context: it never
// mutates anything and returns the same matches for the same inputs.
package trigger

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// EventKind identifies a lead lifecycle event.
type EventKind string

const (
	EventLeadCreated  EventKind = "lead_created"
	EventStageChanged EventKind = "stage_changed"
	EventTimeElapsed  EventKind = "time_elapsed"
	EventCustomSignal EventKind = "custom_signal"
)

// triggerFor maps event kinds to the trigger type they can activate.
var triggerFor = map[EventKind]models.TriggerType{
	EventLeadCreated:  models.TriggerNewLead,
	EventStageChanged: models.TriggerStageChange,
	EventTimeElapsed:  models.TriggerTimeBased,
	EventCustomSignal: models.TriggerCustom,
}

// IsValidEventKind checks if the given event kind is supported.
func IsValidEventKind(k EventKind) bool {
	_, ok := triggerFor[k]
	return ok
}

// Event is a lifecycle event for one lead.
type Event struct {
	Kind        EventKind `json:"kind"`
	LeadID      string    `json:"leadId"`
	PipelineID  string    `json:"pipelineId,omitempty"`
	FromStageID string    `json:"fromStageId,omitempty"`
	ToStageID   string    `json:"toStageId,omitempty"`
	// Elapsed is the time the lead has spent in its current stage (time_elapsed).
	Elapsed time.Duration `json:"elapsed,omitempty"`
	// StageEnteredAt is when the lead entered its current stage (time_elapsed).
	StageEnteredAt time.Time      `json:"stageEnteredAt,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// Hit is an (agent, trigger) pair whose trigger accepted the event.
type Hit struct {
	Agent   models.AIAgent
	Trigger models.AITrigger
}

// Match returns the matches for event, evaluating active agents in the given
// order and each agent's triggers in order. leadCtx may be nil.
func Match(event Event, agents []models.AIAgent, leadCtx *models.LeadContext) []Hit {
	want, ok := triggerFor[event.Kind]
	if !ok {
		return nil
	}
	lc := models.NewLeadContext(event.LeadID)
	if leadCtx != nil {
		lc = *leadCtx
	}

	var out []Hit
	for _, agent := range agents {
		if !agent.IsActive {
			continue
		}
		for _, trig := range agent.Triggers {
			if trig.Type != want {
				continue
			}
			if Accepts(trig, event, lc) {
				out = append(out, Hit{Agent: agent, Trigger: trig})
			}
		}
	}
	return out
}

// Accepts reports whether trig's conditions hold for event. The caller has
// already checked that the trigger type corresponds to the event kind.
func Accepts(trig models.AITrigger, event Event, lc models.LeadContext) bool {
	switch c := trig.Conditions.(type) {
	case nil, models.NewLeadConditions:
		return true
	case models.StageChangeConditions:
		return stageChangeHolds(c, event)
	case models.TimeBasedConditions:
		return timeBasedHolds(c, event, lc)
	case models.CustomConditions:
		return customHolds(c, event, lc)
	default:
		return false
	}
}

func stageChangeHolds(c models.StageChangeConditions, e Event) bool {
	return anyOrEqual(c.PipelineID, e.PipelineID) &&
		anyOrEqual(c.FromStageID, e.FromStageID) &&
		anyOrEqual(c.ToStageID, e.ToStageID)
}

func anyOrEqual(want, got string) bool {
	return want == "" || want == got
}

func timeBasedHolds(c models.TimeBasedConditions, e Event, lc models.LeadContext) bool {
	if e.Elapsed.Truncate(time.Minute) < c.Threshold() {
		return false
	}
	if c.NoResponse != nil && *c.NoResponse != noResponseSince(lc, e.StageEnteredAt) {
		return false
	}
	if c.IsQualified != nil && *c.IsQualified != lc.IsQualified {
		return false
	}
	if c.IsInterested != nil && *c.IsInterested != lc.IsInterested {
		return false
	}
	if c.NeedsHumanIntervention != nil && *c.NeedsHumanIntervention != lc.NeedsHumanIntervention {
		return false
	}
	return true
}

// noResponseSince reports whether the lead has not interacted since since.
func noResponseSince(lc models.LeadContext, since time.Time) bool {
	if lc.LastInteraction == nil {
		return true
	}
	return lc.LastInteraction.Before(since)
}

func customHolds(c models.CustomConditions, e Event, lc models.LeadContext) bool {
	for key, want := range c {
		got, ok := e.Payload[key]
		if !ok {
			got, ok = lc.Lookup(key)
		}
		if !ok || !Equal(want, got) {
			return false
		}
	}
	return true
}

// Equal compares condition values. Numbers compare numerically regardless of
// their Go type; everything else compares by deep equality.
func Equal(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		f, err := strconv.ParseFloat(string(x), 64)
		return f, err == nil
	}
	return 0, false
}

// FirstTemplate returns the template an agent sends when it matches. Only the
// first template is used; additional templates are not fanned out.
func FirstTemplate(agent models.AIAgent) (models.MessageTemplate, bool) {
	if len(agent.MessageTemplates) == 0 {
		return models.MessageTemplate{}, false
	}
	return agent.MessageTemplates[0], true
}

// FiredKey identifies a time-based trigger firing for one stage entry, so a
// periodic sweep fires it at most once until the lead changes stage.
func FiredKey(agentID, triggerID string, stageEnteredAt time.Time) string {
	return fmt.Sprintf("%s/%s@%d", agentID, triggerID, stageEnteredAt.Unix())
}
