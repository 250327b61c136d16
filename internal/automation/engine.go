package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/render"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/trigger"
)

// ContextKeyLastReply holds the body of the lead's latest reply in ContextData.
const ContextKeyLastReply = "last_reply"

// PayloadKeyReply is set on the custom_signal event raised by an inbound reply.
const PayloadKeyReply = "reply"

// EngineOpts configures an Engine.
type EngineOpts struct {
	CompanyFallback string
}

// EngineOption mutates EngineOpts.
type EngineOption func(*EngineOpts)

// WithCompanyFallback sets the text used when a lead has no company.
func WithCompanyFallback(s string) EngineOption {
	return func(o *EngineOpts) { o.CompanyFallback = s }
}

// Engine reacts to lead lifecycle events.
type Engine struct {
	store store.Store
	sim   *Simulator
	opts  EngineOpts
}

// NewEngine creates an Engine that creates messages through sim.
func NewEngine(st store.Store, sim *Simulator, opts ...EngineOption) *Engine {
	cfg := EngineOpts{CompanyFallback: render.DefaultCompanyFallback}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{store: st, sim: sim, opts: cfg}
}

// Simulator returns the simulator messages are created on.
func (e *Engine) Simulator() *Simulator { return e.sim }

// Handle matches event against the active agents and creates one message per
// matched agent. Missing leads and agents without templates are skipped.
func (e *Engine) Handle(ctx context.Context, event trigger.Event) ([]models.Message, error) {
	lead, err := e.store.Leads().Get(ctx, event.LeadID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("Engine.Handle: lead not found, skipping event", "leadID", event.LeadID, "kind", event.Kind)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}
	agents, err := e.store.Agents().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	unlock := e.sim.locks.Lock("lead:" + lead.ID)
	defer unlock()

	lc, err := e.leadContext(ctx, lead.ID)
	if err != nil {
		return nil, err
	}
	matches := trigger.Match(event, agents, &lc)
	if len(matches) == 0 {
		slog.Debug("Engine.Handle: no matching agents", "leadID", lead.ID, "kind", event.Kind)
		return nil, nil
	}

	renderer, err := e.renderer(ctx)
	if err != nil {
		return nil, err
	}
	extra := maps.Clone(lc.ContextData)
	if extra == nil {
		extra = map[string]any{}
	}
	maps.Copy(extra, event.Payload)

	var created []models.Message
	changed := false
	for _, m := range matches {
		if event.Kind == trigger.EventTimeElapsed {
			key := trigger.FiredKey(m.Agent.ID, m.Trigger.ID, event.StageEnteredAt)
			if lc.HasFired(key) {
				continue
			}
			lc.MarkFired(key)
			changed = true
		}

		tpl, ok := trigger.FirstTemplate(m.Agent)
		if !ok {
			slog.Warn("Engine.Handle: matched agent has no template", "agentID", m.Agent.ID, "triggerID", m.Trigger.ID)
			continue
		}
		content := renderer.Render(tpl.Content, lead, extra)
		subject := renderer.Render(tpl.Subject, lead, extra)
		if unresolved := slices.Concat(content.Unresolved, subject.Unresolved); len(unresolved) > 0 {
			slog.Warn("Engine.Handle: unresolved placeholders rendered empty", "agentID", m.Agent.ID, "templateID", tpl.ID, "placeholders", unresolved)
		}

		msg, err := e.sim.Create(ctx, Draft{
			Lead:     lead,
			AgentID:  m.Agent.ID,
			Trigger:  m.Trigger,
			Template: tpl,
			Subject:  subject.Content,
			Content:  content.Content,
		})
		if err != nil {
			return created, err
		}
		created = append(created, msg)
		lc.CurrentAgent = m.Agent.ID
		changed = true
	}

	if changed {
		if err := e.store.LeadContexts().Upsert(ctx, lc); err != nil {
			return created, fmt.Errorf("failed to store lead context: %w", err)
		}
	}
	return created, nil
}

func (e *Engine) leadContext(ctx context.Context, leadID string) (models.LeadContext, error) {
	lc, err := e.store.LeadContexts().Get(ctx, leadID)
	if errors.Is(err, store.ErrNotFound) {
		return models.NewLeadContext(leadID), nil
	}
	if err != nil {
		return lc, fmt.Errorf("failed to load lead context: %w", err)
	}
	return lc, nil
}

func (e *Engine) renderer(ctx context.Context) (*render.Renderer, error) {
	fields, err := e.store.CustomFields().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom fields: %w", err)
	}
	return render.New(render.WithCompanyFallback(e.opts.CompanyFallback), render.WithCustomFields(fields)), nil
}

// Sweep raises a time_elapsed event for every lead, measured from when the
// lead entered its current stage. Each time-based trigger fires at most once
// per stage entry. It returns the messages created.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	leads, err := e.store.Leads().List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list leads: %w", err)
	}
	now := e.sim.Now()
	total := 0
	for _, lead := range leads {
		entered := lead.StageChangedAt
		if entered.IsZero() {
			entered = lead.CreatedAt
		}
		msgs, err := e.Handle(ctx, trigger.Event{
			Kind:           trigger.EventTimeElapsed,
			LeadID:         lead.ID,
			PipelineID:     lead.PipelineID,
			ToStageID:      lead.StageID,
			Elapsed:        now.Sub(entered),
			StageEnteredAt: entered,
		})
		if err != nil {
			slog.Error("Engine.Sweep: handle failed", "leadID", lead.ID, "error", err)
			continue
		}
		total += len(msgs)
	}
	if total > 0 {
		slog.Info("Engine.Sweep: time based messages created", "count", total)
	}
	return total, nil
}

// HandleResponse records an inbound reply on the lead with the sender's
// phone number, then raises a custom_signal event with {"reply": true}.
func (e *Engine) HandleResponse(ctx context.Context, resp models.Response) ([]models.Message, error) {
	from, err := messaging.CanonicalizePhone(resp.From)
	if err != nil {
		slog.Warn("Engine.HandleResponse: invalid sender", "from", resp.From, "error", err)
		return nil, nil
	}
	leads, err := store.Filter(ctx, e.store.Leads(), func(l models.Lead) bool {
		phone, err := messaging.CanonicalizePhone(l.Phone)
		return err == nil && phone == from
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search leads: %w", err)
	}
	if len(leads) == 0 {
		slog.Info("Engine.HandleResponse: reply from unknown number", "from", from)
		return nil, nil
	}
	lead := leads[0]

	at := e.sim.Now()
	if resp.Time > 0 {
		at = time.Unix(resp.Time, 0)
	}
	if _, err := e.sim.UpdateLeadContext(ctx, lead.ID, func(lc *models.LeadContext) {
		lc.LastInteraction = &at
		if lc.ContextData == nil {
			lc.ContextData = map[string]any{}
		}
		lc.ContextData[ContextKeyLastReply] = resp.Body
	}); err != nil {
		return nil, fmt.Errorf("failed to record reply: %w", err)
	}
	slog.Info("Engine.HandleResponse: reply recorded", "leadID", lead.ID, "body_length", len(resp.Body))

	return e.Handle(ctx, trigger.Event{
		Kind:       trigger.EventCustomSignal,
		LeadID:     lead.ID,
		PipelineID: lead.PipelineID,
		ToStageID:  lead.StageID,
		Payload:    map[string]any{PayloadKeyReply: true},
	})
}

// Listen handles replies from src until ctx is done or the channel closes.
func (e *Engine) Listen(ctx context.Context, src messaging.ResponseSource) error {
	responses := src.Responses()
	for {
		select {
		case <-ctx.Done():
			return nil
		case resp, ok := <-responses:
			if !ok {
				slog.Debug("Engine.Listen: response channel closed")
				return nil
			}
			if _, err := e.HandleResponse(ctx, resp); err != nil {
				slog.Error("Engine.Listen: failed to handle reply", "from", resp.From, "error", err)
			}
		}
	}
}
