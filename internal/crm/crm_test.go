package crm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/LeadPipe/internal/automation"
	"github.com/BTreeMap/LeadPipe/internal/config"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/scheduler"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/trigger"
)

var t0 = time.Date(2024, 5, 2, 14, 0, 0, 0, time.UTC)

type fixture struct {
	ctx   context.Context
	svc   *Service
	store *store.InMemoryStore
	clock *scheduler.Manual
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewInMemoryStore()
	clock := scheduler.NewManual(t0)
	sim := automation.NewSimulator(st, clock, messaging.NewRouter(messaging.NewSimulatedService()), automation.WithClock(clock))
	require.NoError(t, sim.Start(ctx))
	t.Cleanup(clock.Stop)
	return &fixture{
		ctx:   ctx,
		svc:   New(st, automation.NewEngine(st, sim)),
		store: st,
		clock: clock,
	}
}

func (f *fixture) pipeline(t *testing.T, name string, stages ...string) models.Pipeline {
	t.Helper()
	p := models.Pipeline{Name: name}
	for _, s := range stages {
		p.Stages = append(p.Stages, models.Stage{Name: s})
	}
	saved, err := f.svc.SavePipeline(f.ctx, p)
	require.NoError(t, err)
	return saved
}

func (f *fixture) agent(t *testing.T, a models.AIAgent) models.AIAgent {
	t.Helper()
	saved, err := f.svc.SaveAgent(f.ctx, a)
	require.NoError(t, err)
	return saved
}

func template(content string) []models.MessageTemplate {
	return []models.MessageTemplate{{Name: "t", Type: models.ChannelWhatsApp, Content: content}}
}

func isValidation(err error) bool {
	var ve *models.ValidationError
	return errors.As(err, &ve)
}

func TestScenario_SelectFieldNeedsOptions(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SaveCustomField(f.ctx, models.CustomField{Name: "Origem", Type: models.FieldTypeSelect})
	require.ErrorIs(t, err, models.ErrSelectWithoutOptions)
	assert.True(t, isValidation(err))
	fields, err := f.svc.ListCustomFields(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, fields, "rejected field must not be stored")

	saved, err := f.svc.SaveCustomField(f.ctx, models.CustomField{Name: "Origem", Type: models.FieldTypeSelect, Options: []string{"Website"}})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, 1, saved.Order)

	text, err := f.svc.SaveCustomField(f.ctx, models.CustomField{Name: "Notas", Type: models.FieldTypeText, Options: []string{"x"}})
	require.NoError(t, err)
	assert.Nil(t, text.Options)
	assert.Equal(t, 2, text.Order)
}

func TestScenario_ExactlyOneDefaultPipeline(t *testing.T) {
	f := newFixture(t)
	first := f.pipeline(t, "Vendas", "Novo", "Fechado")
	assert.True(t, first.IsDefault, "first pipeline becomes default")
	second := f.pipeline(t, "Parcerias", "Contato")
	third := f.pipeline(t, "Renovações", "Aviso")
	assert.False(t, second.IsDefault)

	for _, id := range []string{third.ID, second.ID, second.ID, first.ID} {
		require.NoError(t, f.svc.SetDefaultPipeline(f.ctx, id))
		all, err := f.svc.ListPipelines(f.ctx)
		require.NoError(t, err)
		defaults := 0
		for _, p := range all {
			if p.IsDefault {
				defaults++
				assert.Equal(t, id, p.ID)
			}
		}
		assert.Equal(t, 1, defaults)
	}

	// Saving a pipeline flagged default moves the flag.
	second.IsDefault = true
	_, err := f.svc.SavePipeline(f.ctx, second)
	require.NoError(t, err)
	def, err := f.svc.DefaultPipeline(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, def.ID)

	assert.ErrorIs(t, f.svc.SetDefaultPipeline(f.ctx, "missing"), store.ErrNotFound)
}

func TestSavePipeline_NormalizesStages(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.SavePipeline(f.ctx, models.Pipeline{Name: " Vendas ", Stages: []models.Stage{
		{Name: "Novo", Order: 7}, {ID: "keep", Name: "Proposta", Order: 1},
	}})
	require.NoError(t, err)
	assert.Equal(t, "Vendas", p.Name)
	require.Len(t, p.Stages, 2)
	for i, st := range p.Stages {
		assert.Equal(t, i+1, st.Order)
		assert.Equal(t, p.ID, st.PipelineID)
		assert.NotEmpty(t, st.ID)
	}
	assert.Equal(t, "keep", p.Stages[1].ID)
	assert.Equal(t, t0, p.CreatedAt)

	_, err = f.svc.SavePipeline(f.ctx, models.Pipeline{Name: "Vazio"})
	assert.ErrorIs(t, err, models.ErrNoStages)
	_, err = f.svc.SavePipeline(f.ctx, models.Pipeline{Name: "X", Stages: []models.Stage{{Name: " "}}})
	assert.ErrorIs(t, err, models.ErrEmptyStageName)

	_, err = f.svc.SavePipeline(f.ctx, models.Pipeline{Name: "Dup", Stages: []models.Stage{
		{ID: "s1", Name: "Novo"}, {ID: "s1", Name: "Fechado"},
	}})
	assert.ErrorIs(t, err, models.ErrDuplicateStage)
	all, err := f.svc.ListPipelines(f.ctx)
	require.NoError(t, err)
	for _, p := range all {
		assert.NotEqual(t, "Dup", p.Name, "rejected pipeline must not be stored")
	}
}

func TestSavePipeline_StageWithLeadsCannotBeRemoved(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t, "Vendas", "Novo", "Fechado")
	_, err := f.svc.CreateLead(f.ctx, models.Lead{Name: "Ana", PipelineID: p.ID, StageID: p.Stages[1].ID})
	require.NoError(t, err)

	p.Stages = p.Stages[:1]
	_, err = f.svc.SavePipeline(f.ctx, p)
	assert.ErrorIs(t, err, ErrStageHasLeads)
}

func TestDeletePipeline(t *testing.T) {
	f := newFixture(t)
	def := f.pipeline(t, "Vendas", "Novo")
	other := f.pipeline(t, "Parcerias", "Contato")

	assert.ErrorIs(t, f.svc.DeletePipeline(f.ctx, def.ID), ErrDefaultPipelineDelete)

	lead, err := f.svc.CreateLead(f.ctx, models.Lead{Name: "Ana", PipelineID: other.ID})
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.DeletePipeline(f.ctx, other.ID), ErrPipelineHasLeads)

	require.NoError(t, f.svc.DeleteLead(f.ctx, lead.ID))
	require.NoError(t, f.svc.DeletePipeline(f.ctx, other.ID))
	assert.ErrorIs(t, f.svc.DeletePipeline(f.ctx, other.ID), store.ErrNotFound)
}

func TestCreateLead_DefaultsAndValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateLead(f.ctx, models.Lead{Name: "Ana"})
	assert.ErrorIs(t, err, models.ErrMissingPipeline, "no pipeline exists yet")

	p := f.pipeline(t, "Vendas", "Novo", "Contactado")
	lead, err := f.svc.CreateLead(f.ctx, models.Lead{Name: " Ana ", Value: 1500})
	require.NoError(t, err)
	assert.Equal(t, "Ana", lead.Name)
	assert.Equal(t, p.ID, lead.PipelineID)
	assert.Equal(t, p.Stages[0].ID, lead.StageID)
	assert.Equal(t, t0, lead.CreatedAt)
	assert.Equal(t, t0, lead.StageChangedAt)

	tests := []struct {
		name string
		lead models.Lead
		want error
	}{
		{"empty name", models.Lead{Name: " "}, models.ErrEmptyName},
		{"negative value", models.Lead{Name: "A", Value: -1}, models.ErrNegativeValue},
		{"unknown pipeline", models.Lead{Name: "A", PipelineID: "nope"}, ErrUnknownPipeline},
		{"foreign stage", models.Lead{Name: "A", PipelineID: p.ID, StageID: "nope"}, ErrUnknownStage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateLead(f.ctx, tt.lead)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, isValidation(err))
		})
	}
}

func TestValidateLeadCustomFields(t *testing.T) {
	f := newFixture(t)
	f.pipeline(t, "Vendas", "Novo")
	origem, err := f.svc.SaveCustomField(f.ctx, models.CustomField{
		Name: "Origem", Type: models.FieldTypeSelect, Options: []string{"Website", "LinkedIn"}, Required: true,
	})
	require.NoError(t, err)

	_, err = f.svc.CreateLead(f.ctx, models.Lead{Name: "Ana"})
	assert.ErrorIs(t, err, models.ErrRequiredField)

	_, err = f.svc.CreateLead(f.ctx, models.Lead{Name: "Ana", CustomFields: map[string]any{origem.ID: "Radio"}})
	assert.ErrorIs(t, err, models.ErrInvalidOption)

	_, err = f.svc.CreateLead(f.ctx, models.Lead{Name: "Ana", CustomFields: map[string]any{origem.ID: "LinkedIn"}})
	assert.NoError(t, err)
}

func TestLeadLifecycleRaisesEvents(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t, "Vendas", "Novo", "Qualificado")
	welcome := f.agent(t, models.AIAgent{
		Name: "Boas-vindas", Type: "welcome", IsActive: true,
		Triggers:         []models.AITrigger{{Type: models.TriggerNewLead}},
		MessageTemplates: template("Olá {{name}}"),
	})
	qualify := f.agent(t, models.AIAgent{
		Name: "Qualificação", Type: "explanation", IsActive: true,
		Triggers: []models.AITrigger{{
			Type:       models.TriggerStageChange,
			Conditions: models.StageChangeConditions{PipelineID: p.ID, ToStageID: p.Stages[1].ID},
		}},
		MessageTemplates: template("{{name}} foi qualificado"),
	})

	lead, err := f.svc.CreateLead(f.ctx, models.Lead{Name: "Ana", Phone: "5511999999999"})
	require.NoError(t, err)
	msgs, err := f.svc.ListMessages(f.ctx, MessageFilter{LeadID: lead.ID})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, welcome.ID, msgs[0].AgentID)
	assert.Equal(t, "Olá Ana", msgs[0].Content)

	f.clock.Advance(time.Hour)
	moved, err := f.svc.MoveLead(f.ctx, lead.ID, p.Stages[1].ID)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), moved.StageChangedAt)
	assert.Equal(t, t0, moved.CreatedAt)

	msgs, err = f.svc.ListMessages(f.ctx, MessageFilter{AgentID: qualify.ID})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Ana foi qualificado", msgs[0].Content)

	// Updating without a stage change raises nothing.
	moved.Notes = "ligar amanhã"
	_, err = f.svc.UpdateLead(f.ctx, moved)
	require.NoError(t, err)
	all, err := f.svc.ListMessages(f.ctx, MessageFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.MoveLead(f.ctx, lead.ID, "elsewhere")
	assert.ErrorIs(t, err, ErrUnknownStage)

	lc, err := f.svc.LeadContext(f.ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, qualify.ID, lc.CurrentAgent)
}

func TestDeleteLeadCancelsMessages(t *testing.T) {
	f := newFixture(t)
	f.pipeline(t, "Vendas", "Novo")
	f.agent(t, models.AIAgent{
		Name: "Boas-vindas", IsActive: true,
		Triggers:         []models.AITrigger{{Type: models.TriggerNewLead, DelayMinutes: 5}},
		MessageTemplates: template("Olá {{name}}"),
	})
	lead, err := f.svc.CreateLead(f.ctx, models.Lead{Name: "Ana", Phone: "5511999999999"})
	require.NoError(t, err)
	require.Len(t, f.clock.Pending(), 1)

	require.NoError(t, f.svc.DeleteLead(f.ctx, lead.ID))
	assert.Empty(t, f.clock.Pending())
	f.clock.Advance(time.Hour)

	msgs, err := f.svc.ListMessages(f.ctx, MessageFilter{LeadID: lead.ID})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MessageStatusPending, msgs[0].Status)
	assert.NotNil(t, msgs[0].CanceledAt)

	_, err = f.store.LeadContexts().Get(f.ctx, lead.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteLead(f.ctx, lead.ID), store.ErrNotFound)
}

func TestAgents(t *testing.T) {
	f := newFixture(t)
	f.pipeline(t, "Vendas", "Novo")
	a := f.agent(t, models.AIAgent{
		Name: "Genérico", Type: "mystery", IsActive: true,
		Triggers:         []models.AITrigger{{Type: models.TriggerNewLead, DelayMinutes: 10}},
		MessageTemplates: template("Oi"),
	})
	assert.Equal(t, models.AgentGeneral, a.Type)
	assert.NotEmpty(t, a.Triggers[0].ID)
	assert.NotEmpty(t, a.MessageTemplates[0].ID)

	_, err := f.svc.SaveAgent(f.ctx, models.AIAgent{Name: ""})
	assert.ErrorIs(t, err, models.ErrEmptyName)
	_, err = f.svc.SaveAgent(f.ctx, models.AIAgent{Name: "x", MessageTemplates: []models.MessageTemplate{{Type: "fax", Content: "x"}}})
	assert.ErrorIs(t, err, models.ErrInvalidChannel)

	off, err := f.svc.SetAgentActive(f.ctx, a.ID, false)
	require.NoError(t, err)
	assert.False(t, off.IsActive)
	_, err = f.svc.CreateLead(f.ctx, models.Lead{Name: "Ana", Phone: "5511999999999"})
	require.NoError(t, err)
	stats, err := f.svc.MessageStats(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total, "inactive agents send nothing")

	_, err = f.svc.SetAgentActive(f.ctx, a.ID, true)
	require.NoError(t, err)
	_, err = f.svc.CreateLead(f.ctx, models.Lead{Name: "Bia", Phone: "5511888888888"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteAgent(f.ctx, a.ID))
	assert.Empty(t, f.clock.Pending())

	stats, err = f.svc.MessageStats(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, MessageStats{Total: 1, Pending: 1, Canceled: 1}, stats)
}

func TestApplyAgentFlow(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t, "Vendas", "Novo Lead", "Qualificado", "Proposta")
	var ids []string
	for _, name := range []string{"A", "B", "C"} {
		a := f.agent(t, models.AIAgent{Name: name, IsActive: true, NextAgents: []string{"stale"}})
		ids = append(ids, a.ID)
	}

	agents, err := f.svc.ApplyAgentFlow(f.ctx, AgentFlow{PipelineID: p.ID, Nodes: []FlowNode{
		{AgentID: ids[0], StageID: p.Stages[0].ID},
		{AgentID: ids[1], StageID: p.Stages[1].ID, DelayMinutes: 30},
		{AgentID: ids[2], StageID: p.Stages[2].ID},
	}})
	require.NoError(t, err)
	require.Len(t, agents, 3)

	b, err := f.svc.GetAgent(f.ctx, ids[1])
	require.NoError(t, err)
	require.Len(t, b.Triggers, 1)
	assert.Equal(t, models.TriggerStageChange, b.Triggers[0].Type)
	assert.Equal(t, models.StageChangeConditions{PipelineID: p.ID, ToStageID: p.Stages[1].ID}, b.Triggers[0].Conditions)
	assert.Equal(t, 30*time.Minute, b.Triggers[0].Delay())
	assert.Equal(t, []string{ids[2]}, b.NextAgents)
	assert.Equal(t, []string{"name", "email", "phone", "company", "budget", "timeline"}, b.ContextFields)
	assert.Contains(t, b.Settings.SystemPrompt, "Qualificado")

	c, err := f.svc.GetAgent(f.ctx, ids[2])
	require.NoError(t, err)
	assert.Empty(t, c.NextAgents)
	assert.Equal(t, []string{"name", "email", "phone", "company", "budget", "decision_maker"}, c.ContextFields)

	_, err = f.svc.ApplyAgentFlow(f.ctx, AgentFlow{PipelineID: p.ID, Nodes: []FlowNode{{AgentID: "ghost", StageID: p.Stages[0].ID}}})
	assert.ErrorIs(t, err, ErrUnknownAgent)
	_, err = f.svc.ApplyAgentFlow(f.ctx, AgentFlow{PipelineID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownPipeline)
}

func TestCustomFieldOrdering(t *testing.T) {
	f := newFixture(t)
	var ids []string
	for _, name := range []string{"A", "B", "C", "D"} {
		fld, err := f.svc.SaveCustomField(f.ctx, models.CustomField{Name: name, Type: models.FieldTypeText})
		require.NoError(t, err)
		ids = append(ids, fld.ID)
	}

	moved, err := f.svc.MoveCustomField(f.ctx, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[3], ids[0], ids[1], ids[2]}, fieldIDs(moved))

	require.NoError(t, f.svc.DeleteCustomField(f.ctx, ids[0]))
	fields, err := f.svc.ListCustomFields(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[3], ids[1], ids[2]}, fieldIDs(fields))
	for i, fld := range fields {
		assert.Equal(t, i+1, fld.Order)
	}

	_, err = f.svc.MoveCustomField(f.ctx, 0, 3)
	assert.ErrorIs(t, err, ErrFieldIndex)

	// Updating a field keeps its position.
	fields[2].Name = "C2"
	updated, err := f.svc.SaveCustomField(f.ctx, fields[2])
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Order)
}

func fieldIDs(fields []models.CustomField) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.ID
	}
	return out
}

func TestMessagesAndSentiment(t *testing.T) {
	f := newFixture(t)
	f.pipeline(t, "Vendas", "Novo")
	f.agent(t, models.AIAgent{
		Name: "Boas-vindas", IsActive: true,
		Triggers:         []models.AITrigger{{Type: models.TriggerNewLead}},
		MessageTemplates: template("Olá"),
	})
	_, err := f.svc.CreateLead(f.ctx, models.Lead{Name: "Ana", Phone: "5511999999999"})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	msgs, err := f.svc.ListMessages(f.ctx, MessageFilter{Status: models.MessageStatusDelivered})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	_, err = f.svc.ListMessages(f.ctx, MessageFilter{Status: "lost"})
	assert.ErrorIs(t, err, models.ErrInvalidStatus)

	_, err = f.svc.AnnotateSentiment(f.ctx, msgs[0].ID, models.Sentiment{Label: "ecstatic", Score: 0.5})
	assert.ErrorIs(t, err, models.ErrInvalidSentiment)
	_, err = f.svc.AnnotateSentiment(f.ctx, msgs[0].ID, models.Sentiment{Label: models.SentimentPositive, Score: 1.5})
	assert.ErrorIs(t, err, models.ErrInvalidSentiment)

	got, err := f.svc.AnnotateSentiment(f.ctx, msgs[0].ID, models.Sentiment{Label: models.SentimentPositive, Score: 0.9})
	require.NoError(t, err)
	require.NotNil(t, got.Sentiment)
	assert.Equal(t, models.MessageStatusDelivered, got.Status)

	_, err = f.svc.AnnotateSentiment(f.ctx, "missing", models.Sentiment{Label: models.SentimentNeutral})
	assert.ErrorIs(t, err, store.ErrNotFound)

	stats, err := f.svc.MessageStats(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, MessageStats{Total: 1, Delivered: 1}, stats)
}

func TestPipelineStatsAndSearch(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t, "Vendas", "Novo", "Proposta", "Fechado")
	for _, l := range []models.Lead{
		{Name: "Ana", Company: "Acme", Value: 1000, StageID: p.Stages[0].ID},
		{Name: "Bia", Company: "Globex", Value: 3000, StageID: p.Stages[2].ID},
		{Name: "Caio", Email: "caio@acme.test", Value: 0, StageID: p.Stages[2].ID},
		{Name: "Duda", Value: 4000, StageID: p.Stages[1].ID},
	} {
		l.PipelineID = p.ID
		_, err := f.svc.CreateLead(f.ctx, l)
		require.NoError(t, err)
	}

	st, err := f.svc.PipelineStats(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalLeads)
	assert.Equal(t, 8000.0, st.TotalValue)
	assert.Equal(t, 2, st.WonLeads)
	assert.Equal(t, 3000.0, st.WonValue)
	assert.Equal(t, 50.0, st.ConversionRate)
	assert.Equal(t, 2000.0, st.AvgDealSize)
	require.Len(t, st.Stages, 3)
	assert.Equal(t, 1, st.Stages[1].Leads)
	assert.Equal(t, 50.0, st.Stages[1].Share)

	found, err := f.svc.ListLeads(f.ctx, LeadFilter{Query: "ACME"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	found, err = f.svc.ListLeads(f.ctx, LeadFilter{StageID: p.Stages[2].ID})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	_, err = f.svc.PipelineStats(f.ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApplySeed(t *testing.T) {
	f := newFixture(t)
	seed, err := config.DefaultSeed()
	require.NoError(t, err)

	empty, err := f.svc.IsEmpty(f.ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	for i := 0; i < 2; i++ {
		res, err := f.svc.ApplySeed(f.ctx, seed)
		require.NoError(t, err)
		assert.Equal(t, SeedResult{Pipelines: 1, CustomFields: 3, Agents: len(seed.Agents)}, res)
	}

	pipelines, err := f.svc.ListPipelines(f.ctx)
	require.NoError(t, err)
	require.Len(t, pipelines, 1)
	assert.True(t, pipelines[0].IsDefault)
	fields, err := f.svc.ListCustomFields(f.ctx)
	require.NoError(t, err)
	assert.Len(t, fields, 3)
	agents, err := f.svc.ListAgents(f.ctx)
	require.NoError(t, err)
	assert.Len(t, agents, len(seed.Agents))

	lead, err := f.svc.CreateLead(f.ctx, models.Lead{Name: "Foo", Company: "Acme", Phone: "5511999999999"})
	require.NoError(t, err)
	msgs, err := f.svc.ListMessages(f.ctx, MessageFilter{LeadID: lead.ID})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Olá Foo, seja bem-vindo! Estamos felizes em tê-lo como lead da Acme.", msgs[0].Content)
}

func TestUpdateLeadFlags_FeedsCustomTriggers(t *testing.T) {
	f := newFixture(t)
	f.pipeline(t, "Vendas", "Novo")
	qualified := f.agent(t, models.AIAgent{
		Name: "Proposta", IsActive: true,
		Triggers: []models.AITrigger{{
			Type: models.TriggerCustom, Conditions: models.CustomConditions{"isQualified": true},
		}},
		MessageTemplates: template("{{name}} está qualificado"),
	})
	lead, err := f.svc.CreateLead(f.ctx, models.Lead{Name: "Ana"})
	require.NoError(t, err)

	signal := trigger.Event{Kind: trigger.EventCustomSignal, LeadID: lead.ID}
	require.NoError(t, f.svc.Emit(f.ctx, signal))
	msgs, err := f.svc.ListMessages(f.ctx, MessageFilter{AgentID: qualified.ID})
	require.NoError(t, err)
	assert.Empty(t, msgs, "lead is not qualified yet")

	yes := true
	lc, err := f.svc.UpdateLeadFlags(f.ctx, lead.ID, LeadFlags{IsQualified: &yes})
	require.NoError(t, err)
	assert.True(t, lc.IsQualified)
	assert.False(t, lc.IsInterested, "unset flags are left alone")

	stored, err := f.svc.LeadContext(f.ctx, lead.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsQualified)

	require.NoError(t, f.svc.Emit(f.ctx, signal))
	msgs, err = f.svc.ListMessages(f.ctx, MessageFilter{AgentID: qualified.ID})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Ana está qualificado", msgs[0].Content)

	_, err = f.svc.UpdateLeadFlags(f.ctx, "missing", LeadFlags{IsQualified: &yes})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
