package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/scheduler"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/trigger"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// harness wires an in-memory store, a manual clock and a simulated transport.
type harness struct {
	ctx       context.Context
	store     *store.InMemoryStore
	clock     *scheduler.Manual
	transport *messaging.SimulatedService
	sim       *Simulator
	engine    *Engine

	mu      sync.Mutex
	history map[string][]models.MessageStatus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ctx:       context.Background(),
		store:     store.NewInMemoryStore(),
		clock:     scheduler.NewManual(t0),
		transport: messaging.NewSimulatedService(),
		history:   map[string][]models.MessageStatus{},
	}
	router := messaging.NewRouter(h.transport)
	h.sim = NewSimulator(h.store, h.clock, router,
		WithClock(h.clock),
		WithTransitionHook(h.record),
	)
	require.NoError(t, h.sim.Start(h.ctx))
	h.engine = NewEngine(h.store, h.sim)
	t.Cleanup(func() {
		h.clock.Stop()
		h.transport.Stop()
	})
	return h
}

func (h *harness) record(m models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history[m.ID] = append(h.history[m.ID], m.Status)
}

func (h *harness) statuses(id string) []models.MessageStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.MessageStatus(nil), h.history[id]...)
}

func (h *harness) message(t *testing.T, id string) models.Message {
	t.Helper()
	m, err := h.store.Messages().Get(h.ctx, id)
	require.NoError(t, err)
	return m
}

func (h *harness) addLead(t *testing.T, lead models.Lead) models.Lead {
	t.Helper()
	if lead.PipelineID == "" {
		lead.PipelineID = "p1"
	}
	if lead.StageID == "" {
		lead.StageID = "s1"
	}
	if lead.StageChangedAt.IsZero() {
		lead.StageChangedAt = h.clock.Now()
	}
	lead.CreatedAt = h.clock.Now()
	require.NoError(t, h.store.Leads().Upsert(h.ctx, lead))
	return lead
}

func (h *harness) addAgent(t *testing.T, agent models.AIAgent) models.AIAgent {
	t.Helper()
	require.NoError(t, h.store.Agents().Upsert(h.ctx, agent))
	return agent
}

func welcomeAgent(id string, delay float64) models.AIAgent {
	return models.AIAgent{
		ID:       id,
		Name:     "Welcome " + id,
		Type:     models.AgentWelcome,
		IsActive: true,
		Triggers: []models.AITrigger{{
			ID: "t-" + id, Type: models.TriggerNewLead, Conditions: models.NewLeadConditions{}, DelayMinutes: delay,
		}},
		MessageTemplates: []models.MessageTemplate{{
			ID: "tpl-" + id, Name: "hello", Type: models.ChannelWhatsApp, Content: "Hi {{name}} from {{company}}",
		}},
	}
}

func created(kind trigger.EventKind, leadID string) trigger.Event {
	return trigger.Event{Kind: kind, LeadID: leadID}
}

func TestScenario_NewLeadMessageLifecycle(t *testing.T) {
	h := newHarness(t)
	agent := h.addAgent(t, welcomeAgent("a1", 5))
	lead := h.addLead(t, models.Lead{ID: "l1", Name: "Foo", Company: "Acme", Phone: "5511999999999"})

	msgs, err := h.engine.Handle(h.ctx, created(trigger.EventLeadCreated, lead.ID))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	id := msgs[0].ID

	m := h.message(t, id)
	assert.Equal(t, models.MessageStatusPending, m.Status)
	assert.Equal(t, "Hi Foo from Acme", m.Content)
	assert.Equal(t, t0, m.CreatedAt)
	assert.Equal(t, agent.ID, m.AgentID)

	h.clock.Advance(5*time.Minute - time.Second)
	assert.Equal(t, models.MessageStatusPending, h.message(t, id).Status)

	h.clock.Advance(time.Second)
	m = h.message(t, id)
	require.Equal(t, models.MessageStatusSent, m.Status)
	require.NotNil(t, m.SentAt)
	assert.Equal(t, t0.Add(5*time.Minute), *m.SentAt)
	assert.Equal(t, "5511999999999", m.Recipient)

	h.clock.Advance(DefaultDeliveryLatency)
	m = h.message(t, id)
	require.Equal(t, models.MessageStatusDelivered, m.Status)
	assert.Equal(t, t0.Add(5*time.Minute+DefaultDeliveryLatency), *m.DeliveredAt)

	assert.Equal(t, []models.MessageStatus{
		models.MessageStatusPending, models.MessageStatusSent, models.MessageStatusDelivered,
	}, h.statuses(id))

	lc, err := h.store.LeadContexts().Get(h.ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{agent.ID}, lc.CompletedAgents)
	assert.Equal(t, agent.ID, lc.CurrentAgent)

	assert.Equal(t, []messaging.SimulatedMessage{{To: "5511999999999", Body: "Hi Foo from Acme"}}, h.transport.Sent())
}

func TestScenario_LeadWithoutContactIsSentBySimulation(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, welcomeAgent("a1", 5))
	lead := h.addLead(t, models.Lead{ID: "l1", Name: "Foo", Company: "Acme"})

	msgs, err := h.engine.Handle(h.ctx, created(trigger.EventLeadCreated, lead.ID))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	id := msgs[0].ID

	h.clock.Advance(5 * time.Minute)
	m := h.message(t, id)
	require.Equal(t, models.MessageStatusSent, m.Status, "failure reason: %s", m.FailureReason)
	assert.Empty(t, m.FailureReason)
	assert.Equal(t, t0.Add(5*time.Minute), *m.SentAt)

	h.clock.Advance(DefaultDeliveryLatency)
	assert.Equal(t, models.MessageStatusDelivered, h.message(t, id).Status)
	assert.Equal(t, []messaging.SimulatedMessage{{To: "", Body: "Hi Foo from Acme"}}, h.transport.Sent())
}

func TestScenario_DeleteLeadCancelsSend(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, welcomeAgent("a1", 5))
	lead := h.addLead(t, models.Lead{ID: "l1", Name: "Foo", Phone: "5511999999999"})

	msgs, err := h.engine.Handle(h.ctx, created(trigger.EventLeadCreated, lead.ID))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	id := msgs[0].ID

	n, err := h.sim.CancelForLead(h.ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, h.store.Leads().Delete(h.ctx, lead.ID))
	assert.Empty(t, h.clock.Pending())

	h.clock.Advance(time.Hour)
	m := h.message(t, id)
	assert.Equal(t, models.MessageStatusPending, m.Status)
	assert.NotNil(t, m.CanceledAt)
	assert.Empty(t, h.transport.Sent())
}

func TestSend_SkipsWhenLeadDeletedWithoutCancel(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, welcomeAgent("a1", 1))
	lead := h.addLead(t, models.Lead{ID: "l1", Name: "Foo", Phone: "5511999999999"})

	msgs, err := h.engine.Handle(h.ctx, created(trigger.EventLeadCreated, lead.ID))
	require.NoError(t, err)
	require.NoError(t, h.store.Leads().Delete(h.ctx, lead.ID))

	h.clock.Advance(time.Minute)
	m := h.message(t, msgs[0].ID)
	assert.Equal(t, models.MessageStatusPending, m.Status)
	require.NotNil(t, m.CanceledAt)
	assert.Equal(t, t0.Add(time.Minute), *m.CanceledAt)
	assert.Empty(t, h.transport.Sent())
}

func TestCancelForAgent_StopsDelivery(t *testing.T) {
	h := newHarness(t)
	agent := h.addAgent(t, welcomeAgent("a1", 0))
	lead := h.addLead(t, models.Lead{ID: "l1", Name: "Foo", Phone: "5511999999999"})

	msgs, err := h.engine.Handle(h.ctx, created(trigger.EventLeadCreated, lead.ID))
	require.NoError(t, err)
	h.clock.Advance(0)
	require.Equal(t, models.MessageStatusSent, h.message(t, msgs[0].ID).Status)

	n, err := h.sim.CancelForAgent(h.ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	h.clock.Advance(time.Minute)

	m := h.message(t, msgs[0].ID)
	assert.Equal(t, models.MessageStatusSent, m.Status)
	assert.NotNil(t, m.CanceledAt)
}

func TestSend_TransportOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		fail       error
		wantReason string
	}{
		{"rejected", messaging.Reject("number not on WhatsApp"), "rejected: number not on WhatsApp"},
		{"transport error", errors.New("dial tcp: timeout"), "transport_error: dial tcp: timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addAgent(t, welcomeAgent("a1", 0))
			lead := h.addLead(t, models.Lead{ID: "l1", Name: "Foo", Phone: "5511999999999"})
			h.transport.Fail = func(to, body string) error { return tt.fail }

			msgs, err := h.engine.Handle(h.ctx, created(trigger.EventLeadCreated, lead.ID))
			require.NoError(t, err)
			h.clock.Advance(time.Hour)

			m := h.message(t, msgs[0].ID)
			assert.Equal(t, models.MessageStatusFailed, m.Status)
			assert.Equal(t, tt.wantReason, m.FailureReason)
			assert.Nil(t, m.SentAt)
			assert.Equal(t, []models.MessageStatus{models.MessageStatusPending, models.MessageStatusFailed}, h.statuses(m.ID))
			assert.Empty(t, h.clock.Pending(), "failed messages are not retried")
		})
	}
}

func TestInvalidRecipientFails(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, welcomeAgent("a1", 0))
	lead := h.addLead(t, models.Lead{ID: "l1", Name: "Foo"})

	msgs, err := h.engine.Handle(h.ctx, created(trigger.EventLeadCreated, lead.ID))
	require.NoError(t, err)
	h.clock.Advance(0)
	assert.Equal(t, models.MessageStatusFailed, h.message(t, msgs[0].ID).Status)
}

func TestInactiveAgentNeverProducesMessages(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, welcomeAgent("a1", 0))
	lead := h.addLead(t, models.Lead{ID: "l1", Name: "Foo", Phone: "5511999999999"})

	before, err := h.engine.Handle(h.ctx, created(trigger.EventLeadCreated, lead.ID))
	require.NoError(t, err)

	inactive := welcomeAgent("a2", 0)
	inactive.IsActive = false
	h.addAgent(t, inactive)

	after, err := h.engine.Handle(h.ctx, created(trigger.EventLeadCreated, lead.ID))
	require.NoError(t, err)
	assert.Len(t, after, len(before))
	for _, m := range after {
		assert.NotEqual(t, "a2", m.AgentID)
	}
}

func TestHandle_MissingLeadAndTemplateAreSkipped(t *testing.T) {
	h := newHarness(t)
	noTemplate := welcomeAgent("a1", 0)
	noTemplate.MessageTemplates = nil
	h.addAgent(t, noTemplate)

	msgs, err := h.engine.Handle(h.ctx, created(trigger.EventLeadCreated, "ghost"))
	require.NoError(t, err)
	assert.Empty(t, msgs)

	lead := h.addLead(t, models.Lead{ID: "l1", Name: "Foo"})
	msgs, err = h.engine.Handle(h.ctx, created(trigger.EventLeadCreated, lead.ID))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHandle_RendersCustomFieldsAndFallback(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.CustomFields().Upsert(h.ctx, models.CustomField{ID: "f1", Name: "segment", Type: models.FieldTypeText, Order: 1}))
	agent := welcomeAgent("a1", 0)
	agent.MessageTemplates[0].Content = "Oi {{name}} da {{company}}, segmento {{segment}}{{missing}}"
	h.addAgent(t, agent)
	lead := h.addLead(t, models.Lead{ID: "l1", Name: "Ana", Phone: "5511999999999", CustomFields: map[string]any{"f1": "varejo"}})

	msgs, err := h.engine.Handle(h.ctx, created(trigger.EventLeadCreated, lead.ID))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Oi Ana da sua empresa, segmento varejo", msgs[0].Content)
}

func TestScenario_StageChangeMatch(t *testing.T) {
	h := newHarness(t)
	agent := welcomeAgent("a1", 0)
	agent.Triggers = []models.AITrigger{{
		ID: "t1", Type: models.TriggerStageChange,
		Conditions: models.StageChangeConditions{PipelineID: "P", ToStageID: "B"},
	}}
	h.addAgent(t, agent)
	lead := h.addLead(t, models.Lead{ID: "l1", Name: "Foo", Phone: "5511999999999", PipelineID: "P", StageID: "B"})

	msgs, err := h.engine.Handle(h.ctx, trigger.Event{Kind: trigger.EventStageChanged, LeadID: lead.ID, PipelineID: "P", FromStageID: "A", ToStageID: "B"})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	msgs, err = h.engine.Handle(h.ctx, trigger.Event{Kind: trigger.EventStageChanged, LeadID: lead.ID, PipelineID: "P", FromStageID: "A", ToStageID: "C"})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func followupAgent() models.AIAgent {
	return models.AIAgent{
		ID: "f1", Name: "Followup", Type: models.AgentFollowup, IsActive: true,
		Triggers: []models.AITrigger{{
			ID: "tb", Type: models.TriggerTimeBased,
			Conditions: models.TimeBasedConditions{Days: 1, NoResponse: models.Bool(true)},
		}},
		MessageTemplates: []models.MessageTemplate{{ID: "x", Type: models.ChannelSMS, Content: "Ainda tem interesse, {{name}}?"}},
	}
}

func TestSweep_FiresOncePerStageEntry(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, followupAgent())
	lead := h.addLead(t, models.Lead{ID: "l1", Name: "Foo", Phone: "5511999999999"})

	n, err := h.engine.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "threshold not reached")

	h.clock.Advance(24 * time.Hour)
	n, err = h.engine.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = h.engine.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "already fired for this stage entry")

	lead.StageID = "s2"
	lead.StageChangedAt = h.clock.Now()
	require.NoError(t, h.store.Leads().Upsert(h.ctx, lead))
	h.clock.Advance(24 * time.Hour)
	n, err = h.engine.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "new stage entry fires again")
}

func TestHandleResponse(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, followupAgent())
	replyAgent := welcomeAgent("r1", 0)
	replyAgent.Triggers = []models.AITrigger{{
		ID: "c1", Type: models.TriggerCustom, Conditions: models.CustomConditions{"reply": true},
	}}
	replyAgent.MessageTemplates[0].Content = "Recebemos: {{last_reply}}"
	h.addAgent(t, replyAgent)
	lead := h.addLead(t, models.Lead{ID: "l1", Name: "Foo", Phone: "+55 (11) 99999-9999"})

	h.clock.Advance(time.Hour)
	msgs, err := h.engine.HandleResponse(h.ctx, models.Response{From: "+5511999999999", Body: "quero saber mais"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Recebemos: quero saber mais", msgs[0].Content)

	lc, err := h.store.LeadContexts().Get(h.ctx, lead.ID)
	require.NoError(t, err)
	require.NotNil(t, lc.LastInteraction)
	assert.Equal(t, t0.Add(time.Hour), *lc.LastInteraction)
	assert.Equal(t, "quero saber mais", lc.ContextData[ContextKeyLastReply])

	// The lead answered after entering the stage, so noResponse no longer holds.
	h.clock.Advance(24 * time.Hour)
	n, err := h.engine.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	msgs, err = h.engine.HandleResponse(h.ctx, models.Response{From: "+4915112345678", Body: "?"})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestListen(t *testing.T) {
	h := newHarness(t)
	lead := h.addLead(t, models.Lead{ID: "l1", Name: "Foo", Phone: "5511999999999"})
	src := messaging.NewSimulatedService()

	done := make(chan error, 1)
	go func() { done <- h.engine.Listen(h.ctx, src) }()

	src.Inject("+5511999999999", "oi", t0.Unix())
	src.Stop()
	require.NoError(t, <-done)

	lc, err := h.store.LeadContexts().Get(h.ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "oi", lc.ContextData[ContextKeyLastReply])
}

func TestRecoverReschedulesInFlightMessages(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, welcomeAgent("a1", 10))
	h.addAgent(t, welcomeAgent("a2", 0))
	lead := h.addLead(t, models.Lead{ID: "l1", Name: "Foo", Phone: "5511999999999"})

	msgs, err := h.engine.Handle(h.ctx, created(trigger.EventLeadCreated, lead.ID))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	h.clock.Advance(0) // a2 is sent, a1 still pending

	// Simulate a restart: same store, fresh scheduler with no timers.
	clock := scheduler.NewManual(h.clock.Now())
	sim := NewSimulator(h.store, clock, messaging.NewRouter(h.transport), WithClock(clock))
	require.NoError(t, sim.Start(h.ctx))
	n, err := sim.Recover(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending := clock.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, TaskID(TaskDeliver, msgs[1].ID), pending[0].ID)
	assert.Equal(t, TaskID(TaskSend, msgs[0].ID), pending[1].ID)
	assert.Equal(t, t0.Add(10*time.Minute), pending[1].RunAt)

	clock.Advance(11 * time.Minute)
	for _, m := range msgs {
		got, err := h.store.Messages().Get(h.ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusDelivered, got.Status)
	}
}

func TestStatusHistoryIsForwardOnly(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"a1", "a2", "a3"} {
		h.addAgent(t, welcomeAgent(id, float64(len(id))))
	}
	h.transport.Fail = func(to, body string) error {
		if to == "5511888888888" {
			return messaging.Reject("no")
		}
		return nil
	}
	for id, phone := range map[string]string{"l1": "5511999999999", "l2": "5511888888888"} {
		lead := h.addLead(t, models.Lead{ID: id, Name: id, Phone: phone})
		_, err := h.engine.Handle(h.ctx, created(trigger.EventLeadCreated, lead.ID))
		require.NoError(t, err)
	}
	h.clock.Advance(time.Hour)

	allowed := [][]models.MessageStatus{
		{models.MessageStatusPending, models.MessageStatusSent, models.MessageStatusDelivered},
		{models.MessageStatusPending, models.MessageStatusSent, models.MessageStatusFailed},
		{models.MessageStatusPending, models.MessageStatusFailed},
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.history, 6)
	for id, seq := range h.history {
		ok := false
		for _, a := range allowed {
			if isPrefix(seq, a) {
				ok = true
			}
		}
		assert.True(t, ok, "message %s has history %v", id, seq)
	}
}

func isPrefix(seq, of []models.MessageStatus) bool {
	if len(seq) > len(of) {
		return false
	}
	for i := range seq {
		if seq[i] != of[i] {
			return false
		}
	}
	return true
}

func TestKeyLockSerializesSameKey(t *testing.T) {
	k := newKeyLock()
	var mu sync.Mutex
	inside := 0
	maxInside := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("m")
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside)
	assert.Empty(t, k.locks)
}

func TestUpdateWaitsForInFlightSend(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, welcomeAgent("a1", 1))
	lead := h.addLead(t, models.Lead{ID: "l1", Name: "Foo", Phone: "5511999999999"})
	msgs, err := h.engine.Handle(h.ctx, created(trigger.EventLeadCreated, lead.ID))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	id := msgs[0].ID

	entered := make(chan struct{})
	release := make(chan struct{})
	h.transport.Fail = func(to, body string) error {
		close(entered)
		<-release
		return nil
	}

	advanced := make(chan struct{})
	go func() {
		h.clock.Advance(time.Minute)
		close(advanced)
	}()
	<-entered

	positive := models.Sentiment{Label: models.SentimentPositive, Score: 0.9}
	updated := make(chan error, 1)
	go func() {
		_, err := h.sim.Update(h.ctx, id, func(m *models.Message) error {
			m.Sentiment = &positive
			return nil
		})
		updated <- err
	}()

	select {
	case err := <-updated:
		t.Fatalf("Update finished while the send was in progress: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-updated)
	<-advanced

	m := h.message(t, id)
	require.Equal(t, models.MessageStatusSent, m.Status)
	require.NotNil(t, m.SentAt)
	require.NotNil(t, m.Sentiment)
	assert.Equal(t, positive, *m.Sentiment)

	h.clock.Advance(DefaultDeliveryLatency)
	m = h.message(t, id)
	assert.Equal(t, models.MessageStatusDelivered, m.Status)
	assert.NotNil(t, m.Sentiment)
}

func TestUpdateRefusesStatusChange(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, welcomeAgent("a1", 5))
	lead := h.addLead(t, models.Lead{ID: "l1", Name: "Foo"})
	msgs, err := h.engine.Handle(h.ctx, created(trigger.EventLeadCreated, lead.ID))
	require.NoError(t, err)
	id := msgs[0].ID

	_, err = h.sim.Update(h.ctx, id, func(m *models.Message) error {
		m.Status = models.MessageStatusDelivered
		return nil
	})
	assert.ErrorIs(t, err, ErrLifecycleField)
	assert.Equal(t, models.MessageStatusPending, h.message(t, id).Status)

	_, err = h.sim.Update(h.ctx, "missing", func(*models.Message) error { return nil })
	assert.ErrorIs(t, err, store.ErrNotFound)
}
