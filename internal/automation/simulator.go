// Package automation turns lead lifecycle events into messages and drives
// each message through pending, sent and delivered (or failed).
//
// The Simulator owns the message state machine. Its deferred transitions are
// scheduler tasks keyed by message id, so deleting a lead or agent can cancel
// them. The Engine sits in front: it matches events against agent triggers,
// renders the first template of each matched agent and hands the result to
// the Simulator.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/scheduler"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/util"
)

// Task kinds scheduled by the Simulator.
const (
	TaskSend    = "send"
	TaskDeliver = "deliver"
)

// DefaultDeliveryLatency is the wait between sent and delivered.
const DefaultDeliveryLatency = 2 * time.Second

// Transport delivers a message body over a channel. *messaging.Router implements it.
type Transport interface {
	Deliver(ctx context.Context, ch models.ChannelType, to, body string) messaging.Result
}

// TaskID returns the scheduler task id for a transition of a message.
func TaskID(kind, messageID string) string {
	return kind + ":" + messageID
}

// SimulatorOpts configures a Simulator.
type SimulatorOpts struct {
	DeliveryLatency time.Duration
	Clock           scheduler.Clock
	// OnTransition is called after every stored status change.
	OnTransition func(models.Message)
}

// SimulatorOption mutates SimulatorOpts.
type SimulatorOption func(*SimulatorOpts)

// WithDeliveryLatency sets the wait between sent and delivered.
func WithDeliveryLatency(d time.Duration) SimulatorOption {
	return func(o *SimulatorOpts) { o.DeliveryLatency = d }
}

// WithClock sets the clock used for timestamps and fire times.
func WithClock(c scheduler.Clock) SimulatorOption {
	return func(o *SimulatorOpts) { o.Clock = c }
}

// WithTransitionHook registers a callback for status changes.
func WithTransitionHook(fn func(models.Message)) SimulatorOption {
	return func(o *SimulatorOpts) { o.OnTransition = fn }
}

// Simulator runs the message lifecycle.
type Simulator struct {
	store     store.Store
	sched     scheduler.Scheduler
	transport Transport
	opts      SimulatorOpts
	locks     *keyLock
}

// NewSimulator creates a Simulator. Call Start before creating messages.
func NewSimulator(st store.Store, sched scheduler.Scheduler, transport Transport, opts ...SimulatorOption) *Simulator {
	cfg := SimulatorOpts{DeliveryLatency: DefaultDeliveryLatency, Clock: scheduler.SystemClock{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DeliveryLatency < 0 {
		cfg.DeliveryLatency = 0
	}
	return &Simulator{
		store:     st,
		sched:     sched,
		transport: transport,
		opts:      cfg,
		locks:     newKeyLock(),
	}
}

// Start installs the transition handler on the scheduler.
func (s *Simulator) Start(ctx context.Context) error {
	slog.Debug("Simulator.Start", "deliveryLatency", s.opts.DeliveryLatency)
	return s.sched.Start(ctx, s.handle)
}

// Now returns the simulator's clock reading.
func (s *Simulator) Now() time.Time { return s.opts.Clock.Now() }

// Draft is a rendered message waiting to be created.
type Draft struct {
	Lead     models.Lead
	AgentID  string
	Trigger  models.AITrigger
	Template models.MessageTemplate
	Subject  string
	Content  string
}

// Create stores a pending message and schedules its send after the trigger delay.
func (s *Simulator) Create(ctx context.Context, d Draft) (models.Message, error) {
	now := s.Now()
	msg := models.Message{
		ID:         util.NewMessageID(),
		LeadID:     d.Lead.ID,
		AgentID:    d.AgentID,
		TemplateID: d.Template.ID,
		TriggerID:  d.Trigger.ID,
		Type:       d.Template.Type,
		Recipient:  recipientFor(d.Template.Type, d.Lead),
		Subject:    d.Subject,
		Content:    d.Content,
		Status:     models.MessageStatusPending,
		CreatedAt:  now,
		SendAt:     now.Add(d.Trigger.Delay()),
	}
	if err := s.store.Messages().Upsert(ctx, msg); err != nil {
		return models.Message{}, fmt.Errorf("failed to store message: %w", err)
	}
	s.notify(msg)
	slog.Info("Simulator.Create: message pending", "messageID", msg.ID, "leadID", msg.LeadID, "agentID", msg.AgentID, "sendAt", msg.SendAt)

	if err := s.schedule(ctx, TaskSend, msg.ID, msg.SendAt); err != nil {
		return msg, err
	}
	return msg, nil
}

func recipientFor(ch models.ChannelType, lead models.Lead) string {
	if ch == models.ChannelEmail {
		return lead.Email
	}
	return lead.Phone
}

func (s *Simulator) schedule(ctx context.Context, kind, messageID string, at time.Time) error {
	task := scheduler.Task{ID: TaskID(kind, messageID), Kind: kind, MessageID: messageID, RunAt: at}
	if err := s.sched.Schedule(ctx, task); err != nil {
		return fmt.Errorf("failed to schedule %s for message %s: %w", kind, messageID, err)
	}
	return nil
}

func (s *Simulator) handle(ctx context.Context, task scheduler.Task) error {
	switch task.Kind {
	case TaskSend:
		return s.send(ctx, task.MessageID)
	case TaskDeliver:
		return s.deliver(ctx, task.MessageID)
	default:
		slog.Warn("Simulator.handle: unknown task kind", "kind", task.Kind, "id", task.ID)
		return nil
	}
}

// load returns the message and whether the transition from want may run.
func (s *Simulator) load(ctx context.Context, id string, want models.MessageStatus) (models.Message, bool, error) {
	msg, err := s.store.Messages().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		slog.Debug("Simulator: message gone, skipping transition", "messageID", id)
		return msg, false, nil
	}
	if err != nil {
		return msg, false, err
	}
	if msg.Status != want || msg.CanceledAt != nil {
		slog.Debug("Simulator: message not in expected state", "messageID", id, "status", msg.Status, "want", want)
		return msg, false, nil
	}
	live, err := s.live(ctx, msg)
	if err != nil {
		return msg, false, err
	}
	if !live {
		return msg, false, s.stampCanceled(ctx, msg)
	}
	return msg, true, nil
}

// live reports whether the lead and agent a message refers to still exist.
func (s *Simulator) live(ctx context.Context, msg models.Message) (bool, error) {
	if _, err := s.store.Leads().Get(ctx, msg.LeadID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.store.Agents().Get(ctx, msg.AgentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Simulator) stampCanceled(ctx context.Context, msg models.Message) error {
	now := s.Now()
	msg.CanceledAt = &now
	slog.Info("Simulator: transition canceled", "messageID", msg.ID, "status", msg.Status)
	return s.store.Messages().Upsert(ctx, msg)
}

func (s *Simulator) send(ctx context.Context, id string) error {
	unlock := s.locks.Lock("message:" + id)
	defer unlock()

	msg, ok, err := s.load(ctx, id, models.MessageStatusPending)
	if err != nil || !ok {
		return err
	}

	res := s.transport.Deliver(ctx, msg.Type, msg.Recipient, msg.Content)
	now := s.Now()
	if !res.Sent() {
		msg.Status = models.MessageStatusFailed
		msg.FailedAt = &now
		msg.FailureReason = fmt.Sprintf("%s: %s", res.Outcome, res.Reason)
		if err := s.store.Messages().Upsert(ctx, msg); err != nil {
			return err
		}
		s.notify(msg)
		slog.Warn("Simulator.send: message failed", "messageID", id, "outcome", res.Outcome, "reason", res.Reason)
		return nil
	}

	msg.Status = models.MessageStatusSent
	msg.SentAt = &now
	if res.Recipient != "" {
		msg.Recipient = res.Recipient
	}
	if err := s.store.Messages().Upsert(ctx, msg); err != nil {
		return err
	}
	s.notify(msg)
	slog.Info("Simulator.send: message sent", "messageID", id, "channel", msg.Type)
	return s.schedule(ctx, TaskDeliver, id, now.Add(s.opts.DeliveryLatency))
}

func (s *Simulator) deliver(ctx context.Context, id string) error {
	unlock := s.locks.Lock("message:" + id)
	defer unlock()

	msg, ok, err := s.load(ctx, id, models.MessageStatusSent)
	if err != nil || !ok {
		return err
	}
	now := s.Now()
	msg.Status = models.MessageStatusDelivered
	msg.DeliveredAt = &now
	if err := s.store.Messages().Upsert(ctx, msg); err != nil {
		return err
	}
	s.notify(msg)
	slog.Info("Simulator.deliver: message delivered", "messageID", id)

	_, err = s.UpdateLeadContext(ctx, msg.LeadID, func(lc *models.LeadContext) {
		lc.MarkCompleted(msg.AgentID)
	})
	return err
}

// UpdateLeadContext applies fn to the lead's context under the lead lock and
// stores the result. A missing context starts empty.
func (s *Simulator) UpdateLeadContext(ctx context.Context, leadID string, fn func(*models.LeadContext)) (models.LeadContext, error) {
	unlock := s.locks.Lock("lead:" + leadID)
	defer unlock()

	lc, err := s.store.LeadContexts().Get(ctx, leadID)
	if errors.Is(err, store.ErrNotFound) {
		lc = models.NewLeadContext(leadID)
	} else if err != nil {
		return models.LeadContext{}, err
	}
	fn(&lc)
	if err := s.store.LeadContexts().Upsert(ctx, lc); err != nil {
		return models.LeadContext{}, err
	}
	return lc, nil
}

func (s *Simulator) notify(msg models.Message) {
	if s.opts.OnTransition != nil {
		s.opts.OnTransition(msg)
	}
}

// ErrLifecycleField is returned by Update when fn changes the message status.
var ErrLifecycleField = errors.New("message status is owned by the simulator")

// Update applies fn to a stored message while holding the message's
// transition lock, so it cannot interleave with a send or deliver. fn may
// change annotations only.
func (s *Simulator) Update(ctx context.Context, id string, fn func(*models.Message) error) (models.Message, error) {
	unlock := s.locks.Lock("message:" + id)
	defer unlock()

	msg, err := s.store.Messages().Get(ctx, id)
	if err != nil {
		return models.Message{}, err
	}
	status := msg.Status
	if err := fn(&msg); err != nil {
		return models.Message{}, err
	}
	if msg.Status != status || msg.ID != id {
		return models.Message{}, ErrLifecycleField
	}
	if err := s.store.Messages().Upsert(ctx, msg); err != nil {
		return models.Message{}, fmt.Errorf("failed to store message: %w", err)
	}
	return msg, nil
}

// CancelForLead cancels the scheduled transitions of every in-flight message
// of a lead. It returns the number of messages canceled.
func (s *Simulator) CancelForLead(ctx context.Context, leadID string) (int, error) {
	return s.cancelWhere(ctx, func(m models.Message) bool { return m.LeadID == leadID })
}

// CancelForAgent cancels the scheduled transitions of every in-flight message
// of an agent. It returns the number of messages canceled.
func (s *Simulator) CancelForAgent(ctx context.Context, agentID string) (int, error) {
	return s.cancelWhere(ctx, func(m models.Message) bool { return m.AgentID == agentID })
}

func (s *Simulator) cancelWhere(ctx context.Context, match func(models.Message) bool) (int, error) {
	msgs, err := store.Filter(ctx, s.store.Messages(), func(m models.Message) bool {
		return m.InFlight() && match(m)
	})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range msgs {
		if err := s.cancel(ctx, m.ID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *Simulator) cancel(ctx context.Context, id string) error {
	unlock := s.locks.Lock("message:" + id)
	defer unlock()

	for _, kind := range []string{TaskSend, TaskDeliver} {
		if err := s.sched.Cancel(ctx, TaskID(kind, id)); err != nil {
			return fmt.Errorf("failed to cancel %s for message %s: %w", kind, id, err)
		}
	}
	msg, err := s.store.Messages().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !msg.InFlight() {
		return nil
	}
	return s.stampCanceled(ctx, msg)
}

// Recover reschedules the transitions of in-flight messages from their stored
// timestamps. It is meant for startup, after the scheduler lost its timers.
func (s *Simulator) Recover(ctx context.Context) (int, error) {
	msgs, err := store.Filter(ctx, s.store.Messages(), models.Message.InFlight)
	if err != nil {
		return 0, fmt.Errorf("failed to list in-flight messages: %w", err)
	}
	n := 0
	for _, m := range msgs {
		switch m.Status {
		case models.MessageStatusPending:
			at := m.SendAt
			if at.IsZero() {
				at = m.CreatedAt
			}
			err = s.schedule(ctx, TaskSend, m.ID, at)
		case models.MessageStatusSent:
			at := m.CreatedAt
			if m.SentAt != nil {
				at = *m.SentAt
			}
			err = s.schedule(ctx, TaskDeliver, m.ID, at.Add(s.opts.DeliveryLatency))
		default:
			continue
		}
		if err != nil {
			return n, err
		}
		n++
	}
	slog.Info("Simulator.Recover: rescheduled in-flight messages", "count", n)
	return n, nil
}
