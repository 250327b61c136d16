// Package crm is the application layer over the entity store. It validates
// and stamps CRM entities, keeps pipeline and field orderings consistent,
// and raises the lifecycle events the automation engine reacts to.
package crm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BTreeMap/LeadPipe/internal/automation"
	"github.com/BTreeMap/LeadPipe/internal/scheduler"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/trigger"
)

// Error variables for conflicts the HTTP layer maps to 409.
var (
	ErrDefaultPipelineDelete = errors.New("the default pipeline cannot be deleted")
	ErrPipelineHasLeads      = errors.New("pipeline still has leads")
	ErrStageHasLeads         = errors.New("stage still has leads")
)

// Error variables for bad references the HTTP layer maps to 400.
var (
	ErrUnknownPipeline = errors.New("unknown pipeline")
	ErrUnknownStage    = errors.New("stage does not belong to the pipeline")
	ErrUnknownAgent    = errors.New("unknown agent")
	ErrFieldIndex      = errors.New("custom field position out of range")
)

// Opts configures a Service.
type Opts struct {
	Clock scheduler.Clock
}

// Option mutates Opts.
type Option func(*Opts)

// WithClock sets the clock used for entity timestamps.
func WithClock(c scheduler.Clock) Option {
	return func(o *Opts) { o.Clock = c }
}

// Service implements the CRM operations.
type Service struct {
	store  store.Store
	engine *automation.Engine
	sim    *automation.Simulator
	clock  scheduler.Clock
}

// New creates a Service. Events are raised on engine; when engine is nil no
// automation runs.
func New(st store.Store, engine *automation.Engine, opts ...Option) *Service {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Service{store: st, engine: engine, clock: cfg.Clock}
	if engine != nil {
		s.sim = engine.Simulator()
		if s.clock == nil {
			s.clock = s.sim
		}
	}
	if s.clock == nil {
		s.clock = scheduler.SystemClock{}
	}
	return s
}

// Store returns the underlying entity store.
func (s *Service) Store() store.Store { return s.store }

// Engine returns the automation engine, or nil.
func (s *Service) Engine() *automation.Engine { return s.engine }

// emit hands an event to the engine. Automation problems never fail the CRM
// operation that raised the event.
func (s *Service) emit(ctx context.Context, event trigger.Event) {
	if s.engine == nil {
		return
	}
	msgs, err := s.engine.Handle(ctx, event)
	if err != nil {
		slog.Error("crm.emit: automation failed", "kind", event.Kind, "leadID", event.LeadID, "error", err)
		return
	}
	if len(msgs) > 0 {
		slog.Info("crm.emit: messages created", "kind", event.Kind, "leadID", event.LeadID, "count", len(msgs))
	}
}

// Emit raises an arbitrary event, used for custom signals from the API.
func (s *Service) Emit(ctx context.Context, event trigger.Event) error {
	if s.engine == nil {
		return nil
	}
	_, err := s.engine.Handle(ctx, event)
	return err
}
