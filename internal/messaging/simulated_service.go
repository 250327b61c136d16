package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// SimulatedService accepts every message without contacting a provider. It
// is the transport for channels with no configured provider, and it records
// what it was asked to send.
type SimulatedService struct {
	*inbox
	mu   sync.Mutex
	sent []SimulatedMessage
	// Fail, when set, decides the error returned for a message.
	Fail func(to, body string) error
}

// SimulatedMessage is a message accepted by SimulatedService.
type SimulatedMessage struct {
	To   string
	Body string
}

// Compile-time check that SimulatedService implements Service.
var _ Service = (*SimulatedService)(nil)

func NewSimulatedService() *SimulatedService {
	return &SimulatedService{inbox: newInbox("SimulatedService")}
}

// ValidateAndCanonicalizeRecipient accepts every recipient unchanged, empty
// included: a lead without phone or email is still sent to in simulation.
func (s *SimulatedService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return recipient, nil
}

func (s *SimulatedService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	if s.Fail != nil {
		if err := s.Fail(to, body); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.sent = append(s.sent, SimulatedMessage{To: to, Body: body})
	s.mu.Unlock()
	slog.Debug("SimulatedService message accepted", "to", to, "body_length", len(body))
	return nil
}

// Sent returns a copy of the accepted messages.
func (s *SimulatedService) Sent() []SimulatedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SimulatedMessage(nil), s.sent...)
}

// Inject emits an inbound reply as if it came from the provider.
func (s *SimulatedService) Inject(from, body string, at int64) {
	s.emit(models.Response{From: from, Body: body, Time: at})
}

func (s *SimulatedService) Start(ctx context.Context) error { return nil }

func (s *SimulatedService) Stop() error {
	s.close()
	return nil
}
