package messaging

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/whatsapp"
)

// WhatsAppService implements Service on a linked WhatsApp device.
type WhatsAppService struct {
	*inbox
	client whatsapp.Sender
}

// Compile-time check that WhatsAppService implements Service.
var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService creates a WhatsAppService. Inbound messages are only
// received when client is a *whatsapp.Client.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	return &WhatsAppService{inbox: newInbox("WhatsAppService"), client: client}
}

// ValidateAndCanonicalizeRecipient reduces the recipient to the digits of its phone number.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// Start forwards inbound text messages to Responses.
func (s *WhatsAppService) Start(ctx context.Context) error {
	wa, ok := s.client.(*whatsapp.Client)
	if !ok {
		slog.Debug("WhatsAppService.Start: sender has no inbound side")
		return nil
	}
	wa.OnMessage(func(in whatsapp.Inbound) {
		s.emit(models.Response{From: E164(in.From), Body: in.Body, Time: in.At.Unix()})
	})
	slog.Debug("WhatsAppService.Start: inbound handler registered")
	return nil
}

// Stop closes the responses channel and disconnects the client.
func (s *WhatsAppService) Stop() error {
	slog.Info("WhatsAppService Stop invoked")
	if !s.close() {
		return nil
	}
	if wa, ok := s.client.(*whatsapp.Client); ok {
		wa.Disconnect()
	}
	slog.Info("WhatsAppService stopped and channels closed")
	return nil
}

// SendMessage sends a text message through the linked device.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if body == "" {
		return Reject("message body cannot be empty")
	}

	slog.Debug("WhatsAppService SendMessage invoked", "to", canonicalTo, "body_length", len(body))
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", canonicalTo)
		return err
	}
	slog.Info("WhatsAppService message sent", "to", canonicalTo)
	return nil
}
