package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/twilio/twilio-go/client"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/twiliowhatsapp"
)

// TwilioService implements the Service interface using the Twilio API.
type TwilioService struct {
	*inbox
	client twiliowhatsapp.Sender // real Twilio client or MockClient
	dedup  store.DedupRepo
}

// Compile-time check that TwilioService implements Service.
var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a new TwilioService. dedup may be nil, in which
// case webhook retries are not filtered.
func NewTwilioService(sender twiliowhatsapp.Sender, dedup store.DedupRepo) *TwilioService {
	return &TwilioService{
		inbox:  newInbox("TwilioService"),
		client: sender,
		dedup:  dedup,
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a phone number.
// It removes all non-numeric characters and validates the result has at least 6 digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(strings.TrimPrefix(recipient, twiliowhatsapp.WhatsAppPrefix))
}

// Start is a no-op for Twilio; inbound messages arrive through TwilioWebhookHandler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the responses channel.
func (s *TwilioService) Stop() error {
	s.close()
	return nil
}

// SendMessage sends a message via Twilio. Twilio 4xx errors are rejections.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}

	err = s.client.SendMessage(ctx, canonicalTo, body)
	if err == nil {
		return nil
	}
	var restErr *client.TwilioRestError
	if errors.As(err, &restErr) && restErr.Status >= 400 && restErr.Status < 500 {
		return &RejectedError{Reason: fmt.Sprintf("twilio %d: %s", restErr.Code, restErr.Message), Err: err}
	}
	return err
}

// TwilioWebhookHandler handles inbound Twilio webhook requests.
// It parses incoming messages and emits them as models.Response into the Responses() channel.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	slog.Info("Twilio webhook received")

	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := strings.TrimPrefix(r.FormValue("From"), twiliowhatsapp.WhatsAppPrefix)
	body := r.FormValue("Body")
	sid := r.FormValue("MessageSid")

	if from == "" || body == "" {
		slog.Warn("Twilio webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	if sid != "" && s.dedup != nil {
		isNew, err := s.dedup.RecordInbound(r.Context(), sid, from)
		if err != nil {
			slog.Error("TwilioService webhook dedup failed", "sid", sid, "error", err)
		} else if !isNew {
			slog.Info("TwilioService ignoring duplicate webhook", "sid", sid)
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "OK")
			return
		}
	}

	slog.Info("Inbound message from Twilio", "from", from, "body_length", len(body))
	s.emit(models.Response{
		From: from,
		Body: body,
		Time: time.Now().Unix(),
	})

	if sid != "" && s.dedup != nil {
		if err := s.dedup.MarkProcessed(r.Context(), sid); err != nil {
			slog.Warn("TwilioService webhook mark processed failed", "sid", sid, "error", err)
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
