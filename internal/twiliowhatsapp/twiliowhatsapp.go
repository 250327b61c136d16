// Package twiliowhatsapp wraps the Twilio REST API for WhatsApp and SMS delivery.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// WhatsAppPrefix is the address prefix Twilio uses for WhatsApp endpoints.
const WhatsAppPrefix = "whatsapp:"

// Sender sends a text message to a canonical (digits only) phone number.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the Twilio client.
type Opts struct {
	AccountSID string
	AuthToken  string
	From       string
	SMS        bool // send plain SMS instead of WhatsApp
}

// Option defines a configuration option for the Twilio client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFrom sets the sender number, with or without the whatsapp: prefix.
func WithFrom(from string) Option {
	return func(o *Opts) { o.From = from }
}

// WithSMS sends through the plain SMS channel.
func WithSMS() Option {
	return func(o *Opts) { o.SMS = true }
}

// Client wraps the Twilio REST API.
type Client struct {
	client *twilio.RestClient
	from   string
	sms    bool
}

// Compile-time check that Client implements Sender.
var _ Sender = (*Client)(nil)

// NewClient creates a Twilio client. Missing options fall back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER environment variables.
func NewClient(opts ...Option) (*Client, error) {
	cfg := resolveOpts(opts...)
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "",
		"SMS", cfg.SMS)

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{
		client: client,
		from:   senderAddress(cfg.From, cfg.SMS),
		sms:    cfg.SMS,
	}, nil
}

func resolveOpts(opts ...Option) Opts {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	return cfg
}

// senderAddress adds the whatsapp: prefix for WhatsApp and strips it for SMS.
func senderAddress(from string, sms bool) string {
	if sms {
		return strings.TrimPrefix(from, WhatsAppPrefix)
	}
	if strings.HasPrefix(from, WhatsAppPrefix) {
		return from
	}
	return WhatsAppPrefix + from
}

// recipientAddress formats canonical digits as an E.164 Twilio address.
func recipientAddress(digits string, sms bool) string {
	if sms {
		return "+" + digits
	}
	return WhatsAppPrefix + "+" + digits
}

// SendMessage sends a message using the Twilio API. Provider errors are
// returned wrapped so callers can inspect *client.TwilioRestError.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(recipientAddress(to, c.sms))
	params.SetFrom(c.from)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}

	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("Twilio message sent", "to", to, "sid", sid)
	return nil
}

// MockClient records messages instead of calling Twilio. Set Err to make
// every send fail with it.
type MockClient struct {
	mu           sync.Mutex
	SentMessages []SentMessage
	Err          error
}

// SentMessage is one message captured by MockClient.
type SentMessage struct {
	To   string
	Body string
}

func NewMockClient() *MockClient {
	return &MockClient{SentMessages: []SentMessage{}}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}

// Sent returns a copy of the captured messages.
func (m *MockClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.SentMessages...)
}
