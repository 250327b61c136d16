package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// Constants for the HTTP-based providers
const (
	// DefaultGraphBaseURL is the Meta Graph API host used by the Cloud API provider
	DefaultGraphBaseURL = "https://graph.facebook.com"
	// Default360DialogBaseURL is the 360dialog WhatsApp Business API host
	Default360DialogBaseURL = "https://waba.360dialog.io"
	// DefaultHTTPTimeout bounds a single provider request
	DefaultHTTPTimeout = 15 * time.Second
	// maxErrorBody caps how much of an error response is read
	maxErrorBody = 64 << 10
)

// HTTPOpts holds configuration options for the HTTP-based providers.
type HTTPOpts struct {
	BaseURL string
	Client  *http.Client
}

// HTTPOption defines a configuration option for the HTTP-based providers.
type HTTPOption func(*HTTPOpts)

// WithBaseURL overrides the provider host (used by tests).
func WithBaseURL(url string) HTTPOption {
	return func(o *HTTPOpts) { o.BaseURL = url }
}

// WithHTTPClient sets the HTTP client used for provider requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(o *HTTPOpts) { o.Client = c }
}

func resolveHTTPOpts(defaultBase string, opts []HTTPOption) HTTPOpts {
	cfg := HTTPOpts{BaseURL: defaultBase}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return cfg
}

type textBody struct {
	Body string `json:"body"`
}

// textMessage is the WhatsApp Business API text message payload.
type textMessage struct {
	MessagingProduct string   `json:"messaging_product,omitempty"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

// postJSON sends payload and maps the response status: 2xx succeeds, 4xx is a
// rejection, anything else (or a network failure) is a transport error.
func postJSON(ctx context.Context, client *http.Client, name, url string, headers map[string]string, payload any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: failed to encode payload: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", name, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		slog.Debug(name+" message accepted", "status", resp.StatusCode)
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &RejectedError{Reason: fmt.Sprintf("%s %d: %s", name, resp.StatusCode, providerMessage(body, resp.Status))}
	default:
		return fmt.Errorf("%s: unexpected status %d: %s", name, resp.StatusCode, providerMessage(body, resp.Status))
	}
}

// providerMessage extracts a human readable error from a provider response.
// It understands the Graph API and 360dialog error shapes.
func providerMessage(body []byte, fallback string) string {
	for _, path := range []string{"error.message", "errors.0.details", "errors.0.title", "meta.developer_message"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return fallback
}

// CloudAPIService sends through the Meta WhatsApp Cloud API.
type CloudAPIService struct {
	*inbox
	token         string
	phoneNumberID string
	apiVersion    string
	opts          HTTPOpts
}

// Compile-time check that CloudAPIService implements Service.
var _ Service = (*CloudAPIService)(nil)

// NewCloudAPIService creates a Cloud API sender for the given business phone number id.
func NewCloudAPIService(token, phoneNumberID, apiVersion string, opts ...HTTPOption) *CloudAPIService {
	return &CloudAPIService{
		inbox:         newInbox("CloudAPIService"),
		token:         token,
		phoneNumberID: phoneNumberID,
		apiVersion:    apiVersion,
		opts:          resolveHTTPOpts(DefaultGraphBaseURL, opts),
	}
}

func (s *CloudAPIService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

func (s *CloudAPIService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	digits, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/%s/%s/messages", s.opts.BaseURL, s.apiVersion, s.phoneNumberID)
	payload := textMessage{MessagingProduct: "whatsapp", To: E164(digits), Type: "text", Text: textBody{Body: body}}
	return postJSON(ctx, s.opts.Client, "CloudAPIService", url, map[string]string{"Authorization": "Bearer " + s.token}, payload)
}

// Start is a no-op; the Cloud API delivers inbound messages by webhook, which is not wired.
func (s *CloudAPIService) Start(ctx context.Context) error { return nil }

func (s *CloudAPIService) Stop() error {
	s.close()
	return nil
}

// Dialog360Service sends through the 360dialog WhatsApp Business API.
type Dialog360Service struct {
	*inbox
	apiKey string
	opts   HTTPOpts
}

// Compile-time check that Dialog360Service implements Service.
var _ Service = (*Dialog360Service)(nil)

// NewDialog360Service creates a 360dialog sender.
func NewDialog360Service(apiKey string, opts ...HTTPOption) *Dialog360Service {
	return &Dialog360Service{
		inbox:  newInbox("Dialog360Service"),
		apiKey: apiKey,
		opts:   resolveHTTPOpts(Default360DialogBaseURL, opts),
	}
}

func (s *Dialog360Service) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

func (s *Dialog360Service) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	digits, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	payload := textMessage{To: E164(digits), Type: "text", Text: textBody{Body: body}}
	return postJSON(ctx, s.opts.Client, "Dialog360Service", s.opts.BaseURL+"/v1/messages", map[string]string{"D360-API-KEY": s.apiKey}, payload)
}

// Start is a no-op; 360dialog delivers inbound messages by webhook, which is not wired.
func (s *Dialog360Service) Start(ctx context.Context) error { return nil }

func (s *Dialog360Service) Stop() error {
	s.close()
	return nil
}
