// Package messaging delivers outbound messages through a pluggable transport
// and surfaces inbound replies.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Constants for service channel configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for response channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
	// MinPhoneDigits is the shortest accepted phone number after canonicalization
	MinPhoneDigits = 6
)

// ErrServiceStopped is returned by SendMessage after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	// Returns the canonicalized recipient and an error if validation fails.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient. Errors wrapping *RejectedError
	// mean the provider refused the message; any other error is a transport failure.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., listening for inbound messages).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of incoming lead replies.
	Responses() <-chan models.Response
}

// CanonicalizePhone strips every non-digit and requires at least MinPhoneDigits digits.
func CanonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", Reject("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", Reject(fmt.Sprintf("invalid phone number: no digits found in recipient %q", recipient))
	}
	if len(canonical) < MinPhoneDigits {
		return "", Reject(fmt.Sprintf("invalid phone number: %q is too short (minimum %d digits required)", canonical, MinPhoneDigits))
	}
	if canonical != recipient {
		slog.Debug("CanonicalizePhone: canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// E164 formats canonical digits as +<digits>.
func E164(digits string) string {
	return "+" + digits
}

// inbox owns a Responses channel that is safe to emit into concurrently with Stop.
type inbox struct {
	name      string
	mu        sync.RWMutex
	responses chan models.Response
	stopped   bool
}

func newInbox(name string) *inbox {
	return &inbox{
		name:      name,
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

func (b *inbox) Responses() <-chan models.Response {
	return b.responses
}

func (b *inbox) isStopped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stopped
}

// emit pushes a response, dropping it when the service is stopped or the
// channel stays full for DefaultChannelTimeout.
func (b *inbox) emit(response models.Response) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		slog.Warn(b.name+" dropping inbound response (service stopped)", "from", response.From)
		return
	}
	select {
	case b.responses <- response:
		slog.Debug(b.name+" emitted inbound response", "from", response.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(b.name+" responses channel blocked, dropping message", "from", response.From)
	}
}

// close marks the inbox stopped and closes the channel. It reports false if
// it was already closed.
func (b *inbox) close() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return false
	}
	b.stopped = true
	close(b.responses)
	return true
}
