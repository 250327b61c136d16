package messaging

import (
	"context"
	"errors"
	"log/slog"
)

// Outcome classifies a delivery attempt.
type Outcome string

const (
	OutcomeSent           Outcome = "sent"
	OutcomeRejected       Outcome = "rejected"
	OutcomeTransportError Outcome = "transport_error"
)

// Result is the outcome of one delivery attempt. Reason carries the
// rejection reason or the transport error detail.
type Result struct {
	Outcome   Outcome `json:"outcome"`
	Recipient string  `json:"recipient"`
	Reason    string  `json:"reason,omitempty"`
}

// Sent reports whether the provider accepted the message.
func (r Result) Sent() bool { return r.Outcome == OutcomeSent }

// RejectedError means the provider (or local validation) refused the message.
// Retrying the same request will not help.
type RejectedError struct {
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	if e.Err != nil {
		return "rejected: " + e.Reason + ": " + e.Err.Error()
	}
	return "rejected: " + e.Reason
}

func (e *RejectedError) Unwrap() error { return e.Err }

// Reject returns a *RejectedError with the given reason.
func Reject(reason string) error {
	return &RejectedError{Reason: reason}
}

// Deliver validates the recipient and sends body through svc, turning the
// error into a Result.
func Deliver(ctx context.Context, svc Service, to, body string) Result {
	canonical, err := svc.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Warn("messaging.Deliver: recipient rejected", "to", to, "error", err)
		return Result{Outcome: OutcomeRejected, Recipient: to, Reason: reason(err)}
	}
	err = svc.SendMessage(ctx, canonical, body)
	switch {
	case err == nil:
		return Result{Outcome: OutcomeSent, Recipient: canonical}
	case isRejection(err):
		slog.Warn("messaging.Deliver: message rejected", "to", canonical, "error", err)
		return Result{Outcome: OutcomeRejected, Recipient: canonical, Reason: reason(err)}
	default:
		slog.Error("messaging.Deliver: transport error", "to", canonical, "error", err)
		return Result{Outcome: OutcomeTransportError, Recipient: canonical, Reason: err.Error()}
	}
}

func isRejection(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}

func reason(err error) string {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Reason
	}
	return err.Error()
}
