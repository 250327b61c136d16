package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "5511999999999", "Hello Test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", sent[0].Body)
	}
}

func TestMockClient_Err(t *testing.T) {
	mock := NewMockClient()
	mock.Err = errors.New("boom")
	if err := mock.SendMessage(context.Background(), "123456", "x"); err == nil {
		t.Fatal("expected error")
	}
	if len(mock.Sent()) != 0 {
		t.Error("failed send must not be recorded")
	}
}

func TestAddresses(t *testing.T) {
	tests := []struct {
		from string
		sms  bool
		want string
	}{
		{"+14155238886", false, "whatsapp:+14155238886"},
		{"whatsapp:+14155238886", false, "whatsapp:+14155238886"},
		{"whatsapp:+14155238886", true, "+14155238886"},
		{"+14155238886", true, "+14155238886"},
	}
	for _, tt := range tests {
		if got := senderAddress(tt.from, tt.sms); got != tt.want {
			t.Errorf("senderAddress(%q, %v) = %q, want %q", tt.from, tt.sms, got, tt.want)
		}
	}
	if got := recipientAddress("5511999999999", false); got != "whatsapp:+5511999999999" {
		t.Errorf("recipientAddress = %q", got)
	}
	if got := recipientAddress("5511999999999", true); got != "+5511999999999" {
		t.Errorf("recipientAddress sms = %q", got)
	}
}

func TestNewClient_EnvFallback(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "ACenv")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_FROM_NUMBER", "+14155238886")

	c, err := NewClient()
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.from != "whatsapp:+14155238886" {
		t.Errorf("from = %q", c.from)
	}

	c, err = NewClient(WithFrom("+15550001111"), WithSMS())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.from != "+15550001111" || !c.sms {
		t.Errorf("unexpected client: from=%q sms=%v", c.from, c.sms)
	}
}

func TestNewClient_MissingCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC"), WithAuthToken("x")); err == nil {
		t.Error("expected error without from number")
	}
}
