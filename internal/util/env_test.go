package util

import (
	"strings"
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("LEADPIPE_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("LEADPIPE_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 2 * time.Second},
		{"500ms", 500 * time.Millisecond},
		{"5m", 5 * time.Minute},
		{"-1s", 2 * time.Second},
		{"soon", 2 * time.Second},
	}
	for _, tt := range tests {
		t.Setenv("LEADPIPE_TEST_DURATION", tt.value)
		if got := ParseDurationEnv("LEADPIPE_TEST_DURATION", 2*time.Second); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestNewMessageIDSortsByTime(t *testing.T) {
	first := NewMessageID()
	time.Sleep(2 * time.Millisecond)
	second := NewMessageID()
	if !(first < second) {
		t.Errorf("expected %s < %s", first, second)
	}
	ts, ok := MessageIDTime(second)
	if !ok {
		t.Fatalf("MessageIDTime(%q) failed", second)
	}
	if time.Since(ts) > time.Minute {
		t.Errorf("decoded timestamp %v is not recent", ts)
	}
	if _, ok := MessageIDTime("not-a-ulid"); ok {
		t.Error("expected invalid id to fail")
	}
}

func TestNewEntityIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewEntityID()
		if len(id) != 36 {
			t.Fatalf("unexpected uuid length: %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestGenerateJobID(t *testing.T) {
	id := GenerateJobID()
	if !strings.HasPrefix(id, "job_") {
		t.Fatalf("GenerateJobID() = %q, want job_ prefix", id)
	}
	if id == GenerateJobID() {
		t.Errorf("expected distinct job ids")
	}
	if _, ok := MessageIDTime(strings.ToUpper(strings.TrimPrefix(id, "job_"))); !ok {
		t.Errorf("job id %q should carry a ulid", id)
	}
}
