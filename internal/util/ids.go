package util

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewEntityID returns a random UUID for CRM entities (leads, pipelines,
// stages, custom fields, agents, triggers, templates).
func NewEntityID() string {
	return uuid.NewString()
}

// NewMessageID returns a ULID. Message ids sort by creation time.
func NewMessageID() string {
	return ulid.Make().String()
}

// MessageIDTime extracts the creation timestamp encoded in a message id.
func MessageIDTime(id string) (time.Time, bool) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()), true
}

// GenerateJobID returns a durable job id with a "job_" prefix.
func GenerateJobID() string {
	return "job_" + strings.ToLower(ulid.Make().String())
}
