// Package models defines the core data structures for LeadPipe.
//
// It includes the CRM entities (leads, pipelines, custom fields, agents),
// the automation records (messages, lead contexts) and the API envelope
// shared across modules.
package models

import (
	"errors"
	"fmt"
)

// Error variables for better error handling and testability
var (
	ErrEmptyName            = errors.New("name cannot be empty")
	ErrNegativeValue        = errors.New("value must be non-negative")
	ErrMissingPipeline      = errors.New("pipeline id is required")
	ErrMissingStage         = errors.New("stage id is required")
	ErrNoStages             = errors.New("pipeline must have at least one stage")
	ErrEmptyStageName       = errors.New("stage name cannot be empty")
	ErrDuplicateStage       = errors.New("stage ids must be unique within a pipeline")
	ErrInvalidFieldType     = errors.New("invalid custom field type")
	ErrSelectWithoutOptions = errors.New("select fields require at least one option")
	ErrRequiredField        = errors.New("required custom field is missing")
	ErrInvalidOption        = errors.New("value is not one of the field options")
	ErrInvalidTriggerType   = errors.New("invalid trigger type")
	ErrConditionsMismatch   = errors.New("trigger conditions do not match trigger type")
	ErrNegativeDelay        = errors.New("trigger delay must be non-negative")
	ErrNegativeDays         = errors.New("time based trigger days must be non-negative")
	ErrInvalidChannel       = errors.New("invalid message channel")
	ErrEmptyContent         = errors.New("template content cannot be empty")
	ErrInvalidSentiment     = errors.New("invalid sentiment")
	ErrInvalidStatus        = errors.New("invalid message status")
)

// ValidationError reports which field of an entity failed validation.
// Save operations return it without mutating any state.
type ValidationError struct {
	Entity string
	Field  string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s: %v", e.Entity, e.Err)
	}
	return fmt.Sprintf("invalid %s %s: %v", e.Entity, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(entity, field string, err error) error {
	return &ValidationError{Entity: entity, Field: field, Err: err}
}

// Response represents an incoming reply from a lead on an outbound channel.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusAccepted indicates an event was accepted for asynchronous processing.
	APIStatusAccepted APIStatus = "accepted"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Accepted creates an API response for work handed off to the automation engine.
func Accepted(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusAccepted).
		WithMessage(message).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
