package models

import (
	"fmt"
	"slices"
	"strings"
)

// FieldType is the input type of a custom field.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeDate     FieldType = "date"
	FieldTypeSelect   FieldType = "select"
	FieldTypeTextarea FieldType = "textarea"
	FieldTypeBoolean  FieldType = "boolean"
)

// IsValidFieldType checks if the given field type is supported.
func IsValidFieldType(ft FieldType) bool {
	switch ft {
	case FieldTypeText, FieldTypeNumber, FieldTypeDate, FieldTypeSelect, FieldTypeTextarea, FieldTypeBoolean:
		return true
	default:
		return false
	}
}

// CustomField is a user-defined lead attribute.
type CustomField struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Options  []string  `json:"options,omitempty"`
	Required bool      `json:"required"`
	Order    int       `json:"order"`
}

// Validate checks the field definition. Select fields need at least one option.
func (f *CustomField) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return invalid("custom field", "name", ErrEmptyName)
	}
	if !IsValidFieldType(f.Type) {
		return invalid("custom field", "type", fmt.Errorf("%w: %q", ErrInvalidFieldType, f.Type))
	}
	if f.Type == FieldTypeSelect {
		var opts int
		for _, o := range f.Options {
			if strings.TrimSpace(o) != "" {
				opts++
			}
		}
		if opts == 0 {
			return invalid("custom field", "options", ErrSelectWithoutOptions)
		}
	}
	return nil
}

// Normalize trims option whitespace and drops options on non-select fields.
func (f *CustomField) Normalize() {
	if f.Type != FieldTypeSelect {
		f.Options = nil
		return
	}
	opts := make([]string, 0, len(f.Options))
	for _, o := range f.Options {
		if o = strings.TrimSpace(o); o != "" {
			opts = append(opts, o)
		}
	}
	f.Options = opts
}

// CheckValue validates a lead's value for this field.
func (f *CustomField) CheckValue(v any, present bool) error {
	empty := !present || v == nil
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		empty = true
	}
	if empty {
		if f.Required {
			return invalid("lead", "customFields."+f.Name, ErrRequiredField)
		}
		return nil
	}
	if f.Type == FieldTypeSelect {
		s, _ := v.(string)
		if !slices.Contains(f.Options, s) {
			return invalid("lead", "customFields."+f.Name, fmt.Errorf("%w: %v", ErrInvalidOption, v))
		}
	}
	return nil
}

func (f CustomField) EntityID() string { return f.ID }

func (f CustomField) Clone() CustomField {
	f.Options = slices.Clone(f.Options)
	return f
}
