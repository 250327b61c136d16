// Package render substitutes {{placeholder}} variables in message templates.
package render

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// DefaultCompanyFallback replaces {{company}} when the lead has no company.
const DefaultCompanyFallback = "sua empresa"

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Result is the rendered content plus the placeholders that had no value.
type Result struct {
	Content    string
	Unresolved []string
}

// Opts holds configuration for a Renderer.
type Opts struct {
	CompanyFallback string
	// FieldIDs maps custom field names to ids so templates can say {{Origem do Lead}}.
	FieldIDs map[string]string
}

// Option defines a configuration option for a Renderer.
type Option func(*Opts)

// WithCompanyFallback overrides the text used when a lead has no company.
func WithCompanyFallback(s string) Option {
	return func(o *Opts) {
		o.CompanyFallback = s
	}
}

// WithFieldIDs lets placeholders refer to custom fields by name.
func WithFieldIDs(nameToID map[string]string) Option {
	return func(o *Opts) {
		o.FieldIDs = nameToID
	}
}

// WithCustomFields builds the name lookup from field definitions.
func WithCustomFields(fields []models.CustomField) Option {
	return func(o *Opts) {
		o.FieldIDs = make(map[string]string, len(fields))
		for _, f := range fields {
			o.FieldIDs[f.Name] = f.ID
		}
	}
}

// Renderer renders templates against leads. The zero value is not usable; call New.
type Renderer struct {
	companyFallback string
	fieldIDs        map[string]string
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	cfg := Opts{CompanyFallback: DefaultCompanyFallback}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Renderer{companyFallback: cfg.CompanyFallback, fieldIDs: cfg.FieldIDs}
}

// Render replaces every placeholder in content. Lead attributes win, then
// custom fields (by id, then by name), then extra. Unknown placeholders render
// as the empty string and are reported in Result.Unresolved.
func (r *Renderer) Render(content string, lead models.Lead, extra map[string]any) Result {
	var unresolved []string
	out := placeholderRe.ReplaceAllStringFunc(content, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := r.resolve(key, lead, extra)
		if !ok && !slices.Contains(unresolved, key) {
			unresolved = append(unresolved, key)
		}
		return v
	})
	if len(unresolved) > 0 {
		slog.Debug("Renderer.Render: unresolved placeholders", "leadID", lead.ID, "keys", unresolved)
	}
	return Result{Content: out, Unresolved: unresolved}
}

func (r *Renderer) resolve(key string, lead models.Lead, extra map[string]any) (string, bool) {
	attr, known := leadAttribute(key, lead)
	if known && attr != "" {
		return attr, true
	}
	if v, ok := lead.CustomFields[key]; ok && v != nil {
		return format(v), true
	}
	if id, ok := r.fieldIDs[key]; ok {
		if v, ok := lead.CustomFields[id]; ok && v != nil {
			return format(v), true
		}
	}
	if v, ok := extra[key]; ok && v != nil {
		return format(v), true
	}
	if key == "company" {
		return r.companyFallback, true
	}
	return "", known
}

// leadAttribute returns the named built-in attribute and whether key names one.
func leadAttribute(key string, lead models.Lead) (string, bool) {
	switch key {
	case "name":
		return lead.Name, true
	case "email":
		return lead.Email, true
	case "phone":
		return lead.Phone, true
	case "company":
		return lead.Company, true
	case "value":
		return strconv.FormatFloat(lead.Value, 'f', -1, 64), true
	case "source":
		return lead.Source, true
	case "notes":
		return lead.Notes, true
	case "assignedTo":
		return lead.AssignedTo, true
	}
	return "", false
}

func format(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

var defaultRenderer = New()

// Render renders content with the default options.
func Render(content string, lead models.Lead, extra map[string]any) Result {
	return defaultRenderer.Render(content, lead, extra)
}

// Placeholders lists the distinct placeholder names in content, in order of appearance.
func Placeholders(content string) []string {
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(content, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names
}

// UndeclaredVariables returns the placeholders used in the template content
// that are missing from its declared variables.
func UndeclaredVariables(t models.MessageTemplate) []string {
	var out []string
	for _, name := range Placeholders(t.Subject + "\n" + t.Content) {
		if !slices.ContainsFunc(t.Variables, func(v string) bool { return strings.TrimSpace(v) == name }) {
			out = append(out, name)
		}
	}
	return out
}
