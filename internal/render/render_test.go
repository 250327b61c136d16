package render

import (
	"reflect"
	"testing"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

func TestRender(t *testing.T) {
	lead := models.Lead{
		ID:      "l1",
		Name:    "Foo",
		Company: "Acme",
		Email:   "foo@acme.test",
		Value:   15000.5,
		CustomFields: map[string]any{
			"cf-origin": "LinkedIn",
			"cf-size":   float64(50),
		},
	}
	r := New(WithFieldIDs(map[string]string{"Origem do Lead": "cf-origin"}))

	tests := []struct {
		name       string
		content    string
		extra      map[string]any
		want       string
		unresolved []string
	}{
		{"scenario", "Hi {{name}} from {{company}}", nil, "Hi Foo from Acme", nil},
		{"whitespace", "Olá {{ name }}!", nil, "Olá Foo!", nil},
		{"value", "Valor: {{value}}", nil, "Valor: 15000.5", nil},
		{"custom field by id", "Via {{cf-origin}}", nil, "Via LinkedIn", nil},
		{"custom field by name", "Via {{Origem do Lead}}", nil, "Via LinkedIn", nil},
		{"number field", "{{cf-size}} pessoas", nil, "50 pessoas", nil},
		{"extra context", "Agente {{agent}}", map[string]any{"agent": "Boas-vindas"}, "Agente Boas-vindas", nil},
		{"empty known attribute", "Tel: {{phone}}", nil, "Tel: ", nil},
		{"unknown placeholder", "Oi {{nome}} {{nome}}", nil, "Oi  ", []string{"nome"}},
		{"no placeholders", "plain text", nil, "plain text", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Render(tt.content, lead, tt.extra)
			if got.Content != tt.want {
				t.Errorf("Content = %q, want %q", got.Content, tt.want)
			}
			if !reflect.DeepEqual(got.Unresolved, tt.unresolved) {
				t.Errorf("Unresolved = %v, want %v", got.Unresolved, tt.unresolved)
			}
		})
	}
}

func TestRender_CompanyFallback(t *testing.T) {
	lead := models.Lead{Name: "Ana"}
	if got := Render("{{name}} da {{company}}", lead, nil).Content; got != "Ana da sua empresa" {
		t.Errorf("default fallback: got %q", got)
	}
	r := New(WithCompanyFallback("your company"))
	if got := r.Render("{{company}}", lead, nil).Content; got != "your company" {
		t.Errorf("custom fallback: got %q", got)
	}
}

func TestRender_Deterministic(t *testing.T) {
	lead := models.Lead{Name: "Foo", Company: "Acme", CustomFields: map[string]any{"a": "1", "b": true}}
	content := "{{name}} {{a}} {{b}} {{missing}} {{company}}"
	first := Render(content, lead, map[string]any{"x": 1})
	for i := 0; i < 10; i++ {
		again := Render(content, lead, map[string]any{"x": 1})
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("render not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestWithCustomFields(t *testing.T) {
	fields := []models.CustomField{{ID: "f1", Name: "Tamanho da Empresa", Type: models.FieldTypeSelect, Options: []string{"1-10"}}}
	lead := models.Lead{Name: "X", CustomFields: map[string]any{"f1": "1-10"}}
	got := New(WithCustomFields(fields)).Render("{{Tamanho da Empresa}}", lead, nil)
	if got.Content != "1-10" {
		t.Errorf("got %q", got.Content)
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("Hi {{name}}, {{ company }} and {{name}} again {{unclosed")
	want := []string{"name", "company"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Placeholders = %v, want %v", got, want)
	}
}

func TestUndeclaredVariables(t *testing.T) {
	tmpl := models.MessageTemplate{
		Subject:   "Proposta para {{company}}",
		Content:   "Oi {{name}}, valor {{value}}",
		Variables: []string{"name", "company"},
	}
	got := UndeclaredVariables(tmpl)
	if !reflect.DeepEqual(got, []string{"value"}) {
		t.Errorf("UndeclaredVariables = %v", got)
	}
}
