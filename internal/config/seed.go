package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

//go:embed default_seed.yaml
var defaultSeed []byte

// Seed is a set of fixtures loaded at startup or by `LeadPipe seed`.
type Seed struct {
	Pipelines    []models.Pipeline    `json:"pipelines"`
	CustomFields []models.CustomField `json:"customFields"`
	Agents       []models.AIAgent     `json:"agents"`
}

// ParseSeed decodes YAML fixtures. The document goes through JSON so the
// models' JSON decoding applies, including the trigger condition variants.
func ParseSeed(data []byte) (Seed, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Seed{}, fmt.Errorf("failed to parse seed: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return Seed{}, fmt.Errorf("failed to convert seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("failed to decode seed: %w", err)
	}
	return seed, nil
}

// LoadSeed reads fixtures from a YAML file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	return ParseSeed(data)
}

// DefaultSeed returns the embedded fixtures: the sales pipeline, lead
// qualification fields and a starter set of agents.
func DefaultSeed() (Seed, error) {
	return ParseSeed(defaultSeed)
}
