package crm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/LeadPipe/internal/config"
)

// SeedResult counts what ApplySeed stored.
type SeedResult struct {
	Pipelines    int `json:"pipelines"`
	CustomFields int `json:"customFields"`
	Agents       int `json:"agents"`
}

// ApplySeed saves the fixtures through the regular save operations, so they
// are validated and normalized like any other input. Fixtures carry fixed
// ids, so applying the same seed twice updates in place.
func (s *Service) ApplySeed(ctx context.Context, seed config.Seed) (SeedResult, error) {
	var res SeedResult
	for _, p := range seed.Pipelines {
		if _, err := s.SavePipeline(ctx, p); err != nil {
			return res, fmt.Errorf("seed pipeline %q: %w", p.Name, err)
		}
		res.Pipelines++
	}
	for _, f := range seed.CustomFields {
		if _, err := s.SaveCustomField(ctx, f); err != nil {
			return res, fmt.Errorf("seed custom field %q: %w", f.Name, err)
		}
		res.CustomFields++
	}
	for _, a := range seed.Agents {
		if _, err := s.SaveAgent(ctx, a); err != nil {
			return res, fmt.Errorf("seed agent %q: %w", a.Name, err)
		}
		res.Agents++
	}
	slog.Info("crm.ApplySeed: fixtures applied", "pipelines", res.Pipelines, "customFields", res.CustomFields, "agents", res.Agents)
	return res, nil
}

// IsEmpty reports whether no pipeline exists yet, which is when serve
// applies the seed on startup.
func (s *Service) IsEmpty(ctx context.Context) (bool, error) {
	all, err := s.store.Pipelines().List(ctx)
	if err != nil {
		return false, err
	}
	return len(all) == 0, nil
}
