package crm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/util"
)

// ListCustomFields returns the fields sorted by order.
func (s *Service) ListCustomFields(ctx context.Context) ([]models.CustomField, error) {
	fields, err := s.store.CustomFields().List(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(fields, func(a, b models.CustomField) int { return a.Order - b.Order })
	return fields, nil
}

// SaveCustomField creates or replaces a field. Select fields need options;
// other types drop them. A new field is appended after the existing ones.
func (s *Service) SaveCustomField(ctx context.Context, f models.CustomField) (models.CustomField, error) {
	f.Name = strings.TrimSpace(f.Name)
	f.Normalize()
	if err := f.Validate(); err != nil {
		return models.CustomField{}, err
	}

	old, err := s.store.CustomFields().Get(ctx, f.ID)
	switch {
	case f.ID != "" && err == nil:
		f.Order = old.Order
	case f.ID == "" || errors.Is(err, store.ErrNotFound):
		if f.ID == "" {
			f.ID = util.NewEntityID()
		}
		fields, err := s.store.CustomFields().List(ctx)
		if err != nil {
			return models.CustomField{}, err
		}
		f.Order = len(fields) + 1
	default:
		return models.CustomField{}, err
	}

	if err := s.store.CustomFields().Upsert(ctx, f); err != nil {
		return models.CustomField{}, fmt.Errorf("failed to store custom field: %w", err)
	}
	slog.Info("crm.SaveCustomField: field saved", "fieldID", f.ID, "type", f.Type, "order", f.Order)
	return f, nil
}

// MoveCustomField moves the field at position from to position to. Positions
// are 0-based indexes into ListCustomFields; orders stay 1..n.
func (s *Service) MoveCustomField(ctx context.Context, from, to int) ([]models.CustomField, error) {
	fields, err := s.ListCustomFields(ctx)
	if err != nil {
		return nil, err
	}
	if from < 0 || from >= len(fields) || to < 0 || to >= len(fields) {
		return nil, fmt.Errorf("%w: from %d to %d with %d fields", ErrFieldIndex, from, to, len(fields))
	}
	moved := fields[from]
	fields = slices.Delete(fields, from, from+1)
	fields = slices.Insert(fields, to, moved)
	if err := s.renumberFields(ctx, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// DeleteCustomField removes a field and closes the gap in the ordering.
func (s *Service) DeleteCustomField(ctx context.Context, id string) error {
	if err := s.store.CustomFields().Delete(ctx, id); err != nil {
		return err
	}
	fields, err := s.ListCustomFields(ctx)
	if err != nil {
		return err
	}
	slog.Info("crm.DeleteCustomField: field deleted", "fieldID", id)
	return s.renumberFields(ctx, fields)
}

func (s *Service) renumberFields(ctx context.Context, fields []models.CustomField) error {
	for i := range fields {
		if fields[i].Order == i+1 {
			continue
		}
		fields[i].Order = i + 1
		if err := s.store.CustomFields().Upsert(ctx, fields[i]); err != nil {
			return fmt.Errorf("failed to renumber field %s: %w", fields[i].ID, err)
		}
	}
	return nil
}
