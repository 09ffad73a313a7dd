package merchant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ferpoks/wabridge/pkg/models"
	"github.com/ferpoks/wabridge/pkg/render"
	"github.com/go-playground/validator/v10"
)

// TemplateInput is one template edit. The key may arrive as tkey or key.
type TemplateInput struct {
	TKey        string `json:"tkey"`
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Body        string `json:"body"`
}

type templateEntry struct {
	Key         string `validate:"required,oneof=order_created order_paid order_fulfilled out_for_delivery delivered order_canceled refund_created"`
	DisplayName string
	Body        string
}

// ListTemplates returns the store's templates in creation order, seeding the
// defaults first when the store has none.
func (s *Service) ListTemplates(ctx context.Context, storeID string) ([]*models.Template, error) {
	list, err := s.store.ListTemplates(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	if len(list) > 0 {
		return list, nil
	}

	if err := s.EnsureDefaults(ctx, storeID); err != nil {
		return nil, err
	}
	list, err = s.store.ListTemplates(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return list, nil
}

// SaveTemplates creates or updates each submitted template. Templates that
// are not submitted are left alone. Every entry is validated before any is
// written.
func (s *Service) SaveTemplates(ctx context.Context, storeID string, in []TemplateInput) error {
	entries := make([]templateEntry, 0, len(in))
	for i, t := range in {
		key := strings.TrimSpace(t.TKey)
		if key == "" {
			key = strings.TrimSpace(t.Key)
		}
		e := templateEntry{Key: key, DisplayName: t.DisplayName, Body: t.Body}
		if e.DisplayName == "" {
			e.DisplayName = key
		}

		if err := s.validate.Struct(e); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				return fmt.Errorf("%w: templates[%d]: unknown template key %q", ErrInvalidInput, i, key)
			}
			return fmt.Errorf("validate template: %w", err)
		}
		entries = append(entries, e)
	}

	for _, e := range entries {
		k := models.EventKind(e.Key)
		if err := s.store.InsertTemplateIfAbsent(ctx, &models.Template{
			StoreID: storeID, Key: k, DisplayName: e.DisplayName, Body: e.Body,
		}); err != nil {
			return fmt.Errorf("save template %s: %w", k, err)
		}
		if err := s.store.UpdateTemplateContent(ctx, storeID, k, e.DisplayName, e.Body); err != nil {
			return fmt.Errorf("save template %s: %w", k, err)
		}
	}
	return nil
}

// Template returns the store's template for key.
func (s *Service) Template(ctx context.Context, storeID string, key models.EventKind) (*models.Template, error) {
	list, err := s.ListTemplates(ctx, storeID)
	if err != nil {
		return nil, err
	}
	for _, t := range list {
		if t.Key == key {
			return t, nil
		}
	}
	return nil, ErrTemplateNotFound
}

// Preview renders the store's template for key. Without vars the dashboard
// sample values are used.
func (s *Service) Preview(ctx context.Context, storeID string, key models.EventKind, vars map[string]string) (string, error) {
	t, err := s.Template(ctx, storeID, key)
	if err != nil {
		return "", err
	}
	if len(vars) == 0 {
		vars = render.SampleVars()
	}
	return render.Render(t.Body, vars), nil
}
