// Package merchant implements the per-store administration operations:
// tenant resolution, default seeding, settings, templates and credentials.
package merchant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ferpoks/wabridge/internal/store"
	"github.com/ferpoks/wabridge/pkg/models"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultDeliveryLimit = 50
	MaxDeliveryLimit     = 200
)

type Service struct {
	store    store.Store
	validate *validator.Validate
}

func NewService(s store.Store) *Service {
	return &Service{store: s, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Resolve maps the optional sid query value to a tenant. Without a sid the
// request is accepted only while exactly one store is installed.
func (s *Service) Resolve(ctx context.Context, sid string) (*models.Tenant, error) {
	if sid != "" {
		t, err := s.store.GetTenant(ctx, sid)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("resolve tenant: %w", err)
		}
		return t, nil
	}

	recent, err := s.store.ListRecentTenants(ctx, 2)
	if err != nil {
		return nil, fmt.Errorf("resolve tenant: %w", err)
	}
	if len(recent) != 1 {
		return nil, ErrTenantNotFound
	}
	return recent[0], nil
}

// EnsureDefaults seeds the default settings and templates for storeID
// without touching anything already stored.
func (s *Service) EnsureDefaults(ctx context.Context, storeID string) error {
	if err := s.store.InsertSettingsIfAbsent(ctx, storeID, models.DefaultSettings()); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	for _, t := range models.DefaultTemplates() {
		t.StoreID = storeID
		if err := s.store.InsertTemplateIfAbsent(ctx, &t); err != nil {
			return fmt.Errorf("seed template %s: %w", t.Key, err)
		}
	}
	return nil
}

// OnboardInput is what the platform OAuth exchange yields for one store.
type OnboardInput struct {
	StoreID      string
	StoreDomain  string
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Onboard records the store's platform authorization and seeds its defaults.
// Reinstalling refreshes tokens while keeping messaging credentials.
func (s *Service) Onboard(ctx context.Context, in OnboardInput) (*models.Tenant, error) {
	if strings.TrimSpace(in.StoreID) == "" {
		return nil, fmt.Errorf("%w: store id is required", ErrInvalidInput)
	}

	t := &models.Tenant{
		StoreID:      in.StoreID,
		StoreDomain:  in.StoreDomain,
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
	}
	if in.ExpiresIn > 0 {
		exp := time.Now().Add(in.ExpiresIn).UTC()
		t.TokenExpiresAt = &exp
	}

	if err := s.store.UpsertTenantAuth(ctx, t); err != nil {
		return nil, fmt.Errorf("onboard %s: %w", in.StoreID, err)
	}
	if err := s.EnsureDefaults(ctx, in.StoreID); err != nil {
		return nil, fmt.Errorf("onboard %s: %w", in.StoreID, err)
	}

	slog.Info("store onboarded", "store_id", t.StoreID, "store_domain", t.StoreDomain)
	return t, nil
}

// SaveCredentials sets the store-level WhatsApp overrides. Empty values clear
// the override so the process-wide defaults apply again.
func (s *Service) SaveCredentials(ctx context.Context, storeID, token, phoneID string) error {
	err := s.store.UpdateTenantCredentials(ctx, storeID, strings.TrimSpace(token), strings.TrimSpace(phoneID))
	if errors.Is(err, store.ErrNotFound) {
		return ErrTenantNotFound
	}
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// ListDeliveries returns the newest deliveries for storeID. limit is clamped
// to [1, MaxDeliveryLimit]; zero or negative selects DefaultDeliveryLimit.
func (s *Service) ListDeliveries(ctx context.Context, storeID string, limit int) ([]*models.Delivery, error) {
	switch {
	case limit <= 0:
		limit = DefaultDeliveryLimit
	case limit > MaxDeliveryLimit:
		limit = MaxDeliveryLimit
	}

	out, err := s.store.ListDeliveries(ctx, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	if out == nil {
		out = []*models.Delivery{}
	}
	return out, nil
}
