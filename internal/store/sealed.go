package store

import (
	"context"
	"fmt"

	"github.com/ferpoks/wabridge/internal/secret"
	"github.com/ferpoks/wabridge/pkg/models"
)

// SealedStore wraps a Store and keeps tenant tokens sealed at rest. Reads
// return plaintext; writes seal before delegating.
type SealedStore struct {
	Store
	sealer *secret.Sealer
}

var _ Store = (*SealedStore)(nil)

func NewSealedStore(inner Store, sealer *secret.Sealer) *SealedStore {
	return &SealedStore{Store: inner, sealer: sealer}
}

func (s *SealedStore) GetTenant(ctx context.Context, storeID string) (*models.Tenant, error) {
	t, err := s.Store.GetTenant(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if err := s.open(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *SealedStore) ListRecentTenants(ctx context.Context, limit int) ([]*models.Tenant, error) {
	tenants, err := s.Store.ListRecentTenants(ctx, limit)
	if err != nil {
		return nil, err
	}
	for _, t := range tenants {
		if err := s.open(t); err != nil {
			return nil, err
		}
	}
	return tenants, nil
}

func (s *SealedStore) UpsertTenantAuth(ctx context.Context, t *models.Tenant) error {
	sealed := *t
	var err error
	if sealed.AccessToken, err = s.sealer.Seal(t.AccessToken); err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	if sealed.RefreshToken, err = s.sealer.Seal(t.RefreshToken); err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	if sealed.WabaToken, err = s.sealer.Seal(t.WabaToken); err != nil {
		return fmt.Errorf("seal waba token: %w", err)
	}

	if err := s.Store.UpsertTenantAuth(ctx, &sealed); err != nil {
		return err
	}
	if err := s.open(&sealed); err != nil {
		return err
	}
	*t = sealed
	return nil
}

func (s *SealedStore) UpdateTenantCredentials(ctx context.Context, storeID, token, phoneID string) error {
	sealed, err := s.sealer.Seal(token)
	if err != nil {
		return fmt.Errorf("seal waba token: %w", err)
	}
	return s.Store.UpdateTenantCredentials(ctx, storeID, sealed, phoneID)
}

func (s *SealedStore) open(t *models.Tenant) error {
	var err error
	if t.AccessToken, err = s.sealer.Open(t.AccessToken); err != nil {
		return fmt.Errorf("open access token for %s: %w", t.StoreID, err)
	}
	if t.RefreshToken, err = s.sealer.Open(t.RefreshToken); err != nil {
		return fmt.Errorf("open refresh token for %s: %w", t.StoreID, err)
	}
	if t.WabaToken, err = s.sealer.Open(t.WabaToken); err != nil {
		return fmt.Errorf("open waba token for %s: %w", t.StoreID, err)
	}
	return nil
}
