package store_test

import (
	"context"
	"testing"

	"github.com/ferpoks/wabridge/internal/secret"
	"github.com/ferpoks/wabridge/internal/store"
	"github.com/ferpoks/wabridge/internal/store/storetest"
	"github.com/ferpoks/wabridge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealedStore_TokensSealedAtRest(t *testing.T) {
	ctx := context.Background()
	mem := storetest.NewMemoryStore()
	s := store.NewSealedStore(mem, secret.NewSealer("k"))

	tenant := &models.Tenant{StoreID: "S1", AccessToken: "acc", RefreshToken: "ref"}
	require.NoError(t, s.UpsertTenantAuth(ctx, tenant))
	assert.Equal(t, "acc", tenant.AccessToken)

	require.NoError(t, s.UpdateTenantCredentials(ctx, "S1", "waba", "555"))

	raw, ok := mem.RawTenant("S1")
	require.True(t, ok)
	assert.True(t, secret.IsSealed(raw.AccessToken))
	assert.True(t, secret.IsSealed(raw.RefreshToken))
	assert.True(t, secret.IsSealed(raw.WabaToken))
	assert.Equal(t, "555", raw.WabaPhoneID)

	got, err := s.GetTenant(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "acc", got.AccessToken)
	assert.Equal(t, "ref", got.RefreshToken)
	assert.Equal(t, "waba", got.WabaToken)

	recent, err := s.ListRecentTenants(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "waba", recent[0].WabaToken)
}

func TestSealedStore_EmptyTokenClearsOverride(t *testing.T) {
	ctx := context.Background()
	mem := storetest.NewMemoryStore()
	s := store.NewSealedStore(mem, secret.NewSealer("k"))

	require.NoError(t, s.UpsertTenantAuth(ctx, &models.Tenant{StoreID: "S1"}))
	require.NoError(t, s.UpdateTenantCredentials(ctx, "S1", "", ""))

	raw, _ := mem.RawTenant("S1")
	assert.Empty(t, raw.WabaToken)
}

func TestSealedStore_ReadsLegacyPlaintext(t *testing.T) {
	ctx := context.Background()
	mem := storetest.NewMemoryStore()
	require.NoError(t, mem.UpsertTenantAuth(ctx, &models.Tenant{StoreID: "S1", AccessToken: "plain"}))

	got, err := store.NewSealedStore(mem, secret.NewSealer("k")).GetTenant(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "plain", got.AccessToken)
}
