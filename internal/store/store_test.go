package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ferpoks/wabridge/internal/store"
	"github.com/ferpoks/wabridge/pkg/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("wabridge_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	// A second run must be a no-op.
	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func setupSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "wabridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// forEachEngine runs fn against SQLite always and against Postgres unless -short.
func forEachEngine(t *testing.T, fn func(t *testing.T, s store.Store)) {
	t.Run("sqlite", func(t *testing.T) {
		fn(t, setupSQLite(t))
	})
	t.Run("postgres", func(t *testing.T) {
		if testing.Short() {
			t.Skip("skipping integration test")
		}
		fn(t, store.NewPostgresStore(setupTestDB(t)))
	})
}

func onboard(t *testing.T, s store.Store, storeID string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{StoreID: storeID, StoreDomain: storeID + ".salla.sa", AccessToken: "acc-" + storeID}
	require.NoError(t, s.UpsertTenantAuth(context.Background(), tenant))
	return tenant
}

// --- Tenant Tests ---

func TestTenant_UpsertAndGet(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

		tenant := &models.Tenant{
			StoreID:        "S1",
			StoreDomain:    "shop.salla.sa",
			AccessToken:    "acc",
			RefreshToken:   "ref",
			TokenExpiresAt: &expires,
		}
		require.NoError(t, s.UpsertTenantAuth(ctx, tenant))
		assert.NotZero(t, tenant.ID)
		assert.Equal(t, models.DefaultPlan, tenant.Plan)

		got, err := s.GetTenant(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, "shop.salla.sa", got.StoreDomain)
		assert.Equal(t, "acc", got.AccessToken)
		assert.Equal(t, "ref", got.RefreshToken)
		require.NotNil(t, got.TokenExpiresAt)
		assert.True(t, expires.Equal(*got.TokenExpiresAt))
		assert.Empty(t, got.WabaToken)
	})
}

func TestTenant_GetNotFound(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.Store) {
		_, err := s.GetTenant(context.Background(), "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestTenant_ReinstallKeepsCredentials(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		first := onboard(t, s, "S1")
		require.NoError(t, s.UpdateTenantCredentials(ctx, "S1", "waba-tok", "555"))

		again := &models.Tenant{StoreID: "S1", StoreDomain: "new.salla.sa", AccessToken: "acc2"}
		require.NoError(t, s.UpsertTenantAuth(ctx, again))

		got, err := s.GetTenant(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, "new.salla.sa", got.StoreDomain)
		assert.Equal(t, "acc2", got.AccessToken)
		assert.Equal(t, "waba-tok", got.WabaToken)
		assert.Equal(t, "555", got.WabaPhoneID)
	})
}

func TestTenant_ListRecent(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()

		tenants, err := s.ListRecentTenants(ctx, 2)
		require.NoError(t, err)
		assert.Empty(t, tenants)

		onboard(t, s, "A")
		onboard(t, s, "B")
		onboard(t, s, "C")

		tenants, err = s.ListRecentTenants(ctx, 2)
		require.NoError(t, err)
		require.Len(t, tenants, 2)
		assert.Equal(t, "C", tenants[0].StoreID)
		assert.Equal(t, "B", tenants[1].StoreID)
	})
}

func TestTenant_UpdateCredentialsNotFound(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.Store) {
		err := s.UpdateTenantCredentials(context.Background(), "missing", "t", "p")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

// --- Settings Tests ---

func TestSettings_InsertIfAbsentNeverOverwrites(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()

		_, err := s.GetSettings(ctx, "S1")
		require.ErrorIs(t, err, store.ErrNotFound)

		custom := models.DefaultSettings()
		custom.Enabled[models.EventOrderPaid] = false
		custom.RateLimitMPS = 5
		require.NoError(t, s.InsertSettingsIfAbsent(ctx, "S1", custom))
		require.NoError(t, s.InsertSettingsIfAbsent(ctx, "S1", models.DefaultSettings()))

		got, err := s.GetSettings(ctx, "S1")
		require.NoError(t, err)
		assert.False(t, got.Enabled[models.EventOrderPaid])
		assert.Equal(t, 5, got.RateLimitMPS)
	})
}

func TestSettings_UpsertReplaces(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		require.NoError(t, s.InsertSettingsIfAbsent(ctx, "S1", models.DefaultSettings()))

		next := models.Settings{
			Enabled:      map[models.EventKind]bool{models.EventDelivered: false},
			RateLimitMPS: 10,
		}
		require.NoError(t, s.UpsertSettings(ctx, "S1", next))

		got, err := s.GetSettings(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, next, *got)
	})
}

// --- Template Tests ---

func TestTemplates_InsertIfAbsentAndOrder(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()

		for _, tpl := range models.DefaultTemplates() {
			tpl.StoreID = "S1"
			require.NoError(t, s.InsertTemplateIfAbsent(ctx, &tpl))
		}
		require.NoError(t, s.InsertTemplateIfAbsent(ctx, &models.Template{
			StoreID: "S1", Key: models.EventOrderCreated, DisplayName: "dup", Body: "dup",
		}))

		got, err := s.ListTemplates(ctx, "S1")
		require.NoError(t, err)
		require.Len(t, got, len(models.EventKinds))
		for i, k := range models.EventKinds {
			assert.Equal(t, k, got[i].Key)
		}
		assert.NotEqual(t, "dup", got[0].Body)

		other, err := s.ListTemplates(ctx, "S2")
		require.NoError(t, err)
		assert.Empty(t, other)
	})
}

func TestTemplates_UpdateContent(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		require.NoError(t, s.InsertTemplateIfAbsent(ctx, &models.Template{
			StoreID: "S1", Key: models.EventOrderPaid, DisplayName: "Paid", Body: "old",
		}))

		require.NoError(t, s.UpdateTemplateContent(ctx, "S1", models.EventOrderPaid, "Paid!", "new {name}"))

		got, err := s.ListTemplates(ctx, "S1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Paid!", got[0].DisplayName)
		assert.Equal(t, "new {name}", got[0].Body)

		err = s.UpdateTemplateContent(ctx, "S1", models.EventDelivered, "x", "y")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

// --- Log Tests ---

func TestEvents_AppendPreservesPayload(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.Store) {
		raw := json.RawMessage(`{"event":"order.created",  "store_id":"S1"}`)
		e := &models.Event{StoreID: "S1", EventType: "order.created", Payload: raw}

		require.NoError(t, s.AppendEvent(context.Background(), e))
		assert.NotZero(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
	})
}

func TestDeliveries_AppendAndListNewestFirst(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		payload := `{"messages":[{"id":"wamid.1"}]}`

		for _, status := range []string{"200", "401", "0"} {
			require.NoError(t, s.AppendDelivery(ctx, &models.Delivery{
				StoreID: "S1", ToMSISDN: "9665", Template: models.ManualTestTemplate, Status: status, Error: &payload,
			}))
		}
		require.NoError(t, s.AppendDelivery(ctx, &models.Delivery{
			StoreID: "S2", ToMSISDN: "9665", Template: models.ManualTestTemplate, Status: "200",
		}))

		got, err := s.ListDeliveries(ctx, "S1", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "0", got[0].Status)
		assert.Equal(t, "401", got[1].Status)
		require.NotNil(t, got[0].Error)
		assert.Equal(t, payload, *got[0].Error)

		got, err = s.ListDeliveries(ctx, "S2", 50)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Nil(t, got[0].Error)
	})
}

func TestPing(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.Store) {
		assert.NoError(t, s.Ping(context.Background()))
	})
}

func TestEngineFor(t *testing.T) {
	tests := []struct {
		url    string
		engine store.Engine
		target string
	}{
		{"postgres://u:p@localhost/db", store.EnginePostgres, "postgres://u:p@localhost/db"},
		{"postgresql://u:p@localhost/db", store.EnginePostgres, "postgresql://u:p@localhost/db"},
		{"sqlite:///var/data/app.db", store.EngineSQLite, "/var/data/app.db"},
		{"file:app.db", store.EngineSQLite, "app.db"},
	}
	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			engine, target, err := store.EngineFor(tc.url)
			require.NoError(t, err)
			assert.Equal(t, tc.engine, engine)
			assert.Equal(t, tc.target, target)
		})
	}

	_, _, err := store.EngineFor("mysql://x")
	assert.Error(t, err)
}
