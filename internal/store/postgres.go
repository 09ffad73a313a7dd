package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ferpoks/wabridge/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Tenants ---

const tenantColumns = `id, store_id, store_domain, access_token, refresh_token, token_expires_at,
	waba_token, waba_phone_id, plan, plan_until, created_at, updated_at`

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(&t.ID, &t.StoreID, &t.StoreDomain, &t.AccessToken, &t.RefreshToken, &t.TokenExpiresAt,
		&t.WabaToken, &t.WabaPhoneID, &t.Plan, &t.PlanUntil, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, storeID string) (*models.Tenant, error) {
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM stores WHERE store_id = $1`, storeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListRecentTenants(ctx context.Context, limit int) ([]*models.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM stores ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *PostgresStore) UpsertTenantAuth(ctx context.Context, t *models.Tenant) error {
	plan := t.Plan
	if plan == "" {
		plan = models.DefaultPlan
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO stores (store_id, store_domain, access_token, refresh_token, token_expires_at,
		                     waba_token, waba_phone_id, plan, plan_until)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (store_id) DO UPDATE SET
		   store_domain = EXCLUDED.store_domain,
		   access_token = EXCLUDED.access_token,
		   refresh_token = EXCLUDED.refresh_token,
		   token_expires_at = EXCLUDED.token_expires_at,
		   updated_at = NOW()
		 RETURNING id, waba_token, waba_phone_id, plan, plan_until, created_at, updated_at`,
		t.StoreID, t.StoreDomain, t.AccessToken, t.RefreshToken, t.TokenExpiresAt,
		t.WabaToken, t.WabaPhoneID, plan, t.PlanUntil,
	).Scan(&t.ID, &t.WabaToken, &t.WabaPhoneID, &t.Plan, &t.PlanUntil, &t.CreatedAt, &t.UpdatedAt)
	if isDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("upsert tenant auth: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTenantCredentials(ctx context.Context, storeID, token, phoneID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE stores SET waba_token = $2, waba_phone_id = $3, updated_at = NOW() WHERE store_id = $1`,
		storeID, token, phoneID)
	if err != nil {
		return fmt.Errorf("update tenant credentials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Settings ---

func (s *PostgresStore) GetSettings(ctx context.Context, storeID string) (*models.Settings, error) {
	var raw []byte
	var out models.Settings
	err := s.pool.QueryRow(ctx,
		`SELECT enabled, rate_limit_mps FROM settings WHERE store_id = $1`, storeID,
	).Scan(&raw, &out.RateLimitMPS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	if err := json.Unmarshal(raw, &out.Enabled); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &out, nil
}

func (s *PostgresStore) InsertSettingsIfAbsent(ctx context.Context, storeID string, st models.Settings) error {
	raw, err := json.Marshal(st.Enabled)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO settings (store_id, enabled, rate_limit_mps) VALUES ($1, $2, $3)
		 ON CONFLICT (store_id) DO NOTHING`,
		storeID, raw, st.RateLimitMPS)
	if err != nil {
		return fmt.Errorf("insert settings: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertSettings(ctx context.Context, storeID string, st models.Settings) error {
	raw, err := json.Marshal(st.Enabled)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO settings (store_id, enabled, rate_limit_mps) VALUES ($1, $2, $3)
		 ON CONFLICT (store_id) DO UPDATE SET
		   enabled = EXCLUDED.enabled,
		   rate_limit_mps = EXCLUDED.rate_limit_mps,
		   updated_at = NOW()`,
		storeID, raw, st.RateLimitMPS)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// --- Templates ---

func (s *PostgresStore) ListTemplates(ctx context.Context, storeID string) ([]*models.Template, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, store_id, tkey, display_name, body FROM templates WHERE store_id = $1 ORDER BY id`, storeID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*models.Template
	for rows.Next() {
		var t models.Template
		if err := rows.Scan(&t.ID, &t.StoreID, &t.Key, &t.DisplayName, &t.Body); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertTemplateIfAbsent(ctx context.Context, t *models.Template) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO templates (store_id, tkey, display_name, body) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (store_id, tkey) DO NOTHING`,
		t.StoreID, t.Key, t.DisplayName, t.Body)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTemplateContent(ctx context.Context, storeID string, key models.EventKind, displayName, body string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE templates SET display_name = $3, body = $4 WHERE store_id = $1 AND tkey = $2`,
		storeID, key, displayName, body)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Logs ---

func (s *PostgresStore) AppendEvent(ctx context.Context, e *models.Event) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO events (store_id, event_type, payload) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		e.StoreID, e.EventType, string(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendDelivery(ctx context.Context, d *models.Delivery) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO deliveries (store_id, to_msisdn, template, status, error) VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		d.StoreID, d.ToMSISDN, d.Template, d.Status, d.Error,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("append delivery: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDeliveries(ctx context.Context, storeID string, limit int) ([]*models.Delivery, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, store_id, to_msisdn, template, status, error, created_at
		 FROM deliveries WHERE store_id = $1 ORDER BY id DESC LIMIT $2`, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []*models.Delivery
	for rows.Next() {
		var d models.Delivery
		if err := rows.Scan(&d.ID, &d.StoreID, &d.ToMSISDN, &d.Template, &d.Status, &d.Error, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
