package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ferpoks/wabridge/pkg/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteStore implements the Store interface on an embedded SQLite file
// through gorm. Queries are written by hand and run with Raw/Exec.
type SQLiteStore struct {
	db *gorm.DB
}

var _ Store = (*SQLiteStore)(nil)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS stores (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		store_id         TEXT NOT NULL UNIQUE,
		store_domain     TEXT NOT NULL DEFAULT '',
		access_token     TEXT NOT NULL DEFAULT '',
		refresh_token    TEXT NOT NULL DEFAULT '',
		token_expires_at DATETIME,
		waba_token       TEXT NOT NULL DEFAULT '',
		waba_phone_id    TEXT NOT NULL DEFAULT '',
		plan             TEXT NOT NULL DEFAULT 'basic',
		plan_until       DATETIME,
		created_at       DATETIME NOT NULL,
		updated_at       DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		store_id       TEXT PRIMARY KEY,
		enabled        TEXT NOT NULL,
		rate_limit_mps INTEGER NOT NULL DEFAULT 60,
		updated_at     DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS templates (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		store_id     TEXT NOT NULL,
		tkey         TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		body         TEXT NOT NULL DEFAULT '',
		UNIQUE (store_id, tkey)
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		store_id   TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload    TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS deliveries (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		store_id   TEXT NOT NULL,
		to_msisdn  TEXT NOT NULL,
		template   TEXT NOT NULL,
		status     TEXT NOT NULL,
		error      TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_store_id ON deliveries (store_id, id)`,
}

// OpenSQLite opens (creating if needed) the database file at path and
// ensures the schema exists.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if err := db.WithContext(ctx).Exec(pragma).Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	for _, stmt := range sqliteSchema {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("create sqlite schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Row shapes with explicit column names; the shared models carry db tags only.
type sqliteTenant struct {
	ID             int64      `gorm:"column:id"`
	StoreID        string     `gorm:"column:store_id"`
	StoreDomain    string     `gorm:"column:store_domain"`
	AccessToken    string     `gorm:"column:access_token"`
	RefreshToken   string     `gorm:"column:refresh_token"`
	TokenExpiresAt *time.Time `gorm:"column:token_expires_at"`
	WabaToken      string     `gorm:"column:waba_token"`
	WabaPhoneID    string     `gorm:"column:waba_phone_id"`
	Plan           string     `gorm:"column:plan"`
	PlanUntil      *time.Time `gorm:"column:plan_until"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (r sqliteTenant) model() *models.Tenant {
	return &models.Tenant{
		ID:             r.ID,
		StoreID:        r.StoreID,
		StoreDomain:    r.StoreDomain,
		AccessToken:    r.AccessToken,
		RefreshToken:   r.RefreshToken,
		TokenExpiresAt: r.TokenExpiresAt,
		WabaToken:      r.WabaToken,
		WabaPhoneID:    r.WabaPhoneID,
		Plan:           r.Plan,
		PlanUntil:      r.PlanUntil,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type sqliteTemplate struct {
	ID          int64  `gorm:"column:id"`
	StoreID     string `gorm:"column:store_id"`
	Key         string `gorm:"column:tkey"`
	DisplayName string `gorm:"column:display_name"`
	Body        string `gorm:"column:body"`
}

type sqliteDelivery struct {
	ID        int64     `gorm:"column:id"`
	StoreID   string    `gorm:"column:store_id"`
	ToMSISDN  string    `gorm:"column:to_msisdn"`
	Template  string    `gorm:"column:template"`
	Status    string    `gorm:"column:status"`
	Error     *string   `gorm:"column:error"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

const sqliteTenantColumns = `id, store_id, store_domain, access_token, refresh_token, token_expires_at,
	waba_token, waba_phone_id, plan, plan_until, created_at, updated_at`

// --- Tenants ---

func (s *SQLiteStore) GetTenant(ctx context.Context, storeID string) (*models.Tenant, error) {
	var row sqliteTenant
	res := s.db.WithContext(ctx).Raw(
		`SELECT `+sqliteTenantColumns+` FROM stores WHERE store_id = ?`, storeID,
	).Scan(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("get tenant: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return row.model(), nil
}

func (s *SQLiteStore) ListRecentTenants(ctx context.Context, limit int) ([]*models.Tenant, error) {
	var rows []sqliteTenant
	err := s.db.WithContext(ctx).Raw(
		`SELECT `+sqliteTenantColumns+` FROM stores ORDER BY id DESC LIMIT ?`, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list recent tenants: %w", err)
	}

	out := make([]*models.Tenant, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *SQLiteStore) UpsertTenantAuth(ctx context.Context, t *models.Tenant) error {
	plan := t.Plan
	if plan == "" {
		plan = models.DefaultPlan
	}
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO stores (store_id, store_domain, access_token, refresh_token, token_expires_at,
		                     waba_token, waba_phone_id, plan, plan_until, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (store_id) DO UPDATE SET
		   store_domain = excluded.store_domain,
		   access_token = excluded.access_token,
		   refresh_token = excluded.refresh_token,
		   token_expires_at = excluded.token_expires_at,
		   updated_at = excluded.updated_at`,
		t.StoreID, t.StoreDomain, t.AccessToken, t.RefreshToken, t.TokenExpiresAt,
		t.WabaToken, t.WabaPhoneID, plan, t.PlanUntil, now, now,
	).Error
	if isSQLiteUniqueError(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("upsert tenant auth: %w", err)
	}

	stored, err := s.GetTenant(ctx, t.StoreID)
	if err != nil {
		return err
	}
	*t = *stored
	return nil
}

func (s *SQLiteStore) UpdateTenantCredentials(ctx context.Context, storeID, token, phoneID string) error {
	res := s.db.WithContext(ctx).Exec(
		`UPDATE stores SET waba_token = ?, waba_phone_id = ?, updated_at = ? WHERE store_id = ?`,
		token, phoneID, time.Now().UTC(), storeID)
	if res.Error != nil {
		return fmt.Errorf("update tenant credentials: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Settings ---

func (s *SQLiteStore) GetSettings(ctx context.Context, storeID string) (*models.Settings, error) {
	var row struct {
		Enabled      string `gorm:"column:enabled"`
		RateLimitMPS int    `gorm:"column:rate_limit_mps"`
	}
	res := s.db.WithContext(ctx).Raw(
		`SELECT enabled, rate_limit_mps FROM settings WHERE store_id = ?`, storeID,
	).Scan(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("get settings: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	out := models.Settings{RateLimitMPS: row.RateLimitMPS}
	if err := json.Unmarshal([]byte(row.Enabled), &out.Enabled); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &out, nil
}

func (s *SQLiteStore) InsertSettingsIfAbsent(ctx context.Context, storeID string, st models.Settings) error {
	raw, err := json.Marshal(st.Enabled)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	err = s.db.WithContext(ctx).Exec(
		`INSERT INTO settings (store_id, enabled, rate_limit_mps, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (store_id) DO NOTHING`,
		storeID, string(raw), st.RateLimitMPS, time.Now().UTC(),
	).Error
	if err != nil {
		return fmt.Errorf("insert settings: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertSettings(ctx context.Context, storeID string, st models.Settings) error {
	raw, err := json.Marshal(st.Enabled)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	err = s.db.WithContext(ctx).Exec(
		`INSERT INTO settings (store_id, enabled, rate_limit_mps, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (store_id) DO UPDATE SET
		   enabled = excluded.enabled,
		   rate_limit_mps = excluded.rate_limit_mps,
		   updated_at = excluded.updated_at`,
		storeID, string(raw), st.RateLimitMPS, time.Now().UTC(),
	).Error
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// --- Templates ---

func (s *SQLiteStore) ListTemplates(ctx context.Context, storeID string) ([]*models.Template, error) {
	var rows []sqliteTemplate
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, store_id, tkey, display_name, body FROM templates WHERE store_id = ? ORDER BY id`, storeID,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	out := make([]*models.Template, 0, len(rows))
	for _, r := range rows {
		out = append(out, &models.Template{
			ID:          r.ID,
			StoreID:     r.StoreID,
			Key:         models.EventKind(r.Key),
			DisplayName: r.DisplayName,
			Body:        r.Body,
		})
	}
	return out, nil
}

func (s *SQLiteStore) InsertTemplateIfAbsent(ctx context.Context, t *models.Template) error {
	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO templates (store_id, tkey, display_name, body) VALUES (?, ?, ?, ?)
		 ON CONFLICT (store_id, tkey) DO NOTHING`,
		t.StoreID, string(t.Key), t.DisplayName, t.Body,
	).Error
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateTemplateContent(ctx context.Context, storeID string, key models.EventKind, displayName, body string) error {
	res := s.db.WithContext(ctx).Exec(
		`UPDATE templates SET display_name = ?, body = ? WHERE store_id = ? AND tkey = ?`,
		displayName, body, storeID, string(key))
	if res.Error != nil {
		return fmt.Errorf("update template: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Logs ---

func (s *SQLiteStore) AppendEvent(ctx context.Context, e *models.Event) error {
	now := time.Now().UTC()
	var id int64
	err := s.db.WithContext(ctx).Raw(
		`INSERT INTO events (store_id, event_type, payload, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		e.StoreID, e.EventType, string(e.Payload), now,
	).Scan(&id).Error
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	e.ID, e.CreatedAt = id, now
	return nil
}

func (s *SQLiteStore) AppendDelivery(ctx context.Context, d *models.Delivery) error {
	now := time.Now().UTC()
	var id int64
	err := s.db.WithContext(ctx).Raw(
		`INSERT INTO deliveries (store_id, to_msisdn, template, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		d.StoreID, d.ToMSISDN, d.Template, d.Status, d.Error, now,
	).Scan(&id).Error
	if err != nil {
		return fmt.Errorf("append delivery: %w", err)
	}
	d.ID, d.CreatedAt = id, now
	return nil
}

func (s *SQLiteStore) ListDeliveries(ctx context.Context, storeID string, limit int) ([]*models.Delivery, error) {
	var rows []sqliteDelivery
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, store_id, to_msisdn, template, status, error, created_at
		 FROM deliveries WHERE store_id = ? ORDER BY id DESC LIMIT ?`, storeID, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}

	out := make([]*models.Delivery, 0, len(rows))
	for _, r := range rows {
		out = append(out, &models.Delivery{
			ID:        r.ID,
			StoreID:   r.StoreID,
			ToMSISDN:  r.ToMSISDN,
			Template:  r.Template,
			Status:    r.Status,
			Error:     r.Error,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func isSQLiteUniqueError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
