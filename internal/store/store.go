package store

import (
	"context"
	"errors"

	"github.com/ferpoks/wabridge/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// GetTenant returns ErrNotFound when no tenant has storeID.
	GetTenant(ctx context.Context, storeID string) (*models.Tenant, error)
	// ListRecentTenants returns at most limit tenants, most recently created first.
	ListRecentTenants(ctx context.Context, limit int) ([]*models.Tenant, error)
	// UpsertTenantAuth inserts t or, when the store already exists, replaces its
	// domain and platform tokens only. Messaging credentials and plan are kept.
	UpsertTenantAuth(ctx context.Context, t *models.Tenant) error
	UpdateTenantCredentials(ctx context.Context, storeID, token, phoneID string) error

	GetSettings(ctx context.Context, storeID string) (*models.Settings, error)
	InsertSettingsIfAbsent(ctx context.Context, storeID string, s models.Settings) error
	UpsertSettings(ctx context.Context, storeID string, s models.Settings) error

	// ListTemplates returns the store's templates ordered by ID.
	ListTemplates(ctx context.Context, storeID string) ([]*models.Template, error)
	InsertTemplateIfAbsent(ctx context.Context, t *models.Template) error
	UpdateTemplateContent(ctx context.Context, storeID string, key models.EventKind, displayName, body string) error

	AppendEvent(ctx context.Context, e *models.Event) error
	AppendDelivery(ctx context.Context, d *models.Delivery) error
	// ListDeliveries returns the newest limit deliveries for storeID.
	ListDeliveries(ctx context.Context, storeID string, limit int) ([]*models.Delivery, error)
}
