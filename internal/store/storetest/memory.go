// Package storetest provides an in-memory store.Store for tests of the
// layers above storage.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ferpoks/wabridge/internal/store"
	"github.com/ferpoks/wabridge/pkg/models"
)

// MemoryStore is a goroutine-safe store.Store backed by maps. IDs are
// assigned from per-table counters so ordering matches the SQL engines.
type MemoryStore struct {
	mu         sync.Mutex
	nextID     int64
	tenants    map[string]*models.Tenant
	settings   map[string]models.Settings
	templates  []*models.Template
	events     []*models.Event
	deliveries []*models.Delivery

	// PingErr, when set, is returned from Ping.
	PingErr error
}

var _ store.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:  make(map[string]*models.Tenant),
		settings: make(map[string]models.Settings),
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) Ping(_ context.Context) error {
	return m.PingErr
}

func (m *MemoryStore) GetTenant(_ context.Context, storeID string) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[storeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) ListRecentTenants(_ context.Context, limit int) ([]*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]*models.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		cp := *t
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryStore) UpsertTenantAuth(_ context.Context, t *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := m.tenants[t.StoreID]; ok {
		existing.StoreDomain = t.StoreDomain
		existing.AccessToken = t.AccessToken
		existing.RefreshToken = t.RefreshToken
		existing.TokenExpiresAt = t.TokenExpiresAt
		existing.UpdatedAt = now
		*t = *existing
		return nil
	}

	cp := *t
	cp.ID = m.id()
	if cp.Plan == "" {
		cp.Plan = models.DefaultPlan
	}
	cp.CreatedAt, cp.UpdatedAt = now, now
	m.tenants[t.StoreID] = &cp
	*t = cp
	return nil
}

func (m *MemoryStore) UpdateTenantCredentials(_ context.Context, storeID, token, phoneID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[storeID]
	if !ok {
		return store.ErrNotFound
	}
	t.WabaToken, t.WabaPhoneID = token, phoneID
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) GetSettings(_ context.Context, storeID string) (*models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.settings[storeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := s.Clone()
	return &cp, nil
}

func (m *MemoryStore) InsertSettingsIfAbsent(_ context.Context, storeID string, s models.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.settings[storeID]; !ok {
		m.settings[storeID] = s.Clone()
	}
	return nil
}

func (m *MemoryStore) UpsertSettings(_ context.Context, storeID string, s models.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings[storeID] = s.Clone()
	return nil
}

func (m *MemoryStore) ListTemplates(_ context.Context, storeID string) ([]*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Template
	for _, t := range m.templates {
		if t.StoreID == storeID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) InsertTemplateIfAbsent(_ context.Context, t *models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.templates {
		if existing.StoreID == t.StoreID && existing.Key == t.Key {
			return nil
		}
	}
	cp := *t
	cp.ID = m.id()
	m.templates = append(m.templates, &cp)
	return nil
}

func (m *MemoryStore) UpdateTemplateContent(_ context.Context, storeID string, key models.EventKind, displayName, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.templates {
		if t.StoreID == storeID && t.Key == key {
			t.DisplayName, t.Body = displayName, body
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *MemoryStore) AppendEvent(_ context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.ID = m.id()
	e.CreatedAt = time.Now().UTC()
	cp := *e
	cp.Payload = append([]byte(nil), e.Payload...)
	m.events = append(m.events, &cp)
	return nil
}

func (m *MemoryStore) AppendDelivery(_ context.Context, d *models.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d.ID = m.id()
	d.CreatedAt = time.Now().UTC()
	cp := *d
	m.deliveries = append(m.deliveries, &cp)
	return nil
}

func (m *MemoryStore) ListDeliveries(_ context.Context, storeID string, limit int) ([]*models.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Delivery
	for i := len(m.deliveries) - 1; i >= 0 && len(out) < limit; i-- {
		if d := m.deliveries[i]; d.StoreID == storeID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Events returns a copy of every recorded event in insertion order.
func (m *MemoryStore) Events() []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Event, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, *e)
	}
	return out
}

// Deliveries returns a copy of every recorded delivery in insertion order.
func (m *MemoryStore) Deliveries() []models.Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Delivery, 0, len(m.deliveries))
	for _, d := range m.deliveries {
		out = append(out, *d)
	}
	return out
}

// RawTenant returns the stored row without copying through any decorator.
func (m *MemoryStore) RawTenant(storeID string) (models.Tenant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[storeID]
	if !ok {
		return models.Tenant{}, false
	}
	return *t, true
}
