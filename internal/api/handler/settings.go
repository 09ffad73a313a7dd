package handler

import (
	"context"
	"net/http"

	"github.com/ferpoks/wabridge/internal/api/response"
	"github.com/ferpoks/wabridge/internal/merchant"
	"github.com/ferpoks/wabridge/pkg/models"
)

type SettingsService interface {
	Resolve(ctx context.Context, sid string) (*models.Tenant, error)
	GetSettings(ctx context.Context, storeID string) (models.Settings, error)
	SaveSettings(ctx context.Context, storeID string, in merchant.SettingsInput) (models.Settings, error)
}

// NewGetSettingsHandler returns an http.HandlerFunc for GET /api/settings.
func NewGetSettingsHandler(svc SettingsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := svc.Resolve(r.Context(), sid(r))
		if err != nil {
			writeError(w, r, err)
			return
		}

		settings, err := svc.GetSettings(r.Context(), tenant.StoreID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, map[string]any{"settings": settings})
	}
}

// NewSaveSettingsHandler returns an http.HandlerFunc for POST /api/settings.
func NewSaveSettingsHandler(svc SettingsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := svc.Resolve(r.Context(), sid(r))
		if err != nil {
			writeError(w, r, err)
			return
		}

		var in merchant.SettingsInput
		if !decodeJSON(w, r, &in) {
			return
		}

		if _, err := svc.SaveSettings(r.Context(), tenant.StoreID, in); err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, response.OK)
	}
}
