package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ferpoks/wabridge/internal/api/response"
	"github.com/ferpoks/wabridge/pkg/models"
)

// StoreReader resolves the store addressed by ?sid.
type StoreReader interface {
	Resolve(ctx context.Context, sid string) (*models.Tenant, error)
}

// NewStoreHandler returns an http.HandlerFunc for GET /api/store.
func NewStoreHandler(svc StoreReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := svc.Resolve(r.Context(), sid(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, map[string]any{"store": tenant})
	}
}

// CredentialsSaver stores per-store WhatsApp credentials.
type CredentialsSaver interface {
	Resolve(ctx context.Context, sid string) (*models.Tenant, error)
	SaveCredentials(ctx context.Context, storeID, token, phoneID string) error
}

// NewSaveCredentialsHandler returns an http.HandlerFunc for POST /api/waba.
func NewSaveCredentialsHandler(svc CredentialsSaver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := svc.Resolve(r.Context(), sid(r))
		if err != nil {
			writeError(w, r, err)
			return
		}

		var req struct {
			Token   string `json:"waba_token"`
			PhoneID string `json:"waba_phone_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		if err := svc.SaveCredentials(r.Context(), tenant.StoreID, req.Token, req.PhoneID); err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, response.OK)
	}
}

// DeliveryLister reads the delivery log.
type DeliveryLister interface {
	Resolve(ctx context.Context, sid string) (*models.Tenant, error)
	ListDeliveries(ctx context.Context, storeID string, limit int) ([]*models.Delivery, error)
}

// NewLogsHandler returns an http.HandlerFunc for GET /api/logs. A missing or
// malformed limit falls back to the service default.
func NewLogsHandler(svc DeliveryLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := svc.Resolve(r.Context(), sid(r))
		if err != nil {
			writeError(w, r, err)
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		logs, err := svc.ListDeliveries(r.Context(), tenant.StoreID, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, map[string]any{"logs": logs})
	}
}
