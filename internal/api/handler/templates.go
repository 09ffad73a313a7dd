package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/ferpoks/wabridge/internal/api/response"
	"github.com/ferpoks/wabridge/internal/merchant"
	"github.com/ferpoks/wabridge/pkg/models"
)

type TemplateService interface {
	Resolve(ctx context.Context, sid string) (*models.Tenant, error)
	ListTemplates(ctx context.Context, storeID string) ([]*models.Template, error)
	SaveTemplates(ctx context.Context, storeID string, in []merchant.TemplateInput) error
	Preview(ctx context.Context, storeID string, key models.EventKind, vars map[string]string) (string, error)
}

// NewListTemplatesHandler returns an http.HandlerFunc for GET /api/templates.
func NewListTemplatesHandler(svc TemplateService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := svc.Resolve(r.Context(), sid(r))
		if err != nil {
			writeError(w, r, err)
			return
		}

		templates, err := svc.ListTemplates(r.Context(), tenant.StoreID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, map[string]any{"templates": templates})
	}
}

// NewSaveTemplatesHandler returns an http.HandlerFunc for POST /api/templates.
func NewSaveTemplatesHandler(svc TemplateService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := svc.Resolve(r.Context(), sid(r))
		if err != nil {
			writeError(w, r, err)
			return
		}

		var req struct {
			Templates []merchant.TemplateInput `json:"templates"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		if err := svc.SaveTemplates(r.Context(), tenant.StoreID, req.Templates); err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, response.OK)
	}
}

// NewPreviewHandler returns an http.HandlerFunc for POST /api/templates/preview.
func NewPreviewHandler(svc TemplateService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := svc.Resolve(r.Context(), sid(r))
		if err != nil {
			writeError(w, r, err)
			return
		}

		var req struct {
			TKey string            `json:"tkey"`
			Vars map[string]string `json:"vars"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.TKey) == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "tkey is required", nil)
			return
		}

		body, err := svc.Preview(r.Context(), tenant.StoreID, models.EventKind(strings.TrimSpace(req.TKey)), req.Vars)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, map[string]string{"body": body})
	}
}
