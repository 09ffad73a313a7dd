package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	mw "github.com/ferpoks/wabridge/internal/api/middleware"
	"github.com/ferpoks/wabridge/internal/api/response"
	"github.com/ferpoks/wabridge/internal/dispatch"
	"github.com/ferpoks/wabridge/internal/merchant"
)

const maxBodyBytes = 1 << 20

// writeError maps domain errors onto the API error envelope. Anything
// unrecognised is logged and reported as a 500 without leaking details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, merchant.ErrTenantNotFound):
		response.Error(w, http.StatusNotFound, "STORE_NOT_FOUND",
			"Store not found. Pass ?sid=<store_id>", nil)
	case errors.Is(err, merchant.ErrTemplateNotFound):
		response.Error(w, http.StatusNotFound, "TEMPLATE_NOT_FOUND",
			"Template not found", nil)
	case errors.Is(err, dispatch.ErrCredentialsMissing):
		response.Error(w, http.StatusBadRequest, "WABA_NOT_CONFIGURED",
			"WhatsApp credentials are not configured for this store", nil)
	case errors.Is(err, merchant.ErrInvalidInput):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	default:
		slog.Error("request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", mw.GetRequestID(r),
		)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

// decodeJSON reads a JSON request body into v, writing a 400 and returning
// false when it cannot.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	return true
}

func sid(r *http.Request) string {
	return r.URL.Query().Get("sid")
}
