package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/ferpoks/wabridge/internal/api/response"
	"github.com/ferpoks/wabridge/internal/events"
	"github.com/ferpoks/wabridge/pkg/models"
)

type EventRecorder interface {
	Record(ctx context.Context, raw []byte) (*models.Event, error)
}

// NewWebhookHandler returns an http.HandlerFunc for POST /webhook. The
// signature has already been checked by middleware.
func NewWebhookHandler(rec EventRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read request body", nil)
			return
		}

		if _, err := rec.Record(r.Context(), raw); err != nil {
			if errors.Is(err, events.ErrInvalidPayload) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Webhook body must be a JSON object", nil)
				return
			}
			writeError(w, r, err)
			return
		}
		response.JSON(w, response.OK)
	}
}
