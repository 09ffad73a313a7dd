package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/ferpoks/wabridge/internal/api/response"
	"github.com/ferpoks/wabridge/internal/dispatch"
	"github.com/ferpoks/wabridge/pkg/models"
)

// Dispatcher sends WhatsApp messages on behalf of a store.
type Dispatcher interface {
	SendText(ctx context.Context, req dispatch.SendRequest) (dispatch.Result, error)
	SendTemplate(ctx context.Context, req dispatch.TemplateSendRequest) (dispatch.Result, error)
}

// NewTestSendHandler returns an http.HandlerFunc for POST /api/test-send.
// A provider failure still answers 200 with the provider's status and body.
func NewTestSendHandler(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			To   string `json:"to_msisdn"`
			Body string `json:"body"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := d.SendText(r.Context(), dispatch.SendRequest{
			StoreID: sid(r),
			To:      req.To,
			Body:    req.Body,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, res)
	}
}

// NewSendHandler returns an http.HandlerFunc for POST /api/send.
func NewSendHandler(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			To   string            `json:"to_msisdn"`
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

		res, err := d.SendTemplate(r.Context(), dispatch.TemplateSendRequest{
			StoreID: sid(r),
			To:      req.To,
			Key:     models.EventKind(strings.TrimSpace(req.TKey)),
			Vars:    req.Vars,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, res)
	}
}
