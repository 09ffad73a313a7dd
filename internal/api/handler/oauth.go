package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	mw "github.com/ferpoks/wabridge/internal/api/middleware"
	"github.com/ferpoks/wabridge/internal/api/response"
	"github.com/ferpoks/wabridge/internal/merchant"
	"github.com/ferpoks/wabridge/internal/salla"
	"github.com/ferpoks/wabridge/pkg/models"
)

// OAuthStateTTL bounds how long a merchant has to finish an install.
const OAuthStateTTL = 10 * time.Minute

// Installer is the platform side of the OAuth handshake.
type Installer interface {
	AuthCodeURL(state string) string
	Authorize(ctx context.Context, code string) (*salla.Authorization, error)
}

// StateStore remembers issued OAuth states until they are used once.
type StateStore interface {
	PutOAuthState(ctx context.Context, state string, ttl time.Duration) error
	TakeOAuthState(ctx context.Context, state string) (bool, error)
}

type Onboarder interface {
	Onboard(ctx context.Context, in merchant.OnboardInput) (*models.Tenant, error)
}

// NewInstallHandler returns an http.HandlerFunc for GET /install.
func NewInstallHandler(inst Installer, states StateStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := uuid.NewString()
		if err := states.PutOAuthState(r.Context(), state, OAuthStateTTL); err != nil {
			writeError(w, r, err)
			return
		}
		http.Redirect(w, r, inst.AuthCodeURL(state), http.StatusFound)
	}
}

// NewCallbackHandler returns an http.HandlerFunc for GET /callback. On
// success the merchant lands on their dashboard.
func NewCallbackHandler(inst Installer, states StateStore, svc Onboarder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		state := r.URL.Query().Get("state")
		if code == "" || state == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Missing code or state", nil)
			return
		}

		ok, err := states.TakeOAuthState(r.Context(), state)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_STATE", "Unknown or expired install state", nil)
			return
		}

		auth, err := inst.Authorize(r.Context(), code)
		if err != nil {
			if errors.Is(err, salla.ErrExchange) || errors.Is(err, salla.ErrStoreInfo) {
				slog.Warn("oauth authorize failed", "error", err, "request_id", mw.GetRequestID(r))
				response.Error(w, http.StatusBadGateway, "OAUTH_FAILED",
					"Could not complete authorization with the platform", nil)
				return
			}
			writeError(w, r, err)
			return
		}

		tenant, err := svc.Onboard(r.Context(), merchant.OnboardInput{
			StoreID:      auth.StoreID,
			StoreDomain:  auth.StoreDomain,
			AccessToken:  auth.AccessToken,
			RefreshToken: auth.RefreshToken,
			ExpiresIn:    auth.ExpiresIn,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		http.Redirect(w, r, "/dashboard?sid="+url.QueryEscape(tenant.StoreID), http.StatusFound)
	}
}
