package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/ferpoks/wabridge/internal/api/middleware"
	"github.com/ferpoks/wabridge/internal/api/response"
	"github.com/ferpoks/wabridge/internal/metrics"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Metrics          *metrics.Metrics
	WebhookRateLimit *mw.RateLimit
	WebhookSecret    string

	HealthHandler   http.HandlerFunc
	InstallHandler  http.HandlerFunc
	CallbackHandler http.HandlerFunc
	WebhookHandler  http.HandlerFunc

	StoreHandler           http.HandlerFunc
	GetSettingsHandler     http.HandlerFunc
	SaveSettingsHandler    http.HandlerFunc
	ListTemplatesHandler   http.HandlerFunc
	SaveTemplatesHandler   http.HandlerFunc
	PreviewHandler         http.HandlerFunc
	SaveCredentialsHandler http.HandlerFunc
	TestSendHandler        http.HandlerFunc
	SendHandler            http.HandlerFunc
	LogsHandler            http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	if deps.Metrics != nil {
		r.Use(mw.Metrics(deps.Metrics))
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Get("/health", orNotImplemented(deps.HealthHandler))

	// Platform OAuth
	r.Get("/install", orNotImplemented(deps.InstallHandler))
	r.Get("/callback", orNotImplemented(deps.CallbackHandler))

	// Platform webhooks
	r.Group(func(r chi.Router) {
		r.Use(mw.Signature(deps.WebhookSecret))
		if deps.WebhookRateLimit != nil {
			r.Use(deps.WebhookRateLimit.Limit)
		}
		r.Post("/webhook", orNotImplemented(deps.WebhookHandler))
	})

	// Dashboard API, addressed by ?sid
	r.Route("/api", func(r chi.Router) {
		r.Get("/store", orNotImplemented(deps.StoreHandler))

		r.Get("/settings", orNotImplemented(deps.GetSettingsHandler))
		r.Post("/settings", orNotImplemented(deps.SaveSettingsHandler))

		r.Get("/templates", orNotImplemented(deps.ListTemplatesHandler))
		r.Post("/templates", orNotImplemented(deps.SaveTemplatesHandler))
		r.Post("/templates/preview", orNotImplemented(deps.PreviewHandler))

		r.Post("/waba", orNotImplemented(deps.SaveCredentialsHandler))
		r.Post("/test-send", orNotImplemented(deps.TestSendHandler))
		r.Post("/send", orNotImplemented(deps.SendHandler))

		r.Get("/logs", orNotImplemented(deps.LogsHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
