// Package main is the entrypoint for the wabridge API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ferpoks/wabridge/internal/api"
	"github.com/ferpoks/wabridge/internal/api/handler"
	mw "github.com/ferpoks/wabridge/internal/api/middleware"
	"github.com/ferpoks/wabridge/internal/api/response"
	"github.com/ferpoks/wabridge/internal/cache"
	"github.com/ferpoks/wabridge/internal/config"
	"github.com/ferpoks/wabridge/internal/dispatch"
	"github.com/ferpoks/wabridge/internal/events"
	"github.com/ferpoks/wabridge/internal/merchant"
	"github.com/ferpoks/wabridge/internal/metrics"
	"github.com/ferpoks/wabridge/internal/salla"
	"github.com/ferpoks/wabridge/internal/secret"
	"github.com/ferpoks/wabridge/internal/store"
	"github.com/ferpoks/wabridge/internal/whatsapp"
)

const shutdownTimeout = 30 * time.Second

var logLevel = new(slog.LevelVar)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logLevel.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		slog.Warn("unknown LOG_LEVEL, using info", "value", cfg.Server.LogLevel)
		logLevel.Set(slog.LevelInfo)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "app_url", cfg.Server.AppURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open storage and apply its schema
	db, closeDB, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer closeDB()
	slog.Info("database ready")

	var st store.Store = db
	if cfg.Secrets.Key != "" {
		st = store.NewSealedStore(db, secret.NewSealer(cfg.Secrets.Key))
		slog.Info("token sealing enabled")
	} else if cfg.Server.Env == "production" {
		slog.Warn("SECRETS_KEY not set, tokens are stored in plaintext")
	}

	// 3. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 4. Domain services
	m := metrics.New()
	merchants := merchant.NewService(st)
	pipeline := dispatch.NewPipeline(
		merchants,
		st,
		whatsapp.NewHTTPClient(cfg.WhatsApp.APIBase, cfg.WhatsApp.Timeout),
		whatsapp.Credentials{Token: cfg.WhatsApp.Token, PhoneID: cfg.WhatsApp.PhoneID},
		m,
	)
	recorder := events.NewRecorder(st, m)
	platform := salla.NewClient(cfg.Salla, cfg.Server.AppURL)

	// 5. Build router with dependencies
	deps := api.Dependencies{
		Metrics:          m,
		WebhookRateLimit: mw.NewRateLimit(redisCache, cfg.Server.WebhookRequestsPerMin),
		WebhookSecret:    cfg.Salla.WebhookSecret,

		HealthHandler:   healthHandler(st, redisCache),
		InstallHandler:  handler.NewInstallHandler(platform, redisCache),
		CallbackHandler: handler.NewCallbackHandler(platform, redisCache, merchants),
		WebhookHandler:  handler.NewWebhookHandler(recorder),

		StoreHandler:           handler.NewStoreHandler(merchants),
		GetSettingsHandler:     handler.NewGetSettingsHandler(merchants),
		SaveSettingsHandler:    handler.NewSaveSettingsHandler(merchants),
		ListTemplatesHandler:   handler.NewListTemplatesHandler(merchants),
		SaveTemplatesHandler:   handler.NewSaveTemplatesHandler(merchants),
		PreviewHandler:         handler.NewPreviewHandler(merchants),
		SaveCredentialsHandler: handler.NewSaveCredentialsHandler(merchants),
		TestSendHandler:        handler.NewTestSendHandler(pipeline),
		SendHandler:            handler.NewSendHandler(pipeline),
		LogsHandler:            handler.NewLogsHandler(merchants),
	}

	router := api.NewRouter(deps)

	// 6. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Sends wait on the provider for up to WABA_TIMEOUT.
		WriteTimeout: cfg.WhatsApp.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			slog.Warn("database ping failed", "error", err)
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			slog.Warn("cache ping failed", "error", err)
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"ok": true,
			"ts": time.Now().Unix(),
		})
	}
}
