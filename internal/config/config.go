package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the wabridge server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Salla    SallaConfig
	WhatsApp WhatsAppConfig
	Secrets  SecretsConfig
}

type ServerConfig struct {
	Port     int
	Env      string
	AppURL   string
	LogLevel string
	// WebhookRequestsPerMin caps inbound webhook calls per remote address.
	WebhookRequestsPerMin int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

type SallaConfig struct {
	ClientID      string
	ClientSecret  string
	AuthURL       string
	TokenURL      string
	UserInfoURL   string
	WebhookSecret string
	Timeout       time.Duration
}

// WhatsAppConfig carries the process-wide Cloud API defaults. Stores may
// override Token and PhoneID with their own credentials.
type WhatsAppConfig struct {
	Token   string
	PhoneID string
	APIBase string
	Timeout time.Duration
}

type SecretsConfig struct {
	// Key seals stored tokens at rest when non-empty.
	Key string
}

var validEnvs = map[string]bool{
	"development": true,
	"staging":     true,
	"production":  true,
}

// Load reads configuration from an optional .env file and the environment and
// returns a validated Config. Values already present in the environment win
// over the .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:                  envInt("PORT", 8080),
			Env:                   envString("APP_ENV", "development"),
			AppURL:                strings.TrimRight(envString("APP_URL", "http://localhost:8080"), "/"),
			LogLevel:              envString("LOG_LEVEL", "info"),
			WebhookRequestsPerMin: envInt("WEBHOOK_REQUESTS_PER_MIN", 600),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Salla: SallaConfig{
			ClientID:      os.Getenv("SALLA_CLIENT_ID"),
			ClientSecret:  os.Getenv("SALLA_CLIENT_SECRET"),
			AuthURL:       envString("SALLA_AUTH_URL", "https://accounts.salla.sa/oauth2/authorize"),
			TokenURL:      envString("SALLA_TOKEN_URL", "https://accounts.salla.sa/oauth2/token"),
			UserInfoURL:   envString("SALLA_USERINFO_URL", "https://accounts.salla.sa/oauth2/user/info"),
			WebhookSecret: envString("SALLA_WEBHOOK_SECRET", "change-me"),
			Timeout:       envDurationSecs("SALLA_TIMEOUT", 45*time.Second),
		},
		WhatsApp: WhatsAppConfig{
			Token:   os.Getenv("WABA_TOKEN"),
			PhoneID: os.Getenv("WABA_PHONE_ID"),
			APIBase: strings.TrimRight(envString("WABA_API_BASE", "https://graph.facebook.com/v20.0"), "/"),
			Timeout: envDurationSecs("WABA_TIMEOUT", 45*time.Second),
		},
		Secrets: SecretsConfig{
			Key: os.Getenv("SECRETS_KEY"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validEnvs[c.Server.Env] {
		return fmt.Errorf("APP_ENV must be one of development, staging, production; got %q", c.Server.Env)
	}

	urls := map[string]string{
		"APP_URL":            c.Server.AppURL,
		"SALLA_AUTH_URL":     c.Salla.AuthURL,
		"SALLA_TOKEN_URL":    c.Salla.TokenURL,
		"SALLA_USERINFO_URL": c.Salla.UserInfoURL,
		"WABA_API_BASE":      c.WhatsApp.APIBase,
	}
	for name, u := range urls {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("%s must start with http:// or https://, got %q", name, u)
		}
	}

	if c.Server.Env == "production" && c.Salla.WebhookSecret == "change-me" {
		return fmt.Errorf("SALLA_WEBHOOK_SECRET must be changed from its default in production")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
