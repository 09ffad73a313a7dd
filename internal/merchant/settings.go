package merchant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ferpoks/wabridge/internal/store"
	"github.com/ferpoks/wabridge/pkg/models"
)

// SettingsInput is a settings write as submitted by the dashboard. RateLimit
// accepts a JSON number or a numeric string.
type SettingsInput struct {
	Enabled   map[string]bool `json:"enabled"`
	RateLimit any             `json:"rate_limit_mps"`
}

// GetSettings returns the stored settings, or the defaults when the store has
// none yet. The fallback is not written back.
func (s *Service) GetSettings(ctx context.Context, storeID string) (models.Settings, error) {
	st, err := s.store.GetSettings(ctx, storeID)
	if errors.Is(err, store.ErrNotFound) {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return models.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return *st, nil
}

// SaveSettings replaces the stored settings. An empty enabled map restores
// every toggle to its default; otherwise submitted kinds overlay the current
// values and unknown kinds are ignored.
func (s *Service) SaveSettings(ctx context.Context, storeID string, in SettingsInput) (models.Settings, error) {
	rate, err := coerceRateLimit(in.RateLimit)
	if err != nil {
		return models.Settings{}, err
	}

	var next models.Settings
	if len(in.Enabled) == 0 {
		next = models.DefaultSettings()
	} else {
		current, err := s.GetSettings(ctx, storeID)
		if err != nil {
			return models.Settings{}, err
		}
		next = current.Clone()
		for _, k := range models.EventKinds {
			if _, ok := next.Enabled[k]; !ok {
				next.Enabled[k] = true
			}
		}
		for name, on := range in.Enabled {
			if k := models.EventKind(name); k.Valid() {
				next.Enabled[k] = on
			}
		}
	}
	next.RateLimitMPS = rate

	if err := s.store.UpsertSettings(ctx, storeID, next); err != nil {
		return models.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return next, nil
}

func coerceRateLimit(v any) (int, error) {
	var n int
	switch x := v.(type) {
	case nil:
		return models.DefaultRateLimitMPS, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("%w: rate_limit_mps must be a number", ErrInvalidInput)
		}
		n = int(x)
	case int:
		n = x
	case json.Number:
		i, err := strconv.Atoi(x.String())
		if err != nil {
			f, ferr := x.Float64()
			if ferr != nil {
				return 0, fmt.Errorf("%w: rate_limit_mps must be a number", ErrInvalidInput)
			}
			i = int(f)
		}
		n = i
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return models.DefaultRateLimitMPS, nil
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%w: rate_limit_mps must be a number, got %q", ErrInvalidInput, x)
		}
		n = i
	default:
		return 0, fmt.Errorf("%w: rate_limit_mps must be a number", ErrInvalidInput)
	}

	if n == 0 {
		return models.DefaultRateLimitMPS, nil
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: rate_limit_mps must be positive", ErrInvalidInput)
	}
	return n, nil
}
