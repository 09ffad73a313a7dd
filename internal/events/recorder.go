// Package events records inbound platform webhooks. Nothing is dispatched
// from a recorded event.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ferpoks/wabridge/internal/metrics"
	"github.com/ferpoks/wabridge/internal/store"
	"github.com/ferpoks/wabridge/pkg/models"
)

var ErrInvalidPayload = errors.New("webhook payload is not a JSON object")

type Recorder struct {
	store   store.Store
	metrics *metrics.Metrics
}

// NewRecorder creates a Recorder. m may be nil.
func NewRecorder(s store.Store, m *metrics.Metrics) *Recorder {
	return &Recorder{store: s, metrics: m}
}

// Record appends raw as an Event. The event type is the first non-empty of
// "event" and "type"; the store id comes from "store_id" as a string or a
// number. Missing values are recorded as "unknown".
func (r *Recorder) Record(ctx context.Context, raw []byte) (*models.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil || payload == nil {
		return nil, ErrInvalidPayload
	}

	e := &models.Event{
		StoreID:   storeIDOf(payload),
		EventType: eventTypeOf(payload),
		Payload:   append(json.RawMessage(nil), raw...),
	}
	if err := r.store.AppendEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("record event: %w", err)
	}

	if r.metrics != nil {
		r.metrics.RecordWebhookEvent(e.EventType)
	}
	slog.Info("webhook recorded", "store_id", e.StoreID, "event_type", e.EventType, "event_id", e.ID)
	return e, nil
}

func eventTypeOf(payload map[string]any) string {
	for _, field := range []string{"event", "type"} {
		if s, ok := payload[field].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return models.UnknownEventType
}

func storeIDOf(payload map[string]any) string {
	switch v := payload["store_id"].(type) {
	case string:
		if v != "" {
			return v
		}
	case json.Number:
		return v.String()
	}
	return models.UnknownStoreID
}
