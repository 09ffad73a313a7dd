package models

import (
	"encoding/json"
	"time"
)

const (
	// UnknownStoreID is recorded for inbound events that carry no store identifier.
	UnknownStoreID = "unknown"
	// UnknownEventType is recorded when an inbound event names no type.
	UnknownEventType = "unknown"
	// ManualTestTemplate marks deliveries sent from the ad-hoc test form.
	ManualTestTemplate = "manual_test"
)

// Event is an immutable record of one inbound platform webhook. Payload keeps
// the raw request body exactly as received.
type Event struct {
	ID        int64           `db:"id"         json:"id"`
	StoreID   string          `db:"store_id"   json:"store_id"`
	EventType string          `db:"event_type" json:"event_type"`
	Payload   json.RawMessage `db:"payload"    json:"payload"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Delivery is an immutable record of one outbound message attempt. Status is
// the provider's HTTP status as text; Error carries the provider response
// whether or not the send succeeded.
type Delivery struct {
	ID        int64     `db:"id"         json:"id"`
	StoreID   string    `db:"store_id"   json:"store_id"`
	ToMSISDN  string    `db:"to_msisdn"  json:"to_msisdn"`
	Template  string    `db:"template"   json:"template"`
	Status    string    `db:"status"     json:"status"`
	Error     *string   `db:"error"      json:"error,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
