package models

// EventKind is one of the order-lifecycle events a store can be notified about.
// It doubles as the template key.
type EventKind string

const (
	EventOrderCreated   EventKind = "order_created"
	EventOrderPaid      EventKind = "order_paid"
	EventOrderFulfilled EventKind = "order_fulfilled"
	EventOutForDelivery EventKind = "out_for_delivery"
	EventDelivered      EventKind = "delivered"
	EventOrderCanceled  EventKind = "order_canceled"
	EventRefundCreated  EventKind = "refund_created"
)

// EventKinds lists every supported kind in dashboard order.
var EventKinds = []EventKind{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderFulfilled,
	EventOutForDelivery,
	EventDelivered,
	EventOrderCanceled,
	EventRefundCreated,
}

// Valid reports whether k belongs to the fixed set.
func (k EventKind) Valid() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Settings holds per-store notification toggles. RateLimitMPS is stored
// for the dashboard but nothing enforces it.
type Settings struct {
	Enabled      map[EventKind]bool `json:"enabled"`
	RateLimitMPS int                `json:"rate_limit_mps"`
}

// Clone returns a deep copy so callers can mutate the enabled map freely.
func (s Settings) Clone() Settings {
	enabled := make(map[EventKind]bool, len(s.Enabled))
	for k, v := range s.Enabled {
		enabled[k] = v
	}
	return Settings{Enabled: enabled, RateLimitMPS: s.RateLimitMPS}
}
