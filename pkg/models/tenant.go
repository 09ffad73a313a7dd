// Package models contains shared data models used across the wabridge codebase.
package models

import "time"

// DefaultPlan is the subscription tag a tenant gets on first onboarding.
const DefaultPlan = "basic"

// Tenant is one merchant store. Every other entity references it by StoreID.
// Messaging credentials are optional store-level overrides of the process-wide defaults.
type Tenant struct {
	ID             int64      `db:"id"               json:"id"`
	StoreID        string     `db:"store_id"         json:"store_id"`
	StoreDomain    string     `db:"store_domain"     json:"store_domain"`
	AccessToken    string     `db:"access_token"     json:"-"`
	RefreshToken   string     `db:"refresh_token"    json:"-"`
	TokenExpiresAt *time.Time `db:"token_expires_at" json:"token_expires_at,omitempty"`
	WabaToken      string     `db:"waba_token"       json:"waba_token"`
	WabaPhoneID    string     `db:"waba_phone_id"    json:"waba_phone_id"`
	Plan           string     `db:"plan"             json:"plan"`
	PlanUntil      *time.Time `db:"plan_until"       json:"plan_until,omitempty"`
	CreatedAt      time.Time  `db:"created_at"       json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"       json:"updated_at"`
}
