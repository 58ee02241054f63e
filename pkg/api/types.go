package api

import "time"

// EntitlementResponse is the entitlement state of one account
type EntitlementResponse struct {
	AccountID         string     `json:"id"`
	HasLifetimeAccess bool       `json:"has_lifetime_access"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status string `json:"status"` // "ok" or "unavailable"
}
