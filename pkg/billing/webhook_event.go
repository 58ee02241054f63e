package billing

import (
	"context"
	"time"
)

// WebhookEvent describes a webhook that granted lifetime access.
// It is passed to the WebhookCallback after the grant has been stored.
type WebhookEvent struct {
	// Provider is the billing provider name ("stripe")
	Provider string

	// EventID and EventType are the provider's identifiers for the event
	EventID   string
	EventType string

	// SessionID is the checkout session that completed
	SessionID string

	// MatchedBy is "id" when the client reference was used, "email" otherwise
	MatchedBy string

	// AccountIDs lists every account the grant matched
	AccountIDs []string

	// NewlyGranted is zero for a repeated delivery
	NewlyGranted int

	// EventTimestamp is when the event occurred (from provider)
	EventTimestamp time.Time
}

// WebhookCallback is invoked after a successful grant.
type WebhookCallback func(ctx context.Context, event WebhookEvent) error
