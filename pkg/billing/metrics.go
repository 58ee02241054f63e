package billing

import "time"

// Metrics defines the interface for tracking billing provider operations.
// All methods are optional - providers should gracefully handle nil metrics.
type Metrics interface {
	// RecordWebhookEvent records a webhook event received from the billing provider.
	// eventType: The type of event (e.g., "checkout.session.completed")
	// status: "processed", "ignored", "no_account" or "error"
	RecordWebhookEvent(provider, eventType, status string)

	// RecordWebhookProcessingDuration records how long it took to process a webhook.
	RecordWebhookProcessingDuration(provider, eventType string, duration time.Duration)

	// RecordWebhookError records a webhook processing error.
	// errorType: e.g. "method_not_allowed", "not_configured", "auth_failed",
	// "invalid_payload", "identification", "storage", "callback", "payload_too_large"
	RecordWebhookError(provider, errorType string)

	// RecordEntitlementGrant records the effect of a grant triggered by a webhook.
	// outcome: "granted" or "already_granted"
	RecordEntitlementGrant(provider, outcome string)

	// RecordRateLimited records a request refused by the webhook rate limiter.
	RecordRateLimited(provider string)

	// RecordAPICall records an API call to the billing provider.
	// endpoint: The API endpoint called (e.g., "/checkout/sessions")
	// status: "success", "error" or a short reason
	RecordAPICall(provider, endpoint, status string)

	// RecordAPICallDuration records how long an API call took.
	RecordAPICallDuration(provider, endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_, _ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_, _ string)                               {}
func (n *NoopMetrics) RecordEntitlementGrant(_, _ string)                           {}
func (n *NoopMetrics) RecordRateLimited(_ string)                                   {}
func (n *NoopMetrics) RecordAPICall(_, _, _ string)                                 {}
func (n *NoopMetrics) RecordAPICallDuration(_, _ string, _ time.Duration)           {}
