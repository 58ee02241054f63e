package billing

import (
	"context"
	"net/http"

	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

// EntitlementApplier applies a decoded payment event to account state.
// *entitlement.Applier satisfies it; tests substitute fakes.
type EntitlementApplier interface {
	Apply(ctx context.Context, event *entitlement.PaymentEvent) (*entitlement.GrantResult, error)
}

// Config defines the standard configuration all providers should accept
type Config struct {
	// Applier receives every actionable payment event. Required.
	Applier EntitlementApplier

	// WebhookSecret is used to verify incoming webhook requests.
	// A provider without one still starts, but answers every callback with
	// a configuration error so a missing deploy secret is loud.
	WebhookSecret string

	// APIKey is used for outbound API calls to the billing provider (e.g. checkout).
	// Optional; operations that need it return ErrConfiguration when it is empty.
	APIKey string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with 10s timeout will be used.
	HTTPClient *http.Client

	// Metrics is an optional metrics collector for tracking billing provider operations.
	// If nil, metrics will be silently ignored (no-op).
	// Use billing/metrics/prometheus.NewMetrics(reg, namespace) for Prometheus metrics.
	Metrics Metrics

	// Logger is optional; defaults to entitlement.NoopLogger.
	Logger entitlement.Logger

	// WebhookCallback is invoked after an event granted access.
	// A returned error turns the response into a 500 so the provider redelivers.
	WebhookCallback WebhookCallback
}
