package stripe

import (
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/subtrack/pkg/billing"
	"github.com/mihaimyh/subtrack/pkg/billing/internal"
	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

const (
	providerName           = "stripe"
	defaultHTTPTimeout     = 10 * time.Second
	defaultRateLimitWindow = time.Minute
	defaultCheckoutMode    = stripe.CheckoutSessionModePayment
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config // Base config (Applier, WebhookSecret, APIKey, ...)

	// SignatureTolerance overrides DefaultSignatureTolerance.
	SignatureTolerance time.Duration

	// MaxBodyBytes overrides DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// RateLimitRequests enables per-IP limiting of the webhook route when > 0.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// TrustForwardedFor keys the rate limiter on X-Forwarded-For.
	TrustForwardedFor bool

	// CheckoutMode defaults to "payment" (one-off lifetime purchase).
	CheckoutMode stripe.CheckoutSessionMode

	// PaymentMethodTypes defaults to ["card"].
	PaymentMethodTypes []string
}

// Provider implements billing.Provider for Stripe.
type Provider struct {
	config      Config
	endpoint    *Endpoint
	rateLimiter *internal.RateLimiter
	sessions    checkoutSessionCreator
	metrics     billing.Metrics
	logger      entitlement.Logger
}

// NewProvider creates a new Stripe billing provider.
//
// Only Applier is required. Without a webhook secret every callback is
// rejected; without an API key CheckoutURL returns billing.ErrConfiguration.
func NewProvider(config Config) (*Provider, error) {
	if config.Applier == nil {
		return nil, billing.ErrConfiguration
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}
	logger := config.Logger
	if logger == nil {
		logger = &entitlement.NoopLogger{}
	}

	endpoint, err := NewEndpoint(EndpointConfig{
		Verifier:     NewSignatureVerifier(config.WebhookSecret, config.SignatureTolerance, logger),
		Applier:      config.Applier,
		Callback:     config.WebhookCallback,
		Metrics:      metrics,
		Logger:       logger,
		MaxBodyBytes: config.MaxBodyBytes,
	})
	if err != nil {
		return nil, err
	}

	p := &Provider{
		config:   config,
		endpoint: endpoint,
		metrics:  metrics,
		logger:   logger,
	}

	if config.RateLimitRequests > 0 {
		window := config.RateLimitWindow
		if window <= 0 {
			window = defaultRateLimitWindow
		}
		p.rateLimiter = internal.NewRateLimiter(config.RateLimitRequests, window)
		p.rateLimiter.TrustForwarded = config.TrustForwardedFor
		p.rateLimiter.OnLimited = func(_ *http.Request, key string) {
			metrics.RecordRateLimited(providerName)
			logger.Warn("Webhook request rate limited", entitlement.Field{Key: "client", Value: key})
		}
	}

	if apiKey := strings.TrimSpace(config.APIKey); apiKey != "" {
		httpClient := config.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: defaultHTTPTimeout}
		}
		backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{HTTPClient: httpClient})
		client := stripe.NewClient(apiKey, stripe.WithBackends(backends))
		p.sessions = client.V1CheckoutSessions
	}

	return p, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// Endpoint exposes the transport-neutral webhook processor for adapters
// (gin, echo, fiber, Lambda).
func (p *Provider) Endpoint() *Endpoint {
	return p.endpoint
}

// WebhookHandler returns the HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	var h http.Handler = p.endpoint
	if p.rateLimiter != nil {
		h = p.rateLimiter.Middleware(h)
	}
	return h
}

// CheckoutHandler returns the HTTP handler that creates checkout sessions.
func (p *Provider) CheckoutHandler() http.Handler {
	return http.HandlerFunc(p.handleCheckout)
}

var _ billing.Provider = (*Provider)(nil)
