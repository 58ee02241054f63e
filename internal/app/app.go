// Package app assembles the subtrack HTTP service from its configuration.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/mihaimyh/subtrack/internal/config"
	"github.com/mihaimyh/subtrack/pkg/billing"
	billingprom "github.com/mihaimyh/subtrack/pkg/billing/metrics/prometheus"
	sqsnotify "github.com/mihaimyh/subtrack/pkg/billing/notify/sqs"
	"github.com/mihaimyh/subtrack/pkg/billing/stripe"
	"github.com/mihaimyh/subtrack/pkg/entitlement"
	zerologadapter "github.com/mihaimyh/subtrack/pkg/entitlement/logger/zerolog"
	entitlementprom "github.com/mihaimyh/subtrack/pkg/entitlement/metrics/prometheus"
)

// App holds the wired service.
type App struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    entitlement.Store
	applier  *entitlement.Applier
	provider *stripe.Provider
	registry *prometheus.Registry
	handler  http.Handler

	closeStore func() error
}

// Options overrides collaborators New would otherwise build from the
// configuration. Tests use it to inject an in-memory store.
type Options struct {
	Store entitlement.Store

	// Callback replaces the SQS grant publisher.
	Callback billing.WebhookCallback
}

// New opens the configured store and builds the HTTP handler.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (*App, error) {
	a := &App{
		cfg:        cfg,
		log:        log,
		closeStore: func() error { return nil },
	}

	var (
		entMetrics     entitlement.Metrics = &entitlement.NoopMetrics{}
		billingMetrics billing.Metrics     = &billing.NoopMetrics{}
	)
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		entMetrics = entitlementprom.NewMetrics(a.registry, cfg.Metrics.Namespace)
		billingMetrics = billingprom.NewMetrics(a.registry, cfg.Metrics.Namespace)
	}

	a.store = opts.Store
	if a.store == nil {
		store, closeFn, err := OpenStore(ctx, cfg, log, entMetrics)
		if err != nil {
			return nil, err
		}
		a.store = store
		a.closeStore = closeFn
	}

	logger := zerologadapter.NewLogger(log)

	applier, err := entitlement.NewApplier(a.store, entitlement.ApplierConfig{
		Logger:         logger,
		Metrics:        entMetrics,
		NormalizeEmail: cfg.Stripe.NormalizeEmail,
	})
	if err != nil {
		_ = a.closeStore()
		return nil, err
	}
	a.applier = applier

	callback := opts.Callback
	if callback == nil && cfg.Notify.GrantQueueURL != "" {
		pub, err := sqsnotify.NewFromEnvironment(ctx, cfg.Notify.AWSRegion, sqsnotify.Config{
			QueueURL:    cfg.Notify.GrantQueueURL,
			SkipRepeats: cfg.Notify.SkipRepeats,
			Logger:      logger,
		})
		if err != nil {
			_ = a.closeStore()
			return nil, fmt.Errorf("grant publisher: %w", err)
		}
		callback = pub.Callback()
	}

	provider, err := stripe.NewProvider(stripe.Config{
		Config: billing.Config{
			Applier:         applier,
			WebhookSecret:   cfg.Stripe.WebhookSecret.Unmask(),
			APIKey:          cfg.Stripe.SecretKey.Unmask(),
			Metrics:         billingMetrics,
			Logger:          logger,
			WebhookCallback: callback,
		},
		SignatureTolerance: cfg.Stripe.SignatureTolerance,
		MaxBodyBytes:       cfg.Stripe.MaxBodyBytes,
		RateLimitRequests:  cfg.Server.RateLimitRequests,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
		TrustForwardedFor:  cfg.Server.TrustForwardedFor,
	})
	if err != nil {
		_ = a.closeStore()
		return nil, err
	}
	a.provider = provider

	if !cfg.Stripe.WebhookSecret.IsSet() {
		log.Warn().Msg("STRIPE_WEBHOOK_SECRET is not set; webhook deliveries will be rejected")
	}
	if !cfg.Stripe.SecretKey.IsSet() {
		log.Warn().Msg("STRIPE_SECRET_KEY is not set; checkout is disabled")
	}

	handler, err := a.routes()
	if err != nil {
		_ = a.closeStore()
		return nil, err
	}
	a.handler = handler

	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Applier returns the entitlement applier the webhook uses.
func (a *App) Applier() *entitlement.Applier {
	return a.applier
}

// Store returns the account store.
func (a *App) Store() entitlement.Store {
	return a.store
}

// Provider returns the Stripe provider.
func (a *App) Provider() *stripe.Provider {
	return a.provider
}

// Close releases the store connections.
func (a *App) Close() error {
	return a.closeStore()
}
