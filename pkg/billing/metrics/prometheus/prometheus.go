// Package prommetrics implements billing.Metrics with Prometheus collectors.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const subsystem = "billing"

// statusProcessed mirrors the webhook status that marks a completed delivery.
const statusProcessed = "processed"

// Metrics implements billing.Metrics using Prometheus.
type Metrics struct {
	deliveries     *prometheus.CounterVec
	deliveryTime   *prometheus.HistogramVec
	rejections     *prometheus.CounterVec
	grants         *prometheus.CounterVec
	lastProcessed  *prometheus.GaugeVec
	rateLimited    *prometheus.CounterVec
	apiCalls       *prometheus.CounterVec
	apiCallLatency *prometheus.HistogramVec
}

// NewMetrics registers the billing collectors on reg under namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		}, labels)
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
		}, labels)
	}

	return &Metrics{
		deliveries: counter("webhook_events_total",
			"Verified webhook deliveries by event type and result.", "provider", "event_type", "status"),
		deliveryTime: histogram("webhook_processing_duration_seconds",
			"Time from receipt to response for verified deliveries.",
			[]float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}, "provider", "event_type"),
		rejections: counter("webhook_errors_total",
			"Deliveries rejected or failed, by reason.", "provider", "error_type"),
		grants: counter("entitlement_grants_total",
			"Lifetime access grants triggered by webhooks.", "provider", "outcome"),
		lastProcessed: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "webhook_last_processed_timestamp_seconds",
			Help: "Unix time of the last fully processed delivery.",
		}, []string{"provider"}),
		rateLimited: counter("webhook_rate_limited_total",
			"Requests refused by the webhook rate limiter.", "provider"),
		apiCalls: counter("api_calls_total",
			"Outbound calls to the billing provider API.", "provider", "endpoint", "status"),
		apiCallLatency: histogram("api_call_duration_seconds",
			"Latency of outbound billing provider API calls.", prometheus.DefBuckets, "provider", "endpoint"),
	}
}

func (m *Metrics) RecordWebhookEvent(provider, eventType, status string) {
	m.deliveries.WithLabelValues(provider, eventType, status).Inc()
	if status == statusProcessed {
		m.lastProcessed.WithLabelValues(provider).SetToCurrentTime()
	}
}

func (m *Metrics) RecordWebhookProcessingDuration(provider, eventType string, d time.Duration) {
	m.deliveryTime.WithLabelValues(provider, eventType).Observe(d.Seconds())
}

func (m *Metrics) RecordWebhookError(provider, errorType string) {
	m.rejections.WithLabelValues(provider, errorType).Inc()
}

func (m *Metrics) RecordEntitlementGrant(provider, outcome string) {
	m.grants.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RecordRateLimited(provider string) {
	m.rateLimited.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordAPICall(provider, endpoint, status string) {
	m.apiCalls.WithLabelValues(provider, endpoint, status).Inc()
}

func (m *Metrics) RecordAPICallDuration(provider, endpoint string, d time.Duration) {
	m.apiCallLatency.WithLabelValues(provider, endpoint).Observe(d.Seconds())
}
