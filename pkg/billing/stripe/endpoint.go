package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/mihaimyh/subtrack/pkg/billing"
	"github.com/mihaimyh/subtrack/pkg/billing/internal"
	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

const (
	// DefaultMaxBodyBytes bounds the webhook body. Stripe events are a few KiB.
	DefaultMaxBodyBytes int64 = 256 * 1024

	// SignatureHeader carries the Stripe webhook signature.
	SignatureHeader = "Stripe-Signature"

	contentTypeJSON = "application/json"
)

// Webhook statuses reported to billing.Metrics.
const (
	statusProcessed = "processed"
	statusIgnored   = "ignored"
	statusNoAccount = "no_account"
	statusError     = "error"
)

var (
	bodyReceived         = []byte(`{"received":true}`)
	bodyMethodNotAllowed = []byte(`{"error":"method not allowed"}`)
	bodyRejected         = []byte(`{"error":"webhook verification failed"}`)
	bodyInvalidPayload   = []byte(`{"error":"invalid payload"}`)
	bodyTooLarge         = []byte(`{"error":"payload too large"}`)
	bodyNoIdentification = []byte(`{"error":"no account identification in event"}`)
	bodyUpdateFailed     = []byte(`{"error":"entitlement update failed"}`)
)

// Request is a webhook delivery stripped of its transport.
type Request struct {
	Method    string
	Signature string

	// RequestID correlates log lines; optional.
	RequestID string

	// Body is read once, up to the endpoint's size limit.
	Body io.Reader
}

// Response is what the transport should send back.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// EndpointConfig wires an Endpoint.
type EndpointConfig struct {
	// Verifier and Applier are required.
	Verifier PayloadVerifier
	Applier  billing.EntitlementApplier

	Callback     billing.WebhookCallback
	Metrics      billing.Metrics
	Logger       entitlement.Logger
	MaxBodyBytes int64
}

// Endpoint runs one webhook delivery through method check, body read,
// signature verification, interpretation and the grant, strictly in that
// order. It holds no per-request state and is safe for concurrent use.
type Endpoint struct {
	verifier     PayloadVerifier
	applier      billing.EntitlementApplier
	callback     billing.WebhookCallback
	metrics      billing.Metrics
	logger       entitlement.Logger
	maxBodyBytes int64
}

// NewEndpoint returns billing.ErrConfiguration when a required collaborator is missing.
func NewEndpoint(cfg EndpointConfig) (*Endpoint, error) {
	if cfg.Verifier == nil || cfg.Applier == nil {
		return nil, billing.ErrConfiguration
	}
	e := &Endpoint{
		verifier:     cfg.Verifier,
		applier:      cfg.Applier,
		callback:     cfg.Callback,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
	if e.metrics == nil {
		e.metrics = &billing.NoopMetrics{}
	}
	if e.logger == nil {
		e.logger = &entitlement.NoopLogger{}
	}
	if e.maxBodyBytes <= 0 {
		e.maxBodyBytes = DefaultMaxBodyBytes
	}
	return e, nil
}

// Process handles a single delivery and never returns an error: every
// outcome is expressed as a Response.
//
//nolint:gocyclo // one branch per terminal outcome
func (e *Endpoint) Process(ctx context.Context, req Request) Response {
	start := time.Now()
	reqField := entitlement.Field{Key: "request_id", Value: req.RequestID}

	if req.Method != http.MethodPost {
		e.metrics.RecordWebhookError(providerName, "method_not_allowed")
		return jsonResponse(http.StatusMethodNotAllowed, bodyMethodNotAllowed)
	}

	body, err := internal.ReadBody(req.Body, e.maxBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			e.logger.Warn("Webhook body exceeds limit", reqField, entitlement.Field{Key: "limit", Value: e.maxBodyBytes})
			e.metrics.RecordWebhookError(providerName, "payload_too_large")
			return jsonResponse(http.StatusRequestEntityTooLarge, bodyTooLarge)
		}
		e.logger.Warn("Webhook body unreadable", reqField, entitlement.Field{Key: "error", Value: err})
		e.metrics.RecordWebhookError(providerName, "invalid_payload")
		return jsonResponse(http.StatusBadRequest, bodyInvalidPayload)
	}

	if !e.verifier.Configured() {
		e.logger.Error("Webhook rejected: signing secret is not configured", reqField)
		e.metrics.RecordWebhookError(providerName, "not_configured")
		return jsonResponse(http.StatusBadRequest, bodyRejected)
	}

	verified, err := e.verifier.Verify(body, req.Signature)
	if err != nil {
		e.metrics.RecordWebhookError(providerName, "auth_failed")
		return jsonResponse(http.StatusBadRequest, bodyRejected)
	}

	event, err := Interpret(verified)
	if err != nil {
		e.logger.Warn("Verified webhook is not a well-formed event", reqField, entitlement.Field{Key: "error", Value: err})
		e.metrics.RecordWebhookError(providerName, "invalid_payload")
		return jsonResponse(http.StatusBadRequest, bodyInvalidPayload)
	}

	eventType := string(event.Kind)
	eventField := entitlement.Field{Key: "event_id", Value: event.EventID}
	defer func() {
		e.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(start))
	}()

	if event.Ignored() {
		e.logger.Info("Ignoring webhook event", reqField, eventField, entitlement.Field{Key: "event_type", Value: eventType})
		e.metrics.RecordWebhookEvent(providerName, eventType, statusIgnored)
		return jsonResponse(http.StatusOK, bodyReceived)
	}

	res, err := e.applier.Apply(ctx, event)
	switch {
	case errors.Is(err, entitlement.ErrNoAccountMatched):
		// Redelivery cannot create the account, so the delivery is acknowledged.
		e.logger.Warn("Payment confirmed for unknown account", reqField, eventField,
			entitlement.Field{Key: "session_id", Value: event.SessionID})
		e.metrics.RecordWebhookEvent(providerName, eventType, statusNoAccount)
		return jsonResponse(http.StatusOK, bodyReceived)
	case errors.Is(err, entitlement.ErrIdentification):
		e.logger.Warn("Checkout completion without account identification", reqField, eventField,
			entitlement.Field{Key: "session_id", Value: event.SessionID})
		e.metrics.RecordWebhookEvent(providerName, eventType, statusError)
		e.metrics.RecordWebhookError(providerName, "identification")
		return jsonResponse(http.StatusBadRequest, bodyNoIdentification)
	case err != nil:
		e.logger.Error("Entitlement update failed", reqField, eventField, entitlement.Field{Key: "error", Value: err})
		e.metrics.RecordWebhookEvent(providerName, eventType, statusError)
		e.metrics.RecordWebhookError(providerName, "storage")
		return jsonResponse(http.StatusInternalServerError, bodyUpdateFailed)
	}

	if res == nil {
		res = &entitlement.GrantResult{}
	}
	if res.NewlyGranted > 0 {
		e.metrics.RecordEntitlementGrant(providerName, entitlement.OutcomeGranted)
	} else {
		e.metrics.RecordEntitlementGrant(providerName, entitlement.OutcomeAlreadyGranted)
	}

	if e.callback != nil {
		cbEvent := billing.WebhookEvent{
			Provider:       providerName,
			EventID:        event.EventID,
			EventType:      eventType,
			SessionID:      event.SessionID,
			MatchedBy:      string(res.Match.Field),
			AccountIDs:     res.AccountIDs,
			NewlyGranted:   res.NewlyGranted,
			EventTimestamp: event.Created,
		}
		if err := e.callback(ctx, cbEvent); err != nil {
			e.logger.Error("Webhook callback failed", reqField, eventField, entitlement.Field{Key: "error", Value: err})
			e.metrics.RecordWebhookEvent(providerName, eventType, statusError)
			e.metrics.RecordWebhookError(providerName, "callback")
			return jsonResponse(http.StatusInternalServerError, bodyUpdateFailed)
		}
	}

	e.metrics.RecordWebhookEvent(providerName, eventType, statusProcessed)
	return jsonResponse(http.StatusOK, bodyReceived)
}

func jsonResponse(status int, body []byte) Response {
	return Response{Status: status, ContentType: contentTypeJSON, Body: body}
}

// ErrorResponse builds a JSON error Response for transports that fail before
// reaching Process.
func ErrorResponse(status int, message string) Response {
	b, _ := json.Marshal(map[string]string{"error": message})
	return jsonResponse(status, b)
}
