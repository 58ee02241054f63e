// Package stripetest builds signed Stripe webhook deliveries for tests of
// code that mounts the webhook endpoint.
package stripetest

import (
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/subtrack/pkg/billing/stripe"
	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

// WebhookSecret signs every payload built by this package.
const WebhookSecret = "whsec_stripetest"

// CheckoutCompleted returns a checkout.session.completed event body.
// Empty ref or email are encoded as null, as Stripe does.
func CheckoutCompleted(sessionID, ref, email string) []byte {
	object := map[string]interface{}{
		"id":                  sessionID,
		"object":              "checkout.session",
		"client_reference_id": nullable(ref),
		"customer_email":      nullable(email),
	}
	return event("checkout.session.completed", object)
}

// Event returns an event body of the given type around object.
func Event(eventType string, object map[string]interface{}) []byte {
	return event(eventType, object)
}

func event(eventType string, object map[string]interface{}) []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"id":      "evt_" + eventType,
		"object":  "event",
		"type":    eventType,
		"created": time.Now().Unix(),
		"data":    map[string]interface{}{"object": object},
	})
	return b
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Sign returns the Stripe-Signature header for payload signed now with WebhookSecret.
func Sign(payload []byte) string {
	return SignAt(payload, WebhookSecret, time.Now())
}

// SignAt signs payload with secret at ts.
func SignAt(payload []byte, secret string, ts time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: ts,
	}).Header
}

// NewEndpoint returns an endpoint that verifies with WebhookSecret and grants
// through a default Applier over store.
func NewEndpoint(store entitlement.Store) (*stripe.Endpoint, error) {
	applier, err := entitlement.NewApplier(store, entitlement.ApplierConfig{})
	if err != nil {
		return nil, err
	}
	return stripe.NewEndpoint(stripe.EndpointConfig{
		Verifier: stripe.NewSignatureVerifier(WebhookSecret, 0, nil),
		Applier:  applier,
	})
}
