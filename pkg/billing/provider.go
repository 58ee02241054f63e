package billing

import (
	"context"
	"net/http"
)

// Provider is the interface a payment backend exposes to the HTTP layer.
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that processes payment callbacks.
	// The implementation handles verification, decoding and the grant internally.
	WebhookHandler() http.Handler

	// CheckoutURL creates a hosted checkout session and returns its URL.
	CheckoutURL(ctx context.Context, req CheckoutRequest) (string, error)
}

// CheckoutRequest is the body accepted by the checkout endpoint.
// JSON names follow the existing front end.
type CheckoutRequest struct {
	PriceID           string `json:"priceId" validate:"required"`
	SuccessURL        string `json:"successUrl" validate:"required,url"`
	CancelURL         string `json:"cancelUrl" validate:"required,url"`
	CustomerEmail     string `json:"customerEmail,omitempty" validate:"omitempty,email"`
	ClientReferenceID string `json:"clientReferenceId,omitempty" validate:"omitempty,max=200"`
}

// CheckoutResponse is returned by the checkout endpoint.
type CheckoutResponse struct {
	URL string `json:"url"`
}
