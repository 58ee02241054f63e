package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/subtrack/pkg/billing"
	"github.com/mihaimyh/subtrack/pkg/billing/internal"
	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

const (
	checkoutEndpoint     = "/checkout/sessions"
	maxCheckoutBodyBytes = 16 * 1024
)

// checkoutSessionCreator is the slice of the Stripe client used here.
type checkoutSessionCreator interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names so messages match what the client sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CheckoutURL creates a hosted Checkout Session for a one-off purchase and
// returns its URL. ClientReferenceID and CustomerEmail are threaded into the
// session so the completion webhook can identify the account.
func (p *Provider) CheckoutURL(ctx context.Context, req billing.CheckoutRequest) (string, error) {
	startTime := time.Now()

	if p.sessions == nil {
		p.metrics.RecordAPICall(providerName, checkoutEndpoint, "not_configured")
		return "", fmt.Errorf("%w: stripe API key is not set", billing.ErrConfiguration)
	}

	req.PriceID = strings.TrimSpace(req.PriceID)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.ClientReferenceID = strings.TrimSpace(req.ClientReferenceID)
	if err := validate.Struct(req); err != nil {
		p.metrics.RecordAPICall(providerName, checkoutEndpoint, "invalid_request")
		return "", fmt.Errorf("%w: %w", billing.ErrInvalidCheckoutRequest, err)
	}

	mode := p.config.CheckoutMode
	if mode == "" {
		mode = defaultCheckoutMode
	}
	methods := p.config.PaymentMethodTypes
	if len(methods) == 0 {
		methods = []string{"card"}
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:               stripe.String(string(mode)),
		PaymentMethodTypes: stripe.StringSlice(methods),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(req.ClientReferenceID)
	}

	session, err := p.sessions.Create(ctx, params)
	p.metrics.RecordAPICallDuration(providerName, checkoutEndpoint, time.Since(startTime))
	if err != nil {
		p.metrics.RecordAPICall(providerName, checkoutEndpoint, "error")
		return "", fmt.Errorf("%w: failed to create checkout session: %w", billing.ErrProviderAPIError, err)
	}

	p.metrics.RecordAPICall(providerName, checkoutEndpoint, "success")
	p.logger.Info("Checkout session created",
		entitlement.Field{Key: "session_id", Value: session.ID},
		entitlement.Field{Key: "client_reference_id", Value: req.ClientReferenceID},
	)
	return session.URL, nil
}

func (p *Provider) handleCheckout(w http.ResponseWriter, r *http.Request) {
	internal.SetSecurityHeaders(w.Header())

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := internal.ReadBodyStrict(r.Body, maxCheckoutBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	var req billing.CheckoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	url, err := p.CheckoutURL(r.Context(), req)
	switch {
	case errors.Is(err, billing.ErrInvalidCheckoutRequest):
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	case errors.Is(err, billing.ErrConfiguration):
		p.logger.Error("Checkout requested but Stripe API key is not configured")
		writeError(w, http.StatusServiceUnavailable, "checkout is not configured")
		return
	case err != nil:
		p.logger.Error("Checkout session creation failed", entitlement.Field{Key: "error", Value: err})
		writeError(w, http.StatusBadGateway, "checkout session could not be created")
		return
	}

	_ = internal.WriteJSON(w, http.StatusOK, billing.CheckoutResponse{URL: url})
}

func writeError(w http.ResponseWriter, status int, message string) {
	_ = internal.WriteJSON(w, status, map[string]string{"error": message})
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid request"
	}
	fe := ve[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s must be a valid %s", fe.Field(), fe.Tag())
	}
}
