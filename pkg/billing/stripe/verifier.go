package stripe

import (
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/subtrack/pkg/billing"
	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

// DefaultSignatureTolerance is the accepted clock skew between the signature
// timestamp and now.
const DefaultSignatureTolerance = webhook.DefaultTolerance

// VerifiedPayload is a request body whose provider signature has been checked.
// It can only be obtained from a PayloadVerifier.
type VerifiedPayload struct {
	body       []byte
	verifiedAt time.Time
}

// Body returns the exact bytes that were signed.
func (v *VerifiedPayload) Body() []byte {
	return v.body
}

// VerifiedAt returns when the signature was accepted.
func (v *VerifiedPayload) VerifiedAt() time.Time {
	return v.verifiedAt
}

// PayloadVerifier authenticates a raw callback body.
type PayloadVerifier interface {
	// Verify returns billing.ErrVerification on any failure.
	Verify(body []byte, header string) (*VerifiedPayload, error)

	// Configured reports whether a signing secret is available.
	Configured() bool
}

// SignatureVerifier checks Stripe-Signature headers (t=<unix>,v1=<hex hmac>)
// against a shared webhook secret.
type SignatureVerifier struct {
	secret    string
	tolerance time.Duration
	logger    entitlement.Logger
	now       func() time.Time
}

// NewSignatureVerifier binds secret for later Verify calls. A zero tolerance
// selects DefaultSignatureTolerance.
func NewSignatureVerifier(secret string, tolerance time.Duration, logger entitlement.Logger) *SignatureVerifier {
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	if logger == nil {
		logger = &entitlement.NoopLogger{}
	}
	return &SignatureVerifier{
		secret:    strings.TrimSpace(secret),
		tolerance: tolerance,
		logger:    logger,
		now:       time.Now,
	}
}

func (v *SignatureVerifier) Configured() bool {
	return v.secret != ""
}

// Verify validates header against body. The failure cause is logged; callers
// only ever see billing.ErrVerification.
func (v *SignatureVerifier) Verify(body []byte, header string) (*VerifiedPayload, error) {
	if !v.Configured() {
		v.logger.Error("Webhook signature check impossible: no signing secret configured")
		return nil, billing.ErrVerification
	}
	if strings.TrimSpace(header) == "" {
		v.logger.Warn("Webhook signature rejected", entitlement.Field{Key: "reason", Value: "missing signature header"})
		return nil, billing.ErrVerification
	}

	if err := webhook.ValidatePayloadWithTolerance(body, header, v.secret, v.tolerance); err != nil {
		v.logger.Warn("Webhook signature rejected", entitlement.Field{Key: "reason", Value: rejectionReason(err)})
		return nil, billing.ErrVerification
	}

	return &VerifiedPayload{body: body, verifiedAt: v.now()}, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, webhook.ErrNotSigned):
		return "missing signature header"
	case errors.Is(err, webhook.ErrInvalidHeader):
		return "malformed signature header"
	case errors.Is(err, webhook.ErrTooOld):
		return "timestamp outside tolerance"
	case errors.Is(err, webhook.ErrNoValidSignature):
		return "signature mismatch"
	default:
		return err.Error()
	}
}
