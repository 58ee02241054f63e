package stripe

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/subtrack/pkg/billing"
	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

func verifiedFor(t *testing.T, body string) *VerifiedPayload {
	t.Helper()
	sp := sign(t, body, testWebhookSecret, time.Now())
	p, err := NewSignatureVerifier(testWebhookSecret, 0, nil).Verify(sp.Payload, sp.Header)
	require.NoError(t, err)
	return p
}

func TestInterpret_CheckoutCompleted(t *testing.T) {
	ev, err := Interpret(verifiedFor(t, checkoutBody))
	require.NoError(t, err)

	assert.Equal(t, entitlement.KindCheckoutCompleted, ev.Kind)
	assert.Equal(t, "evt_1", ev.EventID)
	assert.Equal(t, "cs_1", ev.SessionID)
	assert.Equal(t, testAccountID, ev.AccountRef)
	assert.Empty(t, ev.Email)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ev.Created)
	assert.JSONEq(t, checkoutBody, string(ev.Raw))
	assert.False(t, ev.Ignored())
}

func TestInterpret_EmailOnly(t *testing.T) {
	body := `{"type":"checkout.session.completed","data":{"object":{"id":"cs_2","client_reference_id":null,"customer_email":"a@b.com"}}}`
	ev, err := Interpret(verifiedFor(t, body))
	require.NoError(t, err)

	assert.Empty(t, ev.AccountRef)
	assert.Equal(t, testEmail, ev.Email)
}

func TestInterpret_CustomerDetailsFallback(t *testing.T) {
	body := `{"type":"checkout.session.completed","data":{"object":{"id":"cs_3","customer_details":{"email":"buyer@x.com"}}}}`
	ev, err := Interpret(verifiedFor(t, body))
	require.NoError(t, err)

	assert.Equal(t, "buyer@x.com", ev.Email)
}

func TestInterpret_OtherKindIsIgnored(t *testing.T) {
	body := `{"id":"evt_9","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","client_reference_id":"acct_42"}}}`
	ev, err := Interpret(verifiedFor(t, body))
	require.NoError(t, err)

	assert.True(t, ev.Ignored())
	assert.Empty(t, ev.AccountRef, "non-checkout kinds carry no identification")
}

func TestInterpret_ParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `not json`},
		{"missing type", `{"data":{"object":{"id":"cs_1"}}}`},
		{"missing object", `{"type":"checkout.session.completed","data":{}}`},
		{"object is a string", `{"type":"checkout.session.completed","data":{"object":"cs_1"}}`},
		{"session without id", `{"type":"checkout.session.completed","data":{"object":{"customer_email":"a@b.com"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Interpret(verifiedFor(t, tt.body))
			if !errors.Is(err, billing.ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
		})
	}

	_, err := Interpret(nil)
	assert.ErrorIs(t, err, billing.ErrParse)
}
