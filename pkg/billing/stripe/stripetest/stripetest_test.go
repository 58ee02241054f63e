package stripetest

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/mihaimyh/subtrack/pkg/billing/stripe"
	"github.com/mihaimyh/subtrack/pkg/entitlement"
	"github.com/mihaimyh/subtrack/storage/memory"
)

func TestSignedDeliveryGrants(t *testing.T) {
	store := memory.New(entitlement.Account{ID: "u_1"})
	endpoint, err := NewEndpoint(store)
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}

	body := CheckoutCompleted("cs_1", "u_1", "")
	resp := endpoint.Process(context.Background(), stripe.Request{
		Method:    http.MethodPost,
		Signature: Sign(body),
		Body:      bytes.NewReader(body),
	})
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.Status, resp.Body)
	}

	acct, _ := store.GetAccount(context.Background(), "u_1")
	if !acct.HasLifetimeAccess {
		t.Fatal("expected lifetime access")
	}
}
