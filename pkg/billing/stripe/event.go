package stripe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/subtrack/pkg/billing"
	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

// eventEnvelope is the part of a Stripe event shared by every kind.
// data.object stays raw until the kind is known.
type eventEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Interpret decodes a verified payload into a PaymentEvent.
//
// Every kind other than checkout.session.completed comes back as an event
// whose Ignored method reports true. A payload that is not a Stripe event,
// or a checkout completion without a session object, yields billing.ErrParse.
func Interpret(p *VerifiedPayload) (*entitlement.PaymentEvent, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: no verified payload", billing.ErrParse)
	}

	var env eventEnvelope
	if err := json.Unmarshal(p.body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrParse, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", billing.ErrParse)
	}
	obj := bytes.TrimSpace(env.Data.Object)
	if len(obj) == 0 || obj[0] != '{' {
		return nil, fmt.Errorf("%w: data.object is not an object", billing.ErrParse)
	}

	event := &entitlement.PaymentEvent{
		Kind:    entitlement.EventKind(env.Type),
		EventID: env.ID,
		Raw:     json.RawMessage(p.body),
	}
	if env.Created > 0 {
		event.Created = time.Unix(env.Created, 0).UTC()
	}

	if event.Kind != entitlement.KindCheckoutCompleted {
		return event, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(obj, &session); err != nil {
		return nil, fmt.Errorf("%w: checkout session: %v", billing.ErrParse, err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("%w: checkout session without id", billing.ErrParse)
	}

	event.SessionID = session.ID
	event.AccountRef = strings.TrimSpace(session.ClientReferenceID)
	event.Email = strings.TrimSpace(session.CustomerEmail)
	// customer_email is only set when the session was created with one;
	// Stripe always fills customer_details for completed sessions.
	if event.Email == "" && session.CustomerDetails != nil {
		event.Email = strings.TrimSpace(session.CustomerDetails.Email)
	}

	return event, nil
}
