// Package entitlement grants paying accounts lifetime access.
//
// The package owns the account-side half of payment confirmation: it takes a
// decoded PaymentEvent, resolves the account it refers to and applies a
// monotonic, idempotent grant through a Store. Stores are expected to express
// the grant as a single conditional statement so that concurrent or repeated
// deliveries of the same event converge on the same final state.
package entitlement

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind identifies the type of a payment provider event.
type EventKind string

const (
	// KindCheckoutCompleted is the only kind that grants an entitlement.
	KindCheckoutCompleted EventKind = "checkout.session.completed"
)

// Account is a persisted user record as seen by this package.
type Account struct {
	ID    string
	Email string

	// HasLifetimeAccess only ever moves from false to true.
	HasLifetimeAccess bool

	// UpdatedAt is zero for stores that do not track it.
	UpdatedAt time.Time
}

// PaymentEvent is a verified provider event reduced to the fields needed to
// identify the paying account.
type PaymentEvent struct {
	Kind EventKind

	// EventID and SessionID are the provider's identifiers, used for logging.
	EventID   string
	SessionID string

	// AccountRef is the client reference bound at checkout creation.
	AccountRef string

	// Email is the contact address captured at checkout.
	Email string

	Created time.Time

	// Raw is the verified payload, kept for debugging only.
	Raw json.RawMessage
}

// Ignored reports whether the event kind is one this package does not act on.
func (e *PaymentEvent) Ignored() bool {
	return e == nil || e.Kind != KindCheckoutCompleted
}

// Actionable reports whether the event can be applied to an account.
func (e *PaymentEvent) Actionable() bool {
	return !e.Ignored() && (e.AccountRef != "" || e.Email != "")
}

// MatchField is the account column a grant is matched on.
type MatchField string

const (
	MatchFieldID    MatchField = "id"
	MatchFieldEmail MatchField = "email"
)

// Match selects the account(s) a grant applies to.
type Match struct {
	Field MatchField
	Value string
}

// ByID matches the account whose primary key equals id.
func ByID(id string) Match {
	return Match{Field: MatchFieldID, Value: id}
}

// ByEmail matches every account whose email equals email.
func ByEmail(email string) Match {
	return Match{Field: MatchFieldEmail, Value: email}
}

// Validate checks that the match names a known field and a non-empty value.
func (m Match) Validate() error {
	if m.Field != MatchFieldID && m.Field != MatchFieldEmail {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidMatch, m.Field)
	}
	if m.Value == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidMatch, m.Field)
	}
	return nil
}

func (m Match) String() string {
	return fmt.Sprintf("%s=%s", m.Field, m.Value)
}

// GrantResult reports the effect of a single grant statement.
type GrantResult struct {
	Match Match

	// Matched is the number of accounts the statement matched.
	Matched int

	// NewlyGranted counts matched accounts that moved from false to true.
	// A repeated delivery reports Matched > 0 and NewlyGranted == 0.
	NewlyGranted int

	AccountIDs []string
}
