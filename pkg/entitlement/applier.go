package entitlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	opGrant = "grant_lifetime_access"

	OutcomeGranted        = "granted"
	OutcomeAlreadyGranted = "already_granted"
	OutcomeNoAccount      = "no_account"
	OutcomeError          = "error"
)

// ApplierConfig holds optional Applier collaborators.
type ApplierConfig struct {
	// Logger is optional; defaults to NoopLogger.
	Logger Logger

	// Metrics is optional; defaults to NoopMetrics.
	Metrics Metrics

	// NormalizeEmail lower-cases and trims the email before matching.
	// Leave it off unless the account store stores normalized emails,
	// otherwise the fallback lookup can miss accounts it used to match.
	NormalizeEmail bool
}

// Applier maps a PaymentEvent onto an account and grants lifetime access.
type Applier struct {
	store          Store
	logger         Logger
	metrics        Metrics
	normalizeEmail bool
}

// NewApplier creates an Applier backed by store.
func NewApplier(store Store, config ApplierConfig) (*Applier, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	logger := config.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &NoopMetrics{}
	}

	return &Applier{
		store:          store,
		logger:         logger,
		metrics:        metrics,
		normalizeEmail: config.NormalizeEmail,
	}, nil
}

// Apply grants lifetime access to the account the event identifies.
//
// The account reference wins over the email when both are present: it was
// bound explicitly at checkout creation, while emails may be shared or typed
// differently. Errors:
//   - ErrIdentification: not a checkout completion, or no reference and no email.
//     Nothing is written.
//   - ErrNoAccountMatched: soft; the result is still returned.
//   - *StorageError: the store faulted.
//
// Applying the same event twice returns a nil error both times.
func (a *Applier) Apply(ctx context.Context, event *PaymentEvent) (*GrantResult, error) {
	m, err := a.MatchFor(event)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := a.store.GrantLifetimeAccess(ctx, m)
	a.metrics.RecordStorageOperation(opGrant, time.Since(start), err)
	if err != nil {
		a.metrics.RecordGrant(m.Field, OutcomeError)
		a.logger.Error("Entitlement grant failed",
			Field{"match", m.String()},
			Field{"event_id", event.EventID},
			Field{"error", err},
		)
		var se *StorageError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &StorageError{Op: opGrant, Match: m, Err: err}
	}
	if res == nil {
		res = &GrantResult{}
	}
	res.Match = m

	if res.Matched == 0 {
		a.metrics.RecordGrant(m.Field, OutcomeNoAccount)
		a.logger.Warn("Entitlement grant matched no account",
			Field{"match", m.String()},
			Field{"event_id", event.EventID},
			Field{"session_id", event.SessionID},
		)
		return res, ErrNoAccountMatched
	}

	outcome := OutcomeGranted
	if res.NewlyGranted == 0 {
		outcome = OutcomeAlreadyGranted
	}
	a.metrics.RecordGrant(m.Field, outcome)
	a.logger.Info("Lifetime access granted",
		Field{"match", m.String()},
		Field{"event_id", event.EventID},
		Field{"matched", res.Matched},
		Field{"newly_granted", res.NewlyGranted},
	)

	return res, nil
}

// MatchFor resolves the lookup key for event without touching storage.
func (a *Applier) MatchFor(event *PaymentEvent) (Match, error) {
	if event == nil {
		return Match{}, fmt.Errorf("%w: nil event", ErrIdentification)
	}
	if event.Kind != KindCheckoutCompleted {
		return Match{}, fmt.Errorf("%w: event kind %q is not actionable", ErrIdentification, event.Kind)
	}

	if ref := strings.TrimSpace(event.AccountRef); ref != "" {
		return ByID(ref), nil
	}

	email := strings.TrimSpace(event.Email)
	if a.normalizeEmail {
		email = strings.ToLower(email)
	}
	if email != "" {
		return ByEmail(email), nil
	}

	return Match{}, fmt.Errorf("%w: session %s has neither client reference nor email",
		ErrIdentification, event.SessionID)
}
