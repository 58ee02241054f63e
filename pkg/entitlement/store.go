package entitlement

import (
	"context"
	"errors"
)

// Store is the persistence boundary for accounts.
//
// GrantLifetimeAccess must be safe to run concurrently and redundantly for the
// same Match: implementations express it as one conditional update ("set
// has_lifetime_access = true where <field> = <value>") so that two deliveries
// racing each other both succeed and leave the account in the same state.
// Zero matched rows is not an error; the result simply reports Matched == 0.
type Store interface {
	// GrantLifetimeAccess sets has_lifetime_access on every account matching m.
	GrantLifetimeAccess(ctx context.Context, m Match) (*GrantResult, error)

	// GetAccount returns ErrAccountNotFound for unknown ids.
	GetAccount(ctx context.Context, id string) (*Account, error)

	// Ping checks store connectivity.
	Ping(ctx context.Context) error
}

// AccountWriter is implemented by stores that can create accounts. It is used
// for seeding and cache fills, never by the grant path.
type AccountWriter interface {
	// PutAccount upserts acct. It must not clear an existing grant.
	PutAccount(ctx context.Context, acct Account) error
}

// WritableStore is a Store that can also create accounts.
type WritableStore interface {
	Store
	AccountWriter
}

// HasLifetimeAccess reports the flag for id. Unknown accounts have no access.
func HasLifetimeAccess(ctx context.Context, store Store, id string) (bool, error) {
	acct, err := store.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return false, nil
		}
		return false, err
	}
	return acct.HasLifetimeAccess, nil
}
