package entitlement

import (
	"context"
	"errors"
	"fmt"
)

// CircuitBreakerStore wraps a Store implementation with circuit breaker protection.
// An open circuit surfaces as ErrStorageUnavailable, which the Applier reports
// as a StorageError so the provider redelivers later.
type CircuitBreakerStore struct {
	store Store
	cb    CircuitBreaker
}

// NewCircuitBreakerStore creates a new store wrapper with circuit breaker.
func NewCircuitBreakerStore(store Store, cb CircuitBreaker) *CircuitBreakerStore {
	return &CircuitBreakerStore{
		store: store,
		cb:    cb,
	}
}

func (s *CircuitBreakerStore) GrantLifetimeAccess(ctx context.Context, m Match) (*GrantResult, error) {
	var res *GrantResult
	err := s.cb.Execute(ctx, func() error {
		var e error
		res, e = s.store.GrantLifetimeAccess(ctx, m)
		return e
	})
	return res, wrapOpen(err)
}

func (s *CircuitBreakerStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	var acct *Account
	err := s.cb.Execute(ctx, func() error {
		var e error
		acct, e = s.store.GetAccount(ctx, id)
		return e
	})
	return acct, wrapOpen(err)
}

// Ping bypasses the breaker so health checks see the real store state.
func (s *CircuitBreakerStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// State returns the breaker state.
func (s *CircuitBreakerStore) State() CircuitBreakerState {
	return s.cb.State()
}

func wrapOpen(err error) error {
	if errors.Is(err, ErrCircuitOpen) {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return err
}
