package entitlement

import (
	"context"
	"sync"
)

// trackingStore is an in-package Store that records every match it is asked for.
type trackingStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	calls    []Match
	err      error
}

func newTrackingStore(accounts ...*Account) *trackingStore {
	s := &trackingStore{accounts: map[string]*Account{}}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *trackingStore) GrantLifetimeAccess(_ context.Context, m Match) (*GrantResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, m)
	if s.err != nil {
		return nil, s.err
	}

	res := &GrantResult{Match: m}
	for _, a := range s.accounts {
		var hit bool
		switch m.Field {
		case MatchFieldID:
			hit = a.ID == m.Value
		case MatchFieldEmail:
			hit = a.Email == m.Value
		}
		if !hit {
			continue
		}
		res.Matched++
		res.AccountIDs = append(res.AccountIDs, a.ID)
		if !a.HasLifetimeAccess {
			a.HasLifetimeAccess = true
			res.NewlyGranted++
		}
	}
	return res, nil
}

func (s *trackingStore) GetAccount(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *trackingStore) Ping(context.Context) error {
	return s.err
}

func (s *trackingStore) matches() []Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Match(nil), s.calls...)
}
