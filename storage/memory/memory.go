// Package memory provides an in-memory implementation of entitlement.Store.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

// Storage implements entitlement.Store using an in-memory map
type Storage struct {
	mu       sync.RWMutex
	accounts map[string]*entitlement.Account
	grants   int
	now      func() time.Time
}

// New creates a new in-memory storage adapter seeded with accounts
func New(accounts ...entitlement.Account) *Storage {
	s := &Storage{
		accounts: make(map[string]*entitlement.Account),
		now:      time.Now,
	}
	for _, a := range accounts {
		acct := a
		s.accounts[a.ID] = &acct
	}
	return s
}

// Put inserts or replaces an account
func (s *Storage) Put(acct entitlement.Account) error {
	if acct.ID == "" {
		return fmt.Errorf("invalid account: empty id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutations
	cp := acct
	s.accounts[acct.ID] = &cp
	return nil
}

// PutAccount implements entitlement.AccountWriter. Unlike Put it never
// clears an existing grant.
func (s *Storage) PutAccount(_ context.Context, acct entitlement.Account) error {
	if acct.ID == "" {
		return fmt.Errorf("invalid account: empty id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := acct
	if prev, ok := s.accounts[acct.ID]; ok && prev.HasLifetimeAccess {
		cp.HasLifetimeAccess = true
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = s.now()
	}
	s.accounts[acct.ID] = &cp
	return nil
}

// GrantLifetimeAccess implements entitlement.Store
func (s *Storage) GrantLifetimeAccess(_ context.Context, m entitlement.Match) (*entitlement.GrantResult, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants++
	res := &entitlement.GrantResult{Match: m}
	now := s.now()
	for id, acct := range s.accounts {
		if !matches(acct, m) {
			continue
		}
		res.Matched++
		res.AccountIDs = append(res.AccountIDs, id)
		if !acct.HasLifetimeAccess {
			acct.HasLifetimeAccess = true
			acct.UpdatedAt = now
			res.NewlyGranted++
		}
	}
	sort.Strings(res.AccountIDs)
	return res, nil
}

func matches(acct *entitlement.Account, m entitlement.Match) bool {
	switch m.Field {
	case entitlement.MatchFieldID:
		return acct.ID == m.Value
	case entitlement.MatchFieldEmail:
		return acct.Email == m.Value
	default:
		return false
	}
}

// GetAccount implements entitlement.Store
func (s *Storage) GetAccount(_ context.Context, id string) (*entitlement.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, entitlement.ErrAccountNotFound
	}

	// Return a copy to prevent external mutations
	cp := *acct
	return &cp, nil
}

// Ping implements entitlement.Store
func (s *Storage) Ping(_ context.Context) error {
	return nil
}

// GrantCalls returns how many grant statements have been executed
func (s *Storage) GrantCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grants
}

var (
	_ entitlement.Store         = (*Storage)(nil)
	_ entitlement.AccountWriter = (*Storage)(nil)
)
