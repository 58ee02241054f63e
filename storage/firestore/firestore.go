// Package firestore provides a Firestore implementation of the entitlement.Store interface.
// Grants run inside a Firestore transaction so concurrent deliveries serialize
// on the account documents.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

const (
	fieldEmail     = "email"
	fieldHasAccess = "hasLifetimeAccess"
	fieldUpdatedAt = "updatedAt"
)

// Storage implements entitlement.Store using Google Cloud Firestore
type Storage struct {
	client             *firestore.Client
	profilesCollection string
}

// Config holds Firestore storage configuration
type Config struct {
	// ProfilesCollection is the Firestore collection for accounts
	// Default: "profiles"
	ProfilesCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.ProfilesCollection == "" {
		config.ProfilesCollection = "profiles"
	}

	return &Storage{
		client:             client,
		profilesCollection: config.ProfilesCollection,
	}, nil
}

func (s *Storage) profiles() *firestore.CollectionRef {
	return s.client.Collection(s.profilesCollection)
}

// GrantLifetimeAccess implements entitlement.Store
func (s *Storage) GrantLifetimeAccess(ctx context.Context, m entitlement.Match) (*entitlement.GrantResult, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var res *entitlement.GrantResult
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		// The function may be retried, so the result is rebuilt on every attempt.
		res = &entitlement.GrantResult{Match: m}

		snaps, err := s.matching(tx, m)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, snap := range snaps {
			res.Matched++
			res.AccountIDs = append(res.AccountIDs, snap.Ref.ID)
			if granted, _ := snap.Data()[fieldHasAccess].(bool); granted {
				continue
			}
			if err := tx.Update(snap.Ref, []firestore.Update{
				{Path: fieldHasAccess, Value: true},
				{Path: fieldUpdatedAt, Value: now},
			}); err != nil {
				return err
			}
			res.NewlyGranted++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to grant lifetime access: %w", err)
	}

	sort.Strings(res.AccountIDs)
	return res, nil
}

// matching reads the documents m selects inside tx.
func (s *Storage) matching(tx *firestore.Transaction, m entitlement.Match) ([]*firestore.DocumentSnapshot, error) {
	if m.Field == entitlement.MatchFieldID {
		snap, err := tx.Get(s.profiles().Doc(m.Value))
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, nil
			}
			return nil, err
		}
		if !snap.Exists() {
			return nil, nil
		}
		return []*firestore.DocumentSnapshot{snap}, nil
	}

	return tx.Documents(s.profiles().Where(fieldEmail, "==", m.Value)).GetAll()
}

// GetAccount implements entitlement.Store
func (s *Storage) GetAccount(ctx context.Context, id string) (*entitlement.Account, error) {
	snap, err := s.profiles().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, entitlement.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if !snap.Exists() {
		return nil, entitlement.ErrAccountNotFound
	}

	data := snap.Data()
	return &entitlement.Account{
		ID:                id,
		Email:             getString(data, fieldEmail),
		HasLifetimeAccess: getBool(data, fieldHasAccess),
		UpdatedAt:         getTime(data, fieldUpdatedAt),
	}, nil
}

// PutAccount creates or updates an account. It never clears an existing grant.
func (s *Storage) PutAccount(ctx context.Context, acct entitlement.Account) error {
	if acct.ID == "" {
		return fmt.Errorf("invalid account")
	}

	doc := s.profiles().Doc(acct.ID)
	return s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		granted := acct.HasLifetimeAccess
		snap, err := tx.Get(doc)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil && snap.Exists() && getBool(snap.Data(), fieldHasAccess) {
			granted = true
		}

		return tx.Set(doc, map[string]interface{}{
			fieldEmail:     acct.Email,
			fieldHasAccess: granted,
			fieldUpdatedAt: time.Now().UTC(),
		})
	})
}

// Ping implements entitlement.Store
func (s *Storage) Ping(ctx context.Context) error {
	// Firestore has no ping; a limited read proves the client can reach the backend.
	iter := s.profiles().Limit(1).Documents(ctx)
	defer iter.Stop()
	_, err := iter.Next()
	if err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("firestore ping failed: %w", err)
	}
	return nil
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	v, _ := data[key].(bool)
	return v
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}
