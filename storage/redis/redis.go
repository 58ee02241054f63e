// Package redis provides a Redis implementation of the entitlement.Store interface.
// Grants run as Lua scripts so each one is a single atomic step on the server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

const (
	fieldEmail     = "email"
	fieldHasAccess = "has_lifetime_access"
	fieldUpdatedAt = "updated_at"
)

// Storage implements entitlement.Store using Redis.
//
// Accounts are hashes under {prefix}account:{id}. Each email has a set of
// account ids under {prefix}email:{email} so a grant by email can find every
// account sharing the address.
type Storage struct {
	client  redis.UniversalClient
	config  Config
	scripts map[string]*redis.Script
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "subtrack:")
	KeyPrefix string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "subtrack:",
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
// Grants by email touch keys outside the script's KEYS, so cluster
// deployments need the account and email keys in one hash slot.
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "subtrack:"
	}

	s := &Storage{
		client:  client,
		config:  config,
		scripts: make(map[string]*redis.Script),
	}
	s.loadScripts()

	return s, nil
}

// loadScripts compiles the Lua scripts. Grant scripts return
// {newly_granted, id1, id2, ...}.
func (s *Storage) loadScripts() {
	s.scripts["grant_id"] = redis.NewScript(`
		local key = KEYS[1]
		if redis.call('EXISTS', key) == 0 then
			return {0}
		end
		if redis.call('HGET', key, 'has_lifetime_access') == '1' then
			return {0, ARGV[1]}
		end
		redis.call('HSET', key, 'has_lifetime_access', '1', 'updated_at', ARGV[2])
		return {1, ARGV[1]}
	`)

	s.scripts["grant_email"] = redis.NewScript(`
		local ids = redis.call('SMEMBERS', KEYS[1])
		local result = {0}
		for _, id in ipairs(ids) do
			local key = ARGV[1] .. id
			if redis.call('EXISTS', key) == 1 then
				if redis.call('HGET', key, 'has_lifetime_access') ~= '1' then
					redis.call('HSET', key, 'has_lifetime_access', '1', 'updated_at', ARGV[2])
					result[1] = result[1] + 1
				end
				table.insert(result, id)
			end
		end
		return result
	`)

	// Moves the account between email sets and never lowers the flag.
	s.scripts["put"] = redis.NewScript(`
		local key = KEYS[1]
		local old = redis.call('HGET', key, 'email')
		if old and old ~= '' and old ~= ARGV[2] then
			redis.call('SREM', ARGV[5] .. old, ARGV[1])
		end
		local has = ARGV[3]
		if redis.call('HGET', key, 'has_lifetime_access') == '1' then
			has = '1'
		end
		redis.call('HSET', key, 'email', ARGV[2], 'has_lifetime_access', has, 'updated_at', ARGV[4])
		if ARGV[2] ~= '' then
			redis.call('SADD', KEYS[2], ARGV[1])
		end
		return 1
	`)
}

// Key generation helpers
func (s *Storage) accountKey(id string) string {
	return s.accountPrefix() + id
}

func (s *Storage) accountPrefix() string {
	return s.config.KeyPrefix + "account:"
}

func (s *Storage) emailPrefix() string {
	return s.config.KeyPrefix + "email:"
}

func (s *Storage) emailKey(email string) string {
	return s.emailPrefix() + email
}

// GrantLifetimeAccess implements entitlement.Store
func (s *Storage) GrantLifetimeAccess(ctx context.Context, m entitlement.Match) (*entitlement.GrantResult, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	var (
		raw interface{}
		err error
	)
	switch m.Field {
	case entitlement.MatchFieldID:
		raw, err = s.scripts["grant_id"].Run(ctx, s.client,
			[]string{s.accountKey(m.Value)}, m.Value, now).Result()
	case entitlement.MatchFieldEmail:
		raw, err = s.scripts["grant_email"].Run(ctx, s.client,
			[]string{s.emailKey(m.Value)}, s.accountPrefix(), now).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to grant lifetime access: %w", err)
	}

	return parseGrantResult(m, raw)
}

func parseGrantResult(m entitlement.Match, raw interface{}) (*entitlement.GrantResult, error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) == 0 {
		return nil, fmt.Errorf("unexpected script result: %v", raw)
	}
	newly, ok := values[0].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected grant count: %v", values[0])
	}

	ids := make([]string, 0, len(values)-1)
	for _, v := range values[1:] {
		id, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected account id: %v", v)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &entitlement.GrantResult{
		Match:        m,
		Matched:      len(ids),
		NewlyGranted: int(newly),
		AccountIDs:   ids,
	}, nil
}

// GetAccount implements entitlement.Store
func (s *Storage) GetAccount(ctx context.Context, id string) (*entitlement.Account, error) {
	data, err := s.client.HGetAll(ctx, s.accountKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, entitlement.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if len(data) == 0 {
		return nil, entitlement.ErrAccountNotFound
	}

	acct := &entitlement.Account{
		ID:                id,
		Email:             data[fieldEmail],
		HasLifetimeAccess: data[fieldHasAccess] == "1",
	}
	if ts := data[fieldUpdatedAt]; ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			acct.UpdatedAt = t
		}
	}
	return acct, nil
}

// PutAccount creates or updates an account. It never clears an existing grant.
func (s *Storage) PutAccount(ctx context.Context, acct entitlement.Account) error {
	if acct.ID == "" {
		return fmt.Errorf("account id is required")
	}

	err := s.scripts["put"].Run(ctx, s.client,
		[]string{s.accountKey(acct.ID), s.emailKey(acct.Email)},
		acct.ID,
		acct.Email,
		boolFlag(acct.HasLifetimeAccess),
		time.Now().UTC().Format(time.RFC3339Nano),
		s.emailPrefix(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to put account: %w", err)
	}
	return nil
}

// Ping implements entitlement.Store
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
