// Package postgres provides a PostgreSQL implementation of entitlement.Store.
// The grant is a single UPDATE whose CTE locks the matched rows, so concurrent
// deliveries for the same account serialize on the row lock and exactly one
// of them reports the false->true transition.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

const defaultTable = "profiles"

// Storage implements entitlement.Store using PostgreSQL
type Storage struct {
	pool  *pgxpool.Pool
	table string
	owned bool
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Table holding accounts; defaults to "profiles".
	Table string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Table:           defaultTable,
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewWithPool(pool, config.Table)
	s.owned = true
	return s, nil
}

// NewWithPool wraps an existing pool. Close leaves the pool open.
func NewWithPool(pool *pgxpool.Pool, table string) *Storage {
	if table == "" {
		table = defaultTable
	}
	return &Storage{
		pool:  pool,
		table: pgx.Identifier{table}.Sanitize(),
	}
}

// Close closes the connection pool if New created it
func (s *Storage) Close() {
	if s.owned && s.pool != nil {
		s.pool.Close()
	}
}

// GrantLifetimeAccess implements entitlement.Store
func (s *Storage) GrantLifetimeAccess(ctx context.Context, m entitlement.Match) (*entitlement.GrantResult, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	// m.Field is one of two known column names after Validate.
	query := fmt.Sprintf(`
		WITH prev AS (
			SELECT id, has_lifetime_access FROM %[1]s WHERE %[2]s = $1 FOR UPDATE
		)
		UPDATE %[1]s AS p
		   SET has_lifetime_access = true,
		       updated_at = CASE WHEN prev.has_lifetime_access THEN p.updated_at ELSE now() END
		  FROM prev
		 WHERE p.id = prev.id
		RETURNING p.id, NOT prev.has_lifetime_access`,
		s.table, string(m.Field))

	rows, err := s.pool.Query(ctx, query, m.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to grant lifetime access: %w", err)
	}
	defer rows.Close()

	res := &entitlement.GrantResult{Match: m}
	for rows.Next() {
		var id string
		var newly bool
		if err := rows.Scan(&id, &newly); err != nil {
			return nil, fmt.Errorf("failed to scan grant row: %w", err)
		}
		res.Matched++
		res.AccountIDs = append(res.AccountIDs, id)
		if newly {
			res.NewlyGranted++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to grant lifetime access: %w", err)
	}

	return res, nil
}

// GetAccount implements entitlement.Store
func (s *Storage) GetAccount(ctx context.Context, id string) (*entitlement.Account, error) {
	var acct entitlement.Account
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT id, COALESCE(email, ''), has_lifetime_access, updated_at FROM %s WHERE id = $1`, s.table),
		id).Scan(&acct.ID, &acct.Email, &acct.HasLifetimeAccess, &acct.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entitlement.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acct, nil
}

// PutAccount inserts an account or updates its email. The access flag of an
// existing row is never lowered.
func (s *Storage) PutAccount(ctx context.Context, acct entitlement.Account) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, email, has_lifetime_access)
		VALUES ($1, NULLIF($2, ''), $3)
		ON CONFLICT (id) DO UPDATE
		   SET email = EXCLUDED.email,
		       has_lifetime_access = %[1]s.has_lifetime_access OR EXCLUDED.has_lifetime_access,
		       updated_at = now()`, s.table),
		acct.ID, acct.Email, acct.HasLifetimeAccess)
	if err != nil {
		return fmt.Errorf("failed to put account: %w", err)
	}
	return nil
}

// Ping implements entitlement.Store
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var _ entitlement.Store = (*Storage)(nil)
