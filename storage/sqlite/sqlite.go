// Package sqlite provides an embedded SQLite implementation of the
// entitlement.Store interface, backed by the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

const defaultTable = "profiles"

// Storage implements entitlement.Store using SQLite.
type Storage struct {
	db    *sql.DB
	table string
}

// Config holds SQLite storage configuration.
type Config struct {
	// Table holding accounts; defaults to "profiles".
	Table string
}

// New opens the database at dsn and creates the schema if needed.
// ":memory:" is rewritten to a shared-cache in-memory database.
func New(dsn string, config Config) (*Storage, error) {
	if config.Table == "" {
		config.Table = defaultTable
	}

	if dsn == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite has a single writer; one connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	s := &Storage{db: db, table: quoteIdent(config.Table)}
	if err := s.migrate(config.Table); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Storage) migrate(table string) error {
	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			has_lifetime_access INTEGER NOT NULL DEFAULT 0,
			granted_at TEXT,
			updated_at TEXT NOT NULL DEFAULT ''
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(email)`,
			quoteIdent("idx_"+table+"_email"), s.table),
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// GrantLifetimeAccess implements entitlement.Store.
//
// granted_at is written only on the first grant, so comparing it with this
// call's timestamp tells which rows the statement flipped.
func (s *Storage) GrantLifetimeAccess(ctx context.Context, m entitlement.Match) (*entitlement.GrantResult, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := fmt.Sprintf(`
		UPDATE %s
		   SET has_lifetime_access = 1,
		       granted_at = COALESCE(granted_at, ?1),
		       updated_at = CASE WHEN has_lifetime_access = 1 THEN updated_at ELSE ?1 END
		 WHERE %s = ?2
		RETURNING id, COALESCE(granted_at = ?1, 0)`, s.table, string(m.Field))

	rows, err := s.db.QueryContext(ctx, query, now, m.Value)
	if err != nil {
		return nil, fmt.Errorf("grant lifetime access: %w", err)
	}
	defer rows.Close()

	res := &entitlement.GrantResult{Match: m}
	for rows.Next() {
		var (
			id    string
			newly bool
		)
		if err := rows.Scan(&id, &newly); err != nil {
			return nil, fmt.Errorf("scan grant row: %w", err)
		}
		res.Matched++
		res.AccountIDs = append(res.AccountIDs, id)
		if newly {
			res.NewlyGranted++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("grant lifetime access: %w", err)
	}

	sort.Strings(res.AccountIDs)
	return res, nil
}

// GetAccount implements entitlement.Store.
func (s *Storage) GetAccount(ctx context.Context, id string) (*entitlement.Account, error) {
	var (
		acct      entitlement.Account
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, email, has_lifetime_access, updated_at FROM %s WHERE id = ?`, s.table), id,
	).Scan(&acct.ID, &acct.Email, &acct.HasLifetimeAccess, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entitlement.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		acct.UpdatedAt = t
	}
	return &acct, nil
}

// PutAccount creates or updates an account. It never clears an existing grant.
func (s *Storage) PutAccount(ctx context.Context, acct entitlement.Account) error {
	if acct.ID == "" {
		return fmt.Errorf("account id is required")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	var grantedAt interface{}
	if acct.HasLifetimeAccess {
		grantedAt = now
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %[1]s (id, email, has_lifetime_access, granted_at, updated_at)
		VALUES (?1, ?2, ?3, ?4, ?5)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			has_lifetime_access = MAX(%[1]s.has_lifetime_access, excluded.has_lifetime_access),
			granted_at = COALESCE(%[1]s.granted_at, excluded.granted_at),
			updated_at = excluded.updated_at`, s.table),
		acct.ID, acct.Email, acct.HasLifetimeAccess, grantedAt, now)
	if err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

// Ping implements entitlement.Store.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
