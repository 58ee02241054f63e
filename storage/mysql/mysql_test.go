package mysql

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

// setupStorage connects to MYSQL_TEST_DSN and empties the profiles table.
func setupStorage(t *testing.T, accounts ...entitlement.Account) *Storage {
	t.Helper()
	return setupTable(t, "", accounts...)
}

func setupTable(t *testing.T, table string, accounts ...entitlement.Account) *Storage {
	t.Helper()

	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN not set")
	}

	s, err := Open(dsn, Config{Table: table})
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.profiles(s.db).Where("1 = 1").Delete(&profile{}).Error)

	for _, a := range accounts {
		require.NoError(t, s.PutAccount(context.Background(), a))
	}
	return s
}

// dryRunDB builds statements without a server.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/subtrack?parseTime=True",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func TestTableDefaultsToProfiles(t *testing.T) {
	s := New(dryRunDB(t), Config{})
	stmt := s.profiles(s.db).Where("id = ?", "u_1").First(&profile{}).Statement
	assert.Contains(t, stmt.SQL.String(), "`profiles`")
}

func TestConfiguredTableIsUsed(t *testing.T) {
	s := New(dryRunDB(t), Config{Table: "accounts"})
	stmt := s.profiles(s.db).Where("id = ?", "u_1").First(&profile{}).Statement
	assert.Contains(t, stmt.SQL.String(), "`accounts`")
	assert.NotContains(t, stmt.SQL.String(), "profiles")
}

func TestGrantInConfiguredTable(t *testing.T) {
	s := setupTable(t, "subtrack_accounts_test", entitlement.Account{ID: "acct_42", Email: "a@x.com"})

	res, err := s.GrantLifetimeAccess(context.Background(), entitlement.ByID("acct_42"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 1, res.NewlyGranted)
}

func TestGrantByEmailIsIdempotent(t *testing.T) {
	s := setupStorage(t,
		entitlement.Account{ID: "u_1", Email: "a@x.com"},
		entitlement.Account{ID: "u_2", Email: "a@x.com"},
	)
	ctx := context.Background()

	first, err := s.GrantLifetimeAccess(ctx, entitlement.ByEmail("a@x.com"))
	require.NoError(t, err)
	assert.Equal(t, 2, first.Matched)
	assert.Equal(t, 2, first.NewlyGranted)
	assert.Equal(t, []string{"u_1", "u_2"}, first.AccountIDs)

	second, err := s.GrantLifetimeAccess(ctx, entitlement.ByEmail("a@x.com"))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Matched)
	assert.Equal(t, 0, second.NewlyGranted)
}

func TestGrantByIDLeavesOthers(t *testing.T) {
	s := setupStorage(t,
		entitlement.Account{ID: "u_1", Email: "a@x.com"},
		entitlement.Account{ID: "u_2", Email: "a@x.com"},
	)
	ctx := context.Background()

	res, err := s.GrantLifetimeAccess(ctx, entitlement.ByID("u_1"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewlyGranted)

	other, err := s.GetAccount(ctx, "u_2")
	require.NoError(t, err)
	assert.False(t, other.HasLifetimeAccess)
}

func TestPutAccountNeverClearsGrant(t *testing.T) {
	s := setupStorage(t, entitlement.Account{ID: "u_1", HasLifetimeAccess: true})
	ctx := context.Background()

	require.NoError(t, s.PutAccount(ctx, entitlement.Account{ID: "u_1", Email: "b@x.com"}))

	acct, err := s.GetAccount(ctx, "u_1")
	require.NoError(t, err)
	assert.True(t, acct.HasLifetimeAccess)
	assert.Equal(t, "b@x.com", acct.Email)
}

func TestGetAccountNotFound(t *testing.T) {
	s := setupStorage(t)

	_, err := s.GetAccount(context.Background(), "missing")
	assert.ErrorIs(t, err, entitlement.ErrAccountNotFound)
}
