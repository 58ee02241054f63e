// Package mysql provides a MySQL implementation of the entitlement.Store
// interface on top of GORM.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

const defaultTable = "profiles"

// profile is the GORM model for an accounts table.
type profile struct {
	ID                string `gorm:"primaryKey;size:191"`
	Email             string `gorm:"size:191;not null;default:'';index:idx_profiles_email"`
	HasLifetimeAccess bool   `gorm:"not null;default:false"`
	UpdatedAt         time.Time
}

// Storage implements entitlement.Store using MySQL.
type Storage struct {
	db    *gorm.DB
	table string
}

// Config holds MySQL storage configuration.
type Config struct {
	// Table holding accounts; defaults to "profiles".
	Table string
}

// Open connects to dsn ("user:pass@tcp(host:3306)/db?parseTime=True")
// and migrates the accounts table.
func Open(dsn string, config Config) (*Storage, error) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:               dsn,
		DefaultStringSize: 256,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	s := New(db, config)
	if err := s.AutoMigrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// New wraps an existing GORM handle.
func New(db *gorm.DB, config Config) *Storage {
	if config.Table == "" {
		config.Table = defaultTable
	}
	return &Storage{db: db, table: config.Table}
}

// profiles scopes a session to the configured table.
func (s *Storage) profiles(db *gorm.DB) *gorm.DB {
	return db.Table(s.table)
}

// AutoMigrate creates or updates the accounts table.
func (s *Storage) AutoMigrate() error {
	if err := s.profiles(s.db).AutoMigrate(&profile{}); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GrantLifetimeAccess implements entitlement.Store.
//
// The matched rows are locked first so the id list and the conditional
// update see the same set; RowsAffected of the update is the number of
// accounts this call flipped.
func (s *Storage) GrantLifetimeAccess(ctx context.Context, m entitlement.Match) (*entitlement.GrantResult, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	column := string(m.Field)

	res := &entitlement.GrantResult{Match: m}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := s.profiles(tx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(clause.Eq{Column: clause.Column{Name: column}, Value: m.Value}).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		upd := s.profiles(tx).
			Where(clause.Eq{Column: clause.Column{Name: column}, Value: m.Value}).
			Where("has_lifetime_access = ?", false).
			Updates(map[string]interface{}{
				"has_lifetime_access": true,
				"updated_at":          time.Now().UTC(),
			})
		if upd.Error != nil {
			return upd.Error
		}

		sort.Strings(ids)
		res.Matched = len(ids)
		res.AccountIDs = ids
		res.NewlyGranted = int(upd.RowsAffected)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("grant lifetime access: %w", err)
	}
	return res, nil
}

// GetAccount implements entitlement.Store.
func (s *Storage) GetAccount(ctx context.Context, id string) (*entitlement.Account, error) {
	var p profile
	if err := s.profiles(s.db.WithContext(ctx)).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entitlement.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &entitlement.Account{
		ID:                p.ID,
		Email:             p.Email,
		HasLifetimeAccess: p.HasLifetimeAccess,
		UpdatedAt:         p.UpdatedAt,
	}, nil
}

// PutAccount creates or updates an account. It never clears an existing grant.
func (s *Storage) PutAccount(ctx context.Context, acct entitlement.Account) error {
	if acct.ID == "" {
		return fmt.Errorf("account id is required")
	}

	p := profile{
		ID:                acct.ID,
		Email:             acct.Email,
		HasLifetimeAccess: acct.HasLifetimeAccess,
	}
	err := s.profiles(s.db.WithContext(ctx)).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"email":               acct.Email,
			"has_lifetime_access": gorm.Expr("has_lifetime_access OR ?", acct.HasLifetimeAccess),
			"updated_at":          time.Now().UTC(),
		}),
	}).Create(&p).Error
	if err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

// Ping implements entitlement.Store.
func (s *Storage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
