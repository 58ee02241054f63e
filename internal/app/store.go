package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mihaimyh/subtrack/internal/config"
	"github.com/mihaimyh/subtrack/pkg/entitlement"
	firestorestore "github.com/mihaimyh/subtrack/storage/firestore"
	"github.com/mihaimyh/subtrack/storage/memory"
	"github.com/mihaimyh/subtrack/storage/mysql"
	"github.com/mihaimyh/subtrack/storage/postgres"
	redisstore "github.com/mihaimyh/subtrack/storage/redis"
	"github.com/mihaimyh/subtrack/storage/sqlite"
	"github.com/mihaimyh/subtrack/storage/tiered"
)

// closers releases resources in reverse acquisition order.
type closers []func() error

func (c *closers) add(fn func() error) {
	*c = append(*c, fn)
}

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenStore builds the account store the configuration selects, optionally
// fronted by a Redis cache and wrapped in a circuit breaker. The returned
// function releases every connection OpenStore opened.
func OpenStore(ctx context.Context, cfg *config.Config, log zerolog.Logger, metrics entitlement.Metrics) (entitlement.Store, func() error, error) {
	if metrics == nil {
		metrics = &entitlement.NoopMetrics{}
	}

	var cl closers
	store, err := openBackend(ctx, cfg.Store, &cl)
	if err != nil {
		_ = cl.close()
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}

	if cfg.Cache.RedisURL.IsSet() {
		hot, err := openRedis(cfg.Cache.RedisURL.Unmask(), &cl)
		if err != nil {
			_ = cl.close()
			return nil, nil, fmt.Errorf("open cache: %w", err)
		}
		t, err := tiered.New(tiered.Config{
			Hot:         hot,
			Cold:        store,
			AsyncMirror: cfg.Cache.AsyncMirror,
			AsyncErrorHandler: func(err error) {
				log.Warn().Err(err).Msg("Cache mirror write failed")
			},
		})
		if err != nil {
			_ = cl.close()
			return nil, nil, err
		}
		cl.add(t.Close)
		store = t
	}

	if cfg.Breaker.Enabled {
		store = entitlement.NewCircuitBreakerStore(store, newBreaker(cfg.Breaker, log, metrics))
	}

	log.Info().
		Str("driver", cfg.Store.Driver).
		Bool("cache", cfg.Cache.RedisURL.IsSet()).
		Bool("circuit_breaker", cfg.Breaker.Enabled).
		Msg("Account store ready")

	return store, cl.close, nil
}

func openBackend(ctx context.Context, sc config.StoreConfig, cl *closers) (entitlement.Store, error) {
	switch sc.Driver {
	case config.DriverMemory:
		return memory.New(), nil

	case config.DriverPostgres:
		dsn := sc.URL.Unmask()
		if sc.AutoMigrate {
			if err := postgres.Migrate(dsn); err != nil {
				return nil, err
			}
		}
		pc := postgres.DefaultConfig()
		pc.ConnectionString = dsn
		pc.Table = sc.Table
		s, err := postgres.New(ctx, pc)
		if err != nil {
			return nil, err
		}
		cl.add(func() error { s.Close(); return nil })
		return s, nil

	case config.DriverRedis:
		return openRedis(sc.URL.Unmask(), cl)

	case config.DriverFirestore:
		client, err := firestore.NewClient(ctx, sc.FirestoreProjectID)
		if err != nil {
			return nil, err
		}
		cl.add(client.Close)
		return firestorestore.New(client, firestorestore.Config{ProfilesCollection: sc.Table})

	case config.DriverSQLite:
		s, err := sqlite.New(sc.SQLitePath, sqlite.Config{Table: sc.Table})
		if err != nil {
			return nil, err
		}
		cl.add(s.Close)
		return s, nil

	case config.DriverMySQL:
		s, err := mysql.Open(sc.URL.Unmask(), mysql.Config{Table: sc.Table})
		if err != nil {
			return nil, err
		}
		cl.add(s.Close)
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
}

func openRedis(url string, cl *closers) (*redisstore.Storage, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	cl.add(client.Close)
	return redisstore.New(client, redisstore.DefaultConfig())
}

func newBreaker(bc config.BreakerConfig, log zerolog.Logger, metrics entitlement.Metrics) entitlement.CircuitBreaker {
	onChange := func(state entitlement.CircuitBreakerState) {
		metrics.RecordCircuitBreakerStateChange(string(state))
		log.Warn().Str("state", string(state)).Msg("Store circuit breaker changed state")
	}

	if bc.Implementation == "builtin" {
		return entitlement.NewDefaultCircuitBreaker(bc.FailureThreshold, bc.ResetTimeout, onChange)
	}
	return entitlement.NewGoBreaker(entitlement.GoBreakerSettings{
		Name:             "account-store",
		FailureThreshold: uint32(bc.FailureThreshold),
		ResetTimeout:     bc.ResetTimeout,
		OnStateChange:    onChange,
	})
}
