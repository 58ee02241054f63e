package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mihaimyh/subtrack/internal/app"
	"github.com/mihaimyh/subtrack/internal/config"
	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

// storeSession is an opened store for one-shot commands.
type storeSession struct {
	cfg   *config.Config
	log   zerolog.Logger
	store entitlement.Store
	close func() error
}

// openStore opens the configured backend directly: one-shot commands skip
// the cache and the circuit breaker.
func openStore(cmd *cobra.Command) (*storeSession, error) {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	cfg.Cache.RedisURL = ""
	cfg.Breaker.Enabled = false

	store, closeFn, err := app.OpenStore(cmd.Context(), cfg, log, nil)
	if err != nil {
		return nil, err
	}
	return &storeSession{cfg: cfg, log: log, store: store, close: closeFn}, nil
}
