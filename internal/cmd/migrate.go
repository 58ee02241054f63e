package cmd

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/mihaimyh/subtrack/internal/config"
	"github.com/mihaimyh/subtrack/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply or inspect the PostgreSQL schema",
		Long:      "SQLite and MySQL stores create their schema when opened; only postgres\nneeds explicit migrations.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Store.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate requires STORE_DRIVER=postgres, got %q", cfg.Store.Driver)
			}
			if cfg.Store.Table != config.DefaultTable {
				return fmt.Errorf("migrations create the %q table; PROFILES_TABLE=%q must be created by hand",
					config.DefaultTable, cfg.Store.Table)
			}

			m, err := postgres.NewMigrator(cfg.Store.URL.Unmask())
			if err != nil {
				return err
			}
			defer func() { _, _ = m.Close() }()

			action := "up"
			if len(args) == 1 {
				action = args[0]
			}

			switch action {
			case "up":
				err = m.Up()
			case "down":
				err = m.Steps(-1)
			}
			if err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate %s: %w", action, err)
			}

			v, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Fprintln(cmd.OutOrStdout(), "version=none")
				return nil
			}
			if err != nil {
				return err
			}
			log.Info().Uint("version", v).Bool("dirty", dirty).Str("action", action).Msg("Schema migrated")
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", v, dirty)
			return nil
		},
	}
}
