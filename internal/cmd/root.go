// Package cmd implements the subtrack command line.
package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mihaimyh/subtrack/internal/app"
	"github.com/mihaimyh/subtrack/internal/config"
)

var version = "dev"

// NewRootCmd creates the root cobra command for subtrack.
func NewRootCmd(v string) *cobra.Command {
	version = v

	root := &cobra.Command{
		Use:           "subtrack",
		Short:         "subtrack grants lifetime access from confirmed Stripe payments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newGrantCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newAccountCmd())
	root.AddCommand(newSignCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newVersionCmd())

	root.PersistentFlags().String("env-file", "", "dotenv file to load before the environment")

	return root
}

// loadConfig reads the configuration and builds the logger every command uses.
// Logs go to stderr so command output on stdout stays scriptable.
func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	var files []string
	if f, _ := cmd.Flags().GetString("env-file"); f != "" {
		files = append(files, f)
	}

	cfg, err := config.Load(files...)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, app.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat), nil
}
