// Package cli implements shikkhactl, the operator tool for migrations,
// accounts and quiz imports.
package cli

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/shikkha-backend/internal/config"
	"github.com/stemsi/shikkha-backend/internal/logger"
)

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

// env is shared by every subcommand; it is filled before RunE.
type env struct {
	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}
	var logLevel string

	cmd := &cobra.Command{
		Use:          "shikkhactl",
		Short:        "Operator tool for the Shikkha backend",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			e.cfg = config.Load()
			if logLevel == "" {
				logLevel = e.cfg.LogLevel
			}
			e.log = logger.Setup(logLevel, "pretty")
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")
	cmd.AddCommand(newMigrateCmd(e))
	cmd.AddCommand(newCreateUserCmd(e))
	cmd.AddCommand(newResetPasswordCmd(e))
	cmd.AddCommand(newImportQuizCmd(e))
	return cmd
}
