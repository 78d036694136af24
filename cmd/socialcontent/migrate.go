package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tendant/social-content/pkg/socialcontent/config"
	"github.com/tendant/social-content/pkg/socialcontent/repo/postgres"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded Postgres schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.DatabaseType != "postgres" {
				return fmt.Errorf("migrate requires a postgres DATABASE_URL, got database type %q", cfg.DatabaseType)
			}

			pool, err := config.NewPostgresPool(cmd.Context(), cfg.DatabaseURL, cfg.DBSchema)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.RunMigrationsWithPool(cmd.Context(), pool); err != nil {
				return err
			}
			logger.Info("migrations applied", "schema", cfg.DBSchema)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return err
		},
	}
}
