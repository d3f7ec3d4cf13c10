package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satriahrh/cocoa-fruit/gateway/adapters/postgres"
	"github.com/satriahrh/cocoa-fruit/gateway/config"
	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}
	cmd.AddCommand(
		migrationCmd("up", "Apply every pending migration", postgres.Up),
		migrationCmd("down", "Roll back every migration", postgres.Down),
	)
	return cmd
}

func migrationCmd(use, short string, direction postgres.Direction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := log.Configure(cfg.Log.Debug, cfg.Log.Level); err != nil {
				return err
			}
			if cfg.Postgres.DSN == "" {
				return errors.New("postgres.dsn (DATABASE_URL) is required")
			}
			return postgres.Migrate(cfg.Postgres.DSN, direction)
		},
	}
}
