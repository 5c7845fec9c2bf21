package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func migrateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, flags)
			if err != nil {
				return err
			}
			if isMemoryDriver(cfg.Persistence.Driver) {
				return fmt.Errorf("shopsync: nothing to migrate for the memory driver")
			}
			client, err := openPersistence(cfg.Persistence)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := runMigrations(ctx, client, cfg.Persistence.Driver); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", cfg.Persistence.Driver)
			return nil
		},
	}
}
