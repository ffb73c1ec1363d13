// File: /cmd/migrate.go
package cmd

import (
	"github.com/spf13/cobra"

	"chyrp-api/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()

		db, err := database.Initialize(cfg, log)
		if err != nil {
			return err
		}
		if err := database.Migrate(db, log); err != nil {
			return err
		}
		log.Info("migrations applied")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Migrate and insert the default categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()

		db, err := database.Initialize(cfg, log)
		if err != nil {
			return err
		}
		if err := database.Migrate(db, log); err != nil {
			return err
		}
		return database.SeedData(db, log)
	},
}
