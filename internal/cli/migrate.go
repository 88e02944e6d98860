package cli

import (
	"github.com/spf13/cobra"

	"thoughtful/api/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	Long:  `Apply, roll back or inspect the embedded schema migrations.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		return store.ApplyMigrations(cmd.Context(), db.DB)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		return store.RollbackMigration(cmd.Context(), db.DB)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the state of every migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		return store.MigrationStatus(cmd.Context(), db.DB)
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}
