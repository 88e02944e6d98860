package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"thoughtful/api/internal/config"
	"thoughtful/api/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "thoughtful",
	Short: "Thoughtful idea notebook API",
	Long: `Thoughtful keeps a personal notebook of ideas with tags, todo lists,
resources and user-defined statuses.

Run "thoughtful serve" to start the HTTP API. The remaining commands are
maintenance tasks that share the same configuration.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(userCmd)
}

// loadConfig is a seam for tests.
var loadConfig = config.Load

// openDatabase loads the configuration and connects to Postgres.
func openDatabase(ctx context.Context) (config.Config, *sqlx.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.Config{}, nil, err
	}
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("database connection failed: %w", err)
	}
	return cfg, db, nil
}
