package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"thoughtful/api/internal/search"
	"thoughtful/api/internal/store"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the relevance search index from Postgres",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		if strings.TrimSpace(cfg.MeiliURL) == "" {
			return fmt.Errorf("MEILI_URL is not configured")
		}
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()

		total, err := search.NewService(meiliClient).ReindexAll(cmd.Context(), store.NewPostgresStore(db))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d idea(s)\n", total)
		return nil
	},
}
