package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"thoughtful/api/internal/authpw"
	"thoughtful/api/internal/session"
	"thoughtful/api/internal/store"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Administer user accounts",
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "Reset a user's password and sign out all of their sessions",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserPasswd,
}

func init() {
	userCmd.AddCommand(userPasswdCmd)
}

func runUserPasswd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	dataStore := store.NewPostgresStore(db)
	user, err := dataStore.GetUserByUsername(ctx, args[0])
	if err != nil {
		return fmt.Errorf("find user %q: %w", args[0], err)
	}

	password, err := promptPassword(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := authpw.NewService(dataStore, cfg.BcryptCost).SetPassword(ctx, user.ID, password); err != nil {
		return err
	}

	if err := dataStore.DeleteUserSessions(ctx, user.ID); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		if err := redisStore.DeleteUserSessions(ctx, user.ID); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Password updated for %s\n", user.Username)
	return nil
}
