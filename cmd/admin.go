package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/brazeiro63/vovo-achados-portal/config"
	"github.com/brazeiro63/vovo-achados-portal/internal/cache"
	"github.com/brazeiro63/vovo-achados-portal/internal/db"
	"github.com/brazeiro63/vovo-achados-portal/internal/logger"
	"github.com/brazeiro63/vovo-achados-portal/internal/services"
	"github.com/brazeiro63/vovo-achados-portal/internal/store"
	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/spf13/cobra"
)

// adminCmd manages administrator roles from the command line. It is how the
// first administrator is created.
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage administrator roles",
}

var adminPromoteCmd = &cobra.Command{
	Use:   "promote <email>",
	Short: "Grant the admin role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRole(cmd, args[0], types.RoleAdmin)
	},
}

var adminDemoteCmd = &cobra.Command{
	Use:   "demote <email>",
	Short: "Revoke the admin role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRole(cmd, args[0], types.RoleUser)
	},
}

func setRole(cmd *cobra.Command, email, role string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	log := logger.Setup(cmd.ErrOrStderr(), cfg.LogLevel)

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer dbConn.Close()

	// The server caches the user list; drop it in the shared backend.
	backend, err := cache.Open(cfg.Cache)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	queries := cache.NewQuery(backend, cfg.Cache.TTL, log)
	defer queries.Close()

	users := services.NewUserService(store.NewProfileRepository(dbConn), nil, queries)
	changed, err := changeRole(ctx, store.NewUserRepository(dbConn), users, email, role)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", changed.Email, role)
	return nil
}

// userFinder looks up an identity by email.
type userFinder interface {
	GetByEmail(ctx context.Context, email string) (types.User, error)
}

func changeRole(ctx context.Context, finder userFinder, users *services.UserService, email, role string) (types.User, error) {
	user, err := finder.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return types.User{}, fmt.Errorf("find user %s: %w", email, err)
	}
	if err := users.SetRole(ctx, user.ID, role); err != nil {
		return types.User{}, fmt.Errorf("set role: %w", err)
	}
	return user, nil
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminPromoteCmd)
	adminCmd.AddCommand(adminDemoteCmd)
}
