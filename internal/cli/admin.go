package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/di"
	"github.com/stustapay/stustapayd/internal/service"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

var (
	addUserLogin       string
	addUserPassword    string
	addUserDisplayName string
	addUserNodeID      int64
	addUserRoles       []string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative helpers",
}

var addUserCmd = &cobra.Command{
	Use:   "add-user",
	Short: "Create a user with password and roles",
	Long: `Create a user directly in the database. This is the bootstrap path
for a fresh deployment: the first administrator is created here, every
later user through the administration API.`,
	RunE: runAddUser,
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(addUserCmd)

	addUserCmd.Flags().StringVar(&addUserLogin, "login", "", "login name (required)")
	addUserCmd.Flags().StringVar(&addUserPassword, "password", "", "password (required)")
	addUserCmd.Flags().StringVar(&addUserDisplayName, "display-name", "", "display name, defaults to the login")
	addUserCmd.Flags().Int64Var(&addUserNodeID, "node-id", 1, "event node the user belongs to")
	addUserCmd.Flags().StringSliceVar(&addUserRoles, "roles", nil, "role names to assign, e.g. admin,finanzorga")
}

func runAddUser(cmd *cobra.Command, args []string) error {
	if addUserLogin == "" || addUserPassword == "" {
		return errors.New("--login and --password are required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	container := di.New()
	provider := di.NewProvider(container, cfg, logger)
	if err := provider.RegisterAll(); err != nil {
		return err
	}

	ctx := cmd.Context()
	manager, err := container.Get(di.ServiceStorageManager)
	if err != nil {
		return err
	}
	storage := manager.(*relationaldb.Manager)
	if err := storage.Open(ctx); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := storage.Close(closeCtx); err != nil {
			logger.Error().Err(err).Msg("closing storage")
		}
	}()

	users, err := container.Get(di.ServiceUsers)
	if err != nil {
		return err
	}

	displayName := addUserDisplayName
	if displayName == "" {
		displayName = addUserLogin
	}
	// The command runs with operator rights; the service privilege
	// checks see a synthetic principal carrying every privilege.
	operator := &user.CurrentUser{
		User:       user.User{Login: "cli", DisplayName: "command line", NodeID: addUserNodeID},
		Privileges: user.AllPrivileges(),
	}
	created, err := users.(*service.UserService).CreateUser(ctx, operator, addUserNodeID, user.NewUser{
		Login:       addUserLogin,
		DisplayName: displayName,
		Password:    &addUserPassword,
		RoleNames:   addUserRoles,
	})
	if err != nil {
		return err
	}
	fmt.Printf("created user %q (id %d)\n", created.Login, created.ID)
	return nil
}
